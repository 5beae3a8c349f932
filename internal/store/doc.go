// Package store provides SQLite-backed persistence for leadflow.
//
// # Entities
//
//   - Lead: tracked contact with score, classification tier and eligibility flags
//   - Conversation: per-lead engagement state with a constrained status machine
//   - Message: append-only ledger rows keyed by (conversation_id, seq)
//   - Session: live binding between a channel instance and a contact address
//   - AuditRecord: immutable why-it-changed entries in three streams
//
// # Consistency rules
//
// Classification and score updates are compare-and-set UPDATEs that commit
// together with their audit record in one transaction, so a reader can never
// observe a new tier without the record explaining it. Conversation status
// changes enforce the transition table in the WHERE clause of the UPDATE
// rather than read-then-write. Session connects deactivate any other session
// bound to the same address inside the same transaction.
//
// The audit_events table is append-only: no method issues UPDATE or DELETE
// against it.
//
// # Errors
//
// Lookups return ErrNotFound, unique-key collisions return ErrConflict and
// disallowed status changes return ErrInvalidTransition. All are sentinel
// errors suitable for errors.Is.
package store
