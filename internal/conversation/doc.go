// Package conversation provides the conversation lifecycle service and the
// room-based event broadcaster.
//
// # Service
//
// The Service owns the message ledger and conversation status machine:
//
//	svc := conversation.New(store, broadcaster, deliverer, rescorer, logger)
//
// Key operations:
//
//   - HandleInbound(ctx, msg): record an inbound user message, creating the
//     lead and conversation on first contact, then rescore and broadcast
//   - AppendMessage(ctx, id, req): validate and append one ledger entry
//   - SendReply(ctx, id, ...): append an agent reply, deliver outbound,
//     record the outcome
//   - SetStatus(ctx, id, next, ...): constrained status transitions
//   - GetSnapshot(ctx, id): reconcile-on-reconnect read path
//
// # Ordering
//
// Appends to a single conversation are serialized by a per-conversation
// mutex, and the new-message event is published under that same lock after
// the durable write, so subscribers observe events in ledger order. Across
// conversations no ordering is guaranteed.
//
// # Status machine
//
// active ⇄ paused; active|paused → transferred; anything but completed →
// completed; completed is terminal. A new user or agent message reactivates
// a paused conversation, a bot message does not.
//
// # Broadcasting
//
// The Broadcaster fans events out to room subscribers with per-subscriber
// buffered channels. Delivery is at-most-once: slow subscribers drop events
// rather than back-pressuring the publisher, and clients reconcile via
// GetSnapshot after reconnecting.
package conversation
