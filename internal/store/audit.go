// ABOUTME: Append-only audit ledger for scoring, handoff and AI-decision changes
// ABOUTME: The sole source of truth for why a lead's state changed; no update or delete exists

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditStream identifies one of the logical audit streams.
type AuditStream string

const (
	StreamScore    AuditStream = "score"
	StreamTransfer AuditStream = "transfer"
	StreamDecision AuditStream = "decision"

	// StreamAll selects all streams merged by timestamp in queries.
	StreamAll AuditStream = "all"
)

// ValidAuditStreams lists the streams records may be appended to.
var ValidAuditStreams = []AuditStream{StreamScore, StreamTransfer, StreamDecision}

// ActorKind identifies what kind of actor triggered a state change.
type ActorKind string

const (
	ActorAI     ActorKind = "ai"
	ActorManual ActorKind = "manual"
	ActorSystem ActorKind = "system"
	ActorHuman  ActorKind = "human"
)

// AuditRecord is a single immutable audit entry. Previous and New hold the
// stream-specific values (tiers for score/decision records, statuses or
// agent assignments for transfers) as strings.
type AuditRecord struct {
	ID        string
	LeadID    string
	Stream    AuditStream
	Previous  string
	New       string
	Reason    string
	Actor     ActorKind
	Metadata  map[string]any // additional context (max 64KB JSON)
	CreatedAt time.Time
}

// insertAudit writes an audit record inside an existing transaction so a
// state change and the record explaining it commit together.
func insertAudit(ctx context.Context, tx *sql.Tx, rec *AuditRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	var metadataJSON *string
	if rec.Metadata != nil {
		data, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling audit metadata: %w", err)
		}
		str := string(data)
		metadataJSON = &str
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO audit_events (audit_id, lead_id, stream, previous, new, reason, actor, metadata_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		rec.ID,
		rec.LeadID,
		string(rec.Stream),
		rec.Previous,
		rec.New,
		rec.Reason,
		string(rec.Actor),
		metadataJSON,
		rec.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("inserting audit record: %w", err)
	}
	return nil
}

// AppendAudit appends a record to the audit ledger and returns its ID.
// Generates ID and CreatedAt if not set. Write-only by design.
func (s *SQLiteStore) AppendAudit(ctx context.Context, rec *AuditRecord) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertAudit(ctx, tx, rec); err != nil {
		return "", err
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("committing audit append: %w", err)
	}

	s.logger.Debug("appended audit record",
		"id", rec.ID,
		"lead_id", rec.LeadID,
		"stream", rec.Stream,
		"actor", rec.Actor,
	)
	return rec.ID, nil
}

// normalizeAuditLimit applies default (50) and cap (500) to audit limits.
func normalizeAuditLimit(limit int) int {
	switch {
	case limit <= 0:
		return 50
	case limit > 500:
		return 500
	default:
		return limit
	}
}

// scanAuditRecord scans a row into an AuditRecord.
func scanAuditRecord(scanner interface{ Scan(dest ...any) error }) (AuditRecord, error) {
	var rec AuditRecord
	var stream, actor, createdAtStr string
	var metadataJSON *string

	if err := scanner.Scan(
		&rec.ID,
		&rec.LeadID,
		&stream,
		&rec.Previous,
		&rec.New,
		&rec.Reason,
		&actor,
		&metadataJSON,
		&createdAtStr,
	); err != nil {
		return rec, fmt.Errorf("scanning audit record: %w", err)
	}

	rec.Stream = AuditStream(stream)
	rec.Actor = ActorKind(actor)
	var err error
	rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAtStr)
	if err != nil {
		return rec, fmt.Errorf("parsing created_at: %w", err)
	}

	if metadataJSON != nil {
		if err := json.Unmarshal([]byte(*metadataJSON), &rec.Metadata); err != nil {
			return rec, fmt.Errorf("unmarshaling metadata: %w", err)
		}
	}
	return rec, nil
}

// ListAudit returns audit records for a lead, newest first. StreamAll merges
// all three streams ordered by timestamp; the single-table layout makes the
// cross-stream merge a plain ORDER BY.
func (s *SQLiteStore) ListAudit(ctx context.Context, leadID string, stream AuditStream, limit, offset int) ([]AuditRecord, error) {
	limit = normalizeAuditLimit(limit)
	if offset < 0 {
		offset = 0
	}

	query := `
		SELECT audit_id, lead_id, stream, previous, new, reason, actor, metadata_json, created_at
		FROM audit_events
		WHERE lead_id = ? AND (? = 'all' OR stream = ?)
		ORDER BY created_at DESC
		LIMIT ? OFFSET ?
	`

	rows, err := s.db.QueryContext(ctx, query, leadID, string(stream), string(stream), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("querying audit records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []AuditRecord
	for rows.Next() {
		rec, err := scanAuditRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit records: %w", err)
	}

	if records == nil {
		records = []AuditRecord{}
	}
	return records, nil
}

// CountAudit returns the number of audit records for a lead in a stream,
// used for pagination totals.
func (s *SQLiteStore) CountAudit(ctx context.Context, leadID string, stream AuditStream) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM audit_events WHERE lead_id = ? AND (? = 'all' OR stream = ?)`,
		leadID, string(stream), string(stream),
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting audit records: %w", err)
	}
	return count, nil
}

// AuditTotals returns per-stream record counts for a lead.
func (s *SQLiteStore) AuditTotals(ctx context.Context, leadID string) (map[AuditStream]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT stream, COUNT(*) FROM audit_events WHERE lead_id = ? GROUP BY stream`,
		leadID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying audit totals: %w", err)
	}
	defer rows.Close()

	totals := make(map[AuditStream]int, len(ValidAuditStreams))
	for _, stream := range ValidAuditStreams {
		totals[stream] = 0
	}
	for rows.Next() {
		var stream string
		var count int
		if err := rows.Scan(&stream, &count); err != nil {
			return nil, fmt.Errorf("scanning audit total: %w", err)
		}
		totals[AuditStream(stream)] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating audit totals: %w", err)
	}
	return totals, nil
}
