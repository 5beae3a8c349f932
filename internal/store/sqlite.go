// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides lead/conversation/message persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS leads (
			id                   TEXT PRIMARY KEY,
			address              TEXT NOT NULL UNIQUE,
			display_name         TEXT NOT NULL,
			score                INTEGER NOT NULL DEFAULT 0,
			classification       TEXT NOT NULL DEFAULT 'discard',
			has_qualifying_claim INTEGER NOT NULL DEFAULT 0,
			eligible             INTEGER NOT NULL DEFAULT 0,
			high_urgency         INTEGER NOT NULL DEFAULT 0,
			documents_complete   INTEGER NOT NULL DEFAULT 0,
			last_interaction_at  TEXT,
			created_at           TEXT NOT NULL,

			CHECK (score BETWEEN 0 AND 100),
			CHECK (classification IN ('hot', 'warm', 'cold', 'discard'))
		);

		CREATE INDEX IF NOT EXISTS idx_leads_address ON leads(address);
		CREATE INDEX IF NOT EXISTS idx_leads_classification ON leads(classification);

		CREATE TABLE IF NOT EXISTS conversations (
			id             TEXT PRIMARY KEY,
			lead_id        TEXT NOT NULL REFERENCES leads(id),
			channel_id     TEXT NOT NULL,
			status         TEXT NOT NULL DEFAULT 'active',
			bot_enabled    INTEGER NOT NULL DEFAULT 1,
			assigned_agent TEXT,
			created_at     TEXT NOT NULL,
			updated_at     TEXT NOT NULL,

			CHECK (status IN ('active', 'paused', 'completed', 'transferred'))
		);

		CREATE INDEX IF NOT EXISTS idx_conversations_lead ON conversations(lead_id);

		CREATE TABLE IF NOT EXISTS messages (
			id                  TEXT PRIMARY KEY,
			conversation_id     TEXT NOT NULL REFERENCES conversations(id),
			seq                 INTEGER NOT NULL,
			type                TEXT NOT NULL DEFAULT 'text',
			content             TEXT NOT NULL,
			sender              TEXT NOT NULL,
			sender_name         TEXT NOT NULL,
			read                INTEGER NOT NULL DEFAULT 0,
			provider_message_id TEXT,
			delivery            TEXT NOT NULL DEFAULT 'delivered',
			timestamp           TEXT NOT NULL,

			UNIQUE (conversation_id, seq),
			CHECK (type IN ('text', 'image', 'document', 'audio', 'video')),
			CHECK (sender IN ('user', 'bot', 'agent')),
			CHECK (delivery IN ('pending', 'delivered', 'delivery_failed'))
		);

		CREATE INDEX IF NOT EXISTS idx_messages_conversation_seq
			ON messages(conversation_id, seq);
		CREATE INDEX IF NOT EXISTS idx_messages_unread
			ON messages(conversation_id, sender, read);

		CREATE TABLE IF NOT EXISTS sessions (
			instance_name   TEXT PRIMARY KEY,
			state           TEXT NOT NULL DEFAULT 'close',
			bound_address   TEXT NOT NULL,
			profile_name    TEXT NOT NULL DEFAULT '',
			profile_pic_url TEXT NOT NULL DEFAULT '',
			active          INTEGER NOT NULL DEFAULT 0,
			updated_at      TEXT NOT NULL,

			CHECK (state IN ('close', 'connecting', 'open'))
		);

		CREATE INDEX IF NOT EXISTS idx_sessions_address ON sessions(bound_address);

		CREATE TABLE IF NOT EXISTS audit_events (
			audit_id      TEXT PRIMARY KEY,
			lead_id       TEXT NOT NULL,
			stream        TEXT NOT NULL,
			previous      TEXT NOT NULL,
			new           TEXT NOT NULL,
			reason        TEXT NOT NULL,
			actor         TEXT NOT NULL,
			metadata_json TEXT,
			created_at    TEXT NOT NULL,

			CHECK (stream IN ('score', 'transfer', 'decision')),
			CHECK (actor IN ('ai', 'manual', 'system', 'human'))
		);

		CREATE INDEX IF NOT EXISTS idx_audit_lead_ts ON audit_events(lead_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_lead_stream ON audit_events(lead_id, stream);

		CREATE TABLE IF NOT EXISTS api_tokens (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			secret_hash TEXT NOT NULL,
			created_at  TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// isConstraintViolation checks if the error is a SQLite UNIQUE constraint
// violation. CHECK and foreign-key failures are validation faults, not
// conflicts, and must not match here.
func isConstraintViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// nullString returns nil for empty strings, otherwise the string itself
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// boolInt converts a bool to the 0/1 representation stored in SQLite
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// CreateLead creates a new lead. Returns ErrConflict if the address is
// already registered; addresses are immutable after creation.
func (s *SQLiteStore) CreateLead(ctx context.Context, lead *Lead) error {
	query := `
		INSERT INTO leads (id, address, display_name, score, classification,
			has_qualifying_claim, eligible, high_urgency, documents_complete,
			last_interaction_at, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var lastInteraction any
	if lead.LastInteractionAt != nil {
		lastInteraction = lead.LastInteractionAt.UTC().Format(time.RFC3339)
	}

	_, err := s.db.ExecContext(ctx, query,
		lead.ID,
		lead.Address,
		lead.DisplayName,
		lead.Score,
		string(lead.Classification),
		boolInt(lead.HasQualifyingClaim),
		boolInt(lead.Eligible),
		boolInt(lead.HighUrgency),
		boolInt(lead.DocumentsComplete),
		lastInteraction,
		lead.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: address %s already registered", ErrConflict, lead.Address)
		}
		return fmt.Errorf("inserting lead: %w", err)
	}

	s.logger.Debug("created lead", "id", lead.ID, "address", lead.Address)
	return nil
}

const leadColumns = `id, address, display_name, score, classification,
	has_qualifying_claim, eligible, high_urgency, documents_complete,
	last_interaction_at, created_at`

// scanLead scans a row into a Lead.
func scanLead(scanner interface{ Scan(dest ...any) error }) (*Lead, error) {
	var lead Lead
	var classification, createdAtStr string
	var lastInteractionStr sql.NullString
	var claim, eligible, urgency, docs int

	if err := scanner.Scan(
		&lead.ID,
		&lead.Address,
		&lead.DisplayName,
		&lead.Score,
		&classification,
		&claim,
		&eligible,
		&urgency,
		&docs,
		&lastInteractionStr,
		&createdAtStr,
	); err != nil {
		return nil, err
	}

	lead.Classification = Tier(classification)
	lead.HasQualifyingClaim = claim != 0
	lead.Eligible = eligible != 0
	lead.HighUrgency = urgency != 0
	lead.DocumentsComplete = docs != 0

	var err error
	lead.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	if lastInteractionStr.Valid {
		t, err := time.Parse(time.RFC3339, lastInteractionStr.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_interaction_at: %w", err)
		}
		lead.LastInteractionAt = &t
	}
	return &lead, nil
}

// GetLead retrieves a lead by ID. Returns ErrNotFound if it doesn't exist.
func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying lead: %w", err)
	}
	return lead, nil
}

// GetLeadByAddress retrieves a lead by its unique contact address.
func (s *SQLiteStore) GetLeadByAddress(ctx context.Context, address string) (*Lead, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE address = ?`, address)
	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying lead by address: %w", err)
	}
	return lead, nil
}

// UpdateLeadFlags applies operator edits to a lead's eligibility flags and
// returns the lead as stored afterwards. Nil fields are untouched; callers
// rescore from the returned snapshot.
func (s *SQLiteStore) UpdateLeadFlags(ctx context.Context, leadID string, flags LeadFlags) (*Lead, error) {
	sets := make([]string, 0, 4)
	args := make([]any, 0, 5)
	if flags.HasQualifyingClaim != nil {
		sets = append(sets, "has_qualifying_claim = ?")
		args = append(args, boolInt(*flags.HasQualifyingClaim))
	}
	if flags.Eligible != nil {
		sets = append(sets, "eligible = ?")
		args = append(args, boolInt(*flags.Eligible))
	}
	if flags.HighUrgency != nil {
		sets = append(sets, "high_urgency = ?")
		args = append(args, boolInt(*flags.HighUrgency))
	}
	if flags.DocumentsComplete != nil {
		sets = append(sets, "documents_complete = ?")
		args = append(args, boolInt(*flags.DocumentsComplete))
	}

	if len(sets) > 0 {
		args = append(args, leadID)
		result, err := s.db.ExecContext(ctx,
			`UPDATE leads SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
		if err != nil {
			return nil, fmt.Errorf("updating lead flags: %w", err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return nil, fmt.Errorf("getting rows affected: %w", err)
		}
		if affected == 0 {
			return nil, ErrNotFound
		}
		s.logger.Debug("updated lead flags", "lead_id", leadID, "fields", len(sets))
	}

	return s.GetLead(ctx, leadID)
}

// UpdateClassification moves a lead from prev to next tier and appends the
// audit record in the same transaction. The tier update is a compare-and-set:
// if the stored tier no longer equals prev (concurrent update, or the tiers
// are equal) no write happens and changed=false is returned.
// A reader never observes the new tier without its audit record.
func (s *SQLiteStore) UpdateClassification(ctx context.Context, leadID string, prev, next Tier, rec *AuditRecord) (bool, error) {
	if prev == next {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE leads SET classification = ? WHERE id = ? AND classification = ?`,
		string(next), leadID, string(prev),
	)
	if err != nil {
		return false, fmt.Errorf("updating classification: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		// Either the lead is gone or another writer won the race.
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM leads WHERE id = ?`, leadID).Scan(&exists); err == sql.ErrNoRows {
			return false, ErrNotFound
		} else if err != nil {
			return false, fmt.Errorf("checking lead existence: %w", err)
		}
		return false, nil
	}

	if err := insertAudit(ctx, tx, rec); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing classification update: %w", err)
	}

	s.logger.Debug("updated classification",
		"lead_id", leadID,
		"previous", prev,
		"new", next,
		"audit_id", rec.ID,
	)
	return true, nil
}

// UpdateScore sets a lead's score and tier together under a compare-and-set
// on the previous score, appending the audit record in the same transaction.
func (s *SQLiteStore) UpdateScore(ctx context.Context, leadID string, prevScore, newScore int, prevTier, newTier Tier, rec *AuditRecord) (bool, error) {
	if prevScore == newScore && prevTier == newTier {
		return false, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE leads SET score = ?, classification = ? WHERE id = ? AND score = ?`,
		newScore, string(newTier), leadID, prevScore,
	)
	if err != nil {
		return false, fmt.Errorf("updating score: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM leads WHERE id = ?`, leadID).Scan(&exists); err == sql.ErrNoRows {
			return false, ErrNotFound
		} else if err != nil {
			return false, fmt.Errorf("checking lead existence: %w", err)
		}
		return false, nil
	}

	if err := insertAudit(ctx, tx, rec); err != nil {
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("committing score update: %w", err)
	}

	s.logger.Debug("updated score",
		"lead_id", leadID,
		"previous_score", prevScore,
		"new_score", newScore,
		"new_classification", newTier,
	)
	return true, nil
}

// CreateConversation creates a new conversation for a lead.
func (s *SQLiteStore) CreateConversation(ctx context.Context, conv *Conversation) error {
	query := `
		INSERT INTO conversations (id, lead_id, channel_id, status, bot_enabled, assigned_agent, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		conv.ID,
		conv.LeadID,
		conv.ChannelID,
		string(conv.Status),
		boolInt(conv.BotEnabled),
		conv.AssignedAgent,
		conv.CreatedAt.UTC().Format(time.RFC3339),
		conv.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: conversation %s", ErrConflict, conv.ID)
		}
		return fmt.Errorf("inserting conversation: %w", err)
	}

	s.logger.Debug("created conversation", "id", conv.ID, "lead_id", conv.LeadID)
	return nil
}

const conversationColumns = `id, lead_id, channel_id, status, bot_enabled, assigned_agent, created_at, updated_at`

func scanConversation(scanner interface{ Scan(dest ...any) error }) (*Conversation, error) {
	var conv Conversation
	var status, createdAtStr, updatedAtStr string
	var botEnabled int
	var assignedAgent sql.NullString

	if err := scanner.Scan(
		&conv.ID,
		&conv.LeadID,
		&conv.ChannelID,
		&status,
		&botEnabled,
		&assignedAgent,
		&createdAtStr,
		&updatedAtStr,
	); err != nil {
		return nil, err
	}

	conv.Status = ConversationStatus(status)
	conv.BotEnabled = botEnabled != 0
	if assignedAgent.Valid {
		conv.AssignedAgent = &assignedAgent.String
	}

	var err error
	conv.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	conv.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &conv, nil
}

// GetConversation retrieves a conversation by ID.
func (s *SQLiteStore) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conversationColumns+` FROM conversations WHERE id = ?`, id)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation: %w", err)
	}
	return conv, nil
}

// GetConversationByLead retrieves the most recent conversation for a lead.
func (s *SQLiteStore) GetConversationByLead(ctx context.Context, leadID string) (*Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE lead_id = ? ORDER BY created_at DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, leadID)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying conversation by lead: %w", err)
	}
	return conv, nil
}

// SetConversationStatus moves a conversation to next, enforcing the
// transition table at write time: the current status is read inside the
// transaction, validated against allowedPrev, and the UPDATE is a
// compare-and-set on that exact value. A non-nil audit record (handoff
// capture for transfers) is appended in the same transaction with its
// Previous field stamped from the matched row, so the record can never
// carry a status read outside the transaction.
// Returns ErrNotFound if the conversation doesn't exist, ErrInvalidTransition
// if its current status does not allow the change.
func (s *SQLiteStore) SetConversationStatus(ctx context.Context, id string, next ConversationStatus, allowedPrev []ConversationStatus, rec *AuditRecord) error {
	if len(allowedPrev) == 0 {
		return fmt.Errorf("%w: no states may enter %s", ErrInvalidTransition, next)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM conversations WHERE id = ?`, id).Scan(&current)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("checking conversation status: %w", err)
	}

	allowed := false
	for _, prev := range allowedPrev {
		if string(prev) == current {
			allowed = true
			break
		}
	}
	if !allowed {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE conversations SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		string(next), time.Now().UTC().Format(time.RFC3339), id, current,
	)
	if err != nil {
		return fmt.Errorf("updating conversation status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}

	if rec != nil {
		rec.Previous = current
		if err := insertAudit(ctx, tx, rec); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing status update: %w", err)
	}

	s.logger.Debug("updated conversation status", "id", id, "status", next)
	return nil
}

// DeleteConversation removes a conversation and its message ledger, and
// stamps the owning lead's last interaction with the deletion time.
// The lead record itself is never deleted here.
func (s *SQLiteStore) DeleteConversation(ctx context.Context, id string, deletedAt time.Time) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	var leadID string
	err = tx.QueryRowContext(ctx, `SELECT lead_id FROM conversations WHERE id = ?`, id).Scan(&leadID)
	if err == sql.ErrNoRows {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("querying conversation lead: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE conversation_id = ?`, id); err != nil {
		return fmt.Errorf("deleting messages: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversations WHERE id = ?`, id); err != nil {
		return fmt.Errorf("deleting conversation: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE leads SET last_interaction_at = ? WHERE id = ?`,
		deletedAt.UTC().Format(time.RFC3339), leadID,
	); err != nil {
		return fmt.Errorf("updating lead last interaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing conversation delete: %w", err)
	}

	s.logger.Debug("deleted conversation", "id", id, "lead_id", leadID)
	return nil
}

// Ensure SQLiteStore implements Store interface
var _ Store = (*SQLiteStore)(nil)
