// ABOUTME: Session persistence for messaging-channel instances
// ABOUTME: Supersede-on-connect keeps at most one open session per bound address

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const sessionColumns = `instance_name, state, bound_address, profile_name, profile_pic_url, active, updated_at`

func scanSession(scanner interface{ Scan(dest ...any) error }) (*Session, error) {
	var sess Session
	var state, updatedAtStr string
	var active int

	if err := scanner.Scan(
		&sess.InstanceName,
		&state,
		&sess.BoundAddress,
		&sess.ProfileName,
		&sess.ProfilePicURL,
		&active,
		&updatedAtStr,
	); err != nil {
		return nil, err
	}

	sess.State = SessionState(state)
	sess.Active = active != 0

	var err error
	sess.UpdatedAt, err = time.Parse(time.RFC3339, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}
	return &sess, nil
}

// ConnectSession marks a session open and active, deactivating any other
// session bound to the same address in the same transaction. Duplicate
// connects during reconnection storms therefore converge on exactly one
// open session per address. Returns the instance names that were superseded.
func (s *SQLiteStore) ConnectSession(ctx context.Context, session *Session) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx,
		`SELECT instance_name FROM sessions WHERE bound_address = ? AND instance_name != ? AND active = 1`,
		session.BoundAddress, session.InstanceName,
	)
	if err != nil {
		return nil, fmt.Errorf("querying superseded sessions: %w", err)
	}
	var superseded []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scanning superseded session: %w", err)
		}
		superseded = append(superseded, name)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating superseded sessions: %w", err)
	}

	now := time.Now().UTC().Format(time.RFC3339)
	if len(superseded) > 0 {
		if _, err := tx.ExecContext(ctx,
			`UPDATE sessions SET active = 0, state = 'close', updated_at = ? WHERE bound_address = ? AND instance_name != ?`,
			now, session.BoundAddress, session.InstanceName,
		); err != nil {
			return nil, fmt.Errorf("deactivating superseded sessions: %w", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO sessions (instance_name, state, bound_address, profile_name, profile_pic_url, active, updated_at)
		VALUES (?, 'open', ?, ?, ?, 1, ?)
		ON CONFLICT(instance_name) DO UPDATE SET
			state = 'open',
			bound_address = excluded.bound_address,
			profile_name = excluded.profile_name,
			profile_pic_url = excluded.profile_pic_url,
			active = 1,
			updated_at = excluded.updated_at
	`,
		session.InstanceName,
		session.BoundAddress,
		session.ProfileName,
		session.ProfilePicURL,
		now,
	); err != nil {
		return nil, fmt.Errorf("upserting session: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing session connect: %w", err)
	}

	s.logger.Debug("connected session",
		"instance", session.InstanceName,
		"address", session.BoundAddress,
		"superseded", len(superseded),
	)
	return superseded, nil
}

// DisconnectSession marks a session closed and inactive.
// Returns ErrNotFound if the session doesn't exist.
func (s *SQLiteStore) DisconnectSession(ctx context.Context, instanceName string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET state = 'close', active = 0, updated_at = ? WHERE instance_name = ?`,
		time.Now().UTC().Format(time.RFC3339), instanceName,
	)
	if err != nil {
		return fmt.Errorf("disconnecting session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}

	s.logger.Debug("disconnected session", "instance", instanceName)
	return nil
}

// GetSession retrieves a session by instance name.
func (s *SQLiteStore) GetSession(ctx context.Context, instanceName string) (*Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE instance_name = ?`, instanceName)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session: %w", err)
	}
	return sess, nil
}

// GetOpenSessionByAddress retrieves the session currently serving an address:
// bound to it, active and open. Returns ErrNotFound when no exact match exists.
func (s *SQLiteStore) GetOpenSessionByAddress(ctx context.Context, address string) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE bound_address = ? AND active = 1 AND state = 'open' LIMIT 1`
	row := s.db.QueryRowContext(ctx, query, address)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying session by address: %w", err)
	}
	return sess, nil
}

// AnyOpenSession returns an arbitrary open, active session (most recently
// updated first). Used by the fallback matching policy.
func (s *SQLiteStore) AnyOpenSession(ctx context.Context) (*Session, error) {
	query := `SELECT ` + sessionColumns + ` FROM sessions WHERE active = 1 AND state = 'open' ORDER BY updated_at DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, query)
	sess, err := scanSession(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying any open session: %w", err)
	}
	return sess, nil
}
