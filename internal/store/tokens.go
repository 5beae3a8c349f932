// ABOUTME: API token persistence for service callers
// ABOUTME: Tokens are stored as bcrypt hashes; the plaintext secret is shown once at mint time

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// APIToken is a long-lived credential for service callers. SecretHash is a
// bcrypt hash; the plaintext secret never touches the database.
type APIToken struct {
	ID         string
	Name       string
	SecretHash string
	CreatedAt  time.Time
}

// CreateAPIToken stores a new API token.
func (s *SQLiteStore) CreateAPIToken(ctx context.Context, token *APIToken) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO api_tokens (id, name, secret_hash, created_at)
		VALUES (?, ?, ?, ?)
	`,
		token.ID,
		token.Name,
		token.SecretHash,
		token.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isConstraintViolation(err) {
			return fmt.Errorf("%w: token %s", ErrConflict, token.ID)
		}
		return fmt.Errorf("inserting api token: %w", err)
	}

	s.logger.Debug("created api token", "id", token.ID, "name", token.Name)
	return nil
}

// GetAPIToken retrieves an API token by ID.
func (s *SQLiteStore) GetAPIToken(ctx context.Context, id string) (*APIToken, error) {
	var token APIToken
	var createdAtStr string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, secret_hash, created_at FROM api_tokens WHERE id = ?`, id,
	).Scan(&token.ID, &token.Name, &token.SecretHash, &createdAtStr)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying api token: %w", err)
	}

	token.CreatedAt, err = time.Parse(time.RFC3339, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}
	return &token, nil
}
