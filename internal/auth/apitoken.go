// ABOUTME: Long-lived API tokens for service callers, stored as bcrypt hashes
// ABOUTME: Token format is "<id>.<secret>"; the secret is shown once at mint time

package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/2389/leadflow/internal/store"
)

// TokenStore defines what the API-token layer needs from persistence.
type TokenStore interface {
	CreateAPIToken(ctx context.Context, token *store.APIToken) error
	GetAPIToken(ctx context.Context, id string) (*store.APIToken, error)
}

// MintAPIToken creates a new API token and returns the plaintext
// "<id>.<secret>" credential. Only the bcrypt hash of the secret is stored,
// so the returned string cannot be recovered later.
func MintAPIToken(ctx context.Context, st TokenStore, name string) (string, error) {
	secretBytes := make([]byte, 32)
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generating token secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(secretBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hashing token secret: %w", err)
	}

	token := &store.APIToken{
		ID:         uuid.New().String(),
		Name:       name,
		SecretHash: string(hash),
		CreatedAt:  time.Now().UTC(),
	}
	if err := st.CreateAPIToken(ctx, token); err != nil {
		return "", err
	}

	return token.ID + "." + secret, nil
}

// VerifyAPIToken checks a plaintext "<id>.<secret>" credential against the
// stored hash and returns the token's actor identity.
func VerifyAPIToken(ctx context.Context, st TokenStore, credential string) (*Actor, error) {
	id, secret, ok := strings.Cut(credential, ".")
	if !ok || id == "" || secret == "" {
		return nil, ErrInvalidToken
	}

	token, err := st.GetAPIToken(ctx, id)
	if err != nil {
		return nil, ErrInvalidToken
	}

	if err := bcrypt.CompareHashAndPassword([]byte(token.SecretHash), []byte(secret)); err != nil {
		return nil, ErrInvalidToken
	}

	return &Actor{ID: token.Name, Role: "service"}, nil
}
