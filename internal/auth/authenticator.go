// Package auth resolves bearer tokens to actors.
//
// Tokens are opaque strings handed to staff and integration clients out of
// band. Only a SHA-256 hash is stored, so a database leak does not leak the
// tokens themselves, while the hash stays directly searchable (unlike a
// salted hash).
package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"time"

	"slotbook/internal/types"
)

// HashToken produces the hex-encoded SHA-256 digest stored and searched in
// the tokens table.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}

// GenerateToken produces a new opaque bearer token. The raw value is shown
// to the caller exactly once; only its hash is persisted.
func GenerateToken() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to generate token", err)
	}
	return "sbt_" + hex.EncodeToString(b), nil
}

// TokenRecord is a persisted API token. ActorType distinguishes staff
// tokens from client and system tokens.
type TokenRecord struct {
	ID             string          `db:"id"`
	TokenHash      string          `db:"token_hash"`
	ActorID        string          `db:"actor_id"`
	ActorType      types.ActorType `db:"actor_type"`
	OrganizationID string          `db:"organization_id"`
	ExpiresAt      *time.Time      `db:"expires_at"`
	RevokedAt      *time.Time      `db:"revoked_at"`
	CreatedAt      time.Time       `db:"created_at"`
}

// TokenStore looks up tokens by hash.
type TokenStore interface {
	// GetByHash returns the token record for the hash, or an AppError with
	// code auth_token_invalid when no such token exists.
	//
	// SQL: SELECT ... FROM api_tokens WHERE token_hash = $1
	GetByHash(ctx context.Context, hash string) (*TokenRecord, error)
}

// Authenticator implements the core.Authenticator contract over a TokenStore.
type Authenticator struct {
	store  TokenStore
	logger *slog.Logger
}

// NewAuthenticator creates a token authenticator.
func NewAuthenticator(store TokenStore, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{store: store, logger: logger}
}

// ResolveToken hashes the presented token, looks it up, and rejects revoked
// or expired records. Expiry is checked at resolution time rather than
// swept, so a token dies the moment its expiry passes.
func (a *Authenticator) ResolveToken(ctx context.Context, token string) (types.Actor, error) {
	record, err := a.store.GetByHash(ctx, HashToken(token))
	if err != nil {
		return types.Actor{}, err
	}

	now := time.Now().UTC()
	if record.RevokedAt != nil {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token has been revoked", nil)
	}
	if record.ExpiresAt != nil && !record.ExpiresAt.After(now) {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "token has expired", nil)
	}

	return types.Actor{
		ID:             record.ActorID,
		Type:           record.ActorType,
		OrganizationID: record.OrganizationID,
	}, nil
}
