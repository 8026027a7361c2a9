package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"slotbook/internal/auth"
	"slotbook/internal/types"
)

// tokenColumns is the canonical column list for api_tokens queries.
const tokenColumns = `t.id, t.token_hash, t.actor_id, t.actor_type, t.organization_id, t.expires_at, t.revoked_at, t.created_at`

// TokenRepository provides data access for API tokens. Implements the
// auth.TokenStore interface.
type TokenRepository struct {
	db DBTX
}

// NewTokenRepository creates a new TokenRepository.
func NewTokenRepository(db DBTX) *TokenRepository {
	return &TokenRepository{db: db}
}

func scanToken(row pgx.Row) (*auth.TokenRecord, error) {
	var (
		record auth.TokenRecord
		orgID  *string // NULL for system tokens
	)
	err := row.Scan(
		&record.ID,
		&record.TokenHash,
		&record.ActorID,
		&record.ActorType,
		&orgID,
		&record.ExpiresAt,
		&record.RevokedAt,
		&record.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if orgID != nil {
		record.OrganizationID = *orgID
	}
	return &record, nil
}

// Create inserts a new token record. The caller is responsible for hashing;
// raw tokens never reach this layer.
func (r *TokenRepository) Create(ctx context.Context, record *auth.TokenRecord) error {
	_, err := r.db.Exec(ctx,
		`INSERT INTO api_tokens (id, token_hash, actor_id, actor_type, organization_id, expires_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()))`,
		record.ID,
		record.TokenHash,
		record.ActorID,
		record.ActorType,
		nilIfEmpty(record.OrganizationID),
		record.ExpiresAt,
		nilIfZeroTime(record.CreatedAt),
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to create token", err)
	}
	return nil
}

// GetByHash returns the token record for a hash.
func (r *TokenRepository) GetByHash(ctx context.Context, hash string) (*auth.TokenRecord, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+tokenColumns+`
		 FROM api_tokens t
		 WHERE t.token_hash = $1`,
		hash,
	)
	record, err := scanToken(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "unknown token", nil)
		}
		return nil, types.NewAppError(types.ErrCodeInternalDB, "failed to get token", err)
	}
	return record, nil
}

// Revoke marks a token revoked. Revocation is permanent.
func (r *TokenRepository) Revoke(ctx context.Context, id string, now time.Time) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE api_tokens
		 SET revoked_at = $1
		 WHERE id = $2 AND revoked_at IS NULL`,
		now, id,
	)
	if err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "failed to revoke token", err)
	}
	if tag.RowsAffected() == 0 {
		return types.NewAppError(types.ErrCodeAuthTokenInvalid, "token not found or already revoked", nil)
	}
	return nil
}
