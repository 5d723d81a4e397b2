package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"zoneatlas/internal/types"
)

// TokenRepo provides data access for the api_tokens table. Tokens are
// looked up by their clear-text prefix; the secret portion is verified
// against the stored bcrypt hash by the auth service.
type TokenRepo struct {
	db DBTX
}

// NewTokenRepo creates a new TokenRepo backed by the given database
// connection (pool or transaction).
func NewTokenRepo(db DBTX) *TokenRepo {
	return &TokenRepo{db: db}
}

// FindByPrefix returns the token record with the given prefix,
// including revoked and expired tokens. The caller decides how to
// treat those so the error surfaced to the client can distinguish a
// revoked token from an unknown one.
func (r *TokenRepo) FindByPrefix(ctx context.Context, prefix string) (*types.APIToken, error) {
	const query = `
		SELECT id, user_id, name, prefix, secret_hash, is_test_mode,
		       revoked_at, expires_at, last_used_at, created_at
		FROM api_tokens
		WHERE prefix = $1`

	var t types.APIToken
	err := r.db.QueryRow(ctx, query, prefix).Scan(
		&t.ID, &t.UserID, &t.Name, &t.Prefix, &t.SecretHash, &t.IsTestMode,
		&t.RevokedAt, &t.ExpiresAt, &t.LastUsedAt, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, types.NewAppError(types.ErrCodeAuthTokenInvalid, "unknown token", err)
	}
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalDB, "token query failed", err)
	}
	return &t, nil
}

// TouchLastUsed records token usage. Best effort; callers log and
// continue on failure.
func (r *TokenRepo) TouchLastUsed(ctx context.Context, id uuid.UUID) error {
	const query = `UPDATE api_tokens SET last_used_at = now() WHERE id = $1`
	if _, err := r.db.Exec(ctx, query, id); err != nil {
		return types.NewAppError(types.ErrCodeInternalDB, "token touch failed", err)
	}
	return nil
}
