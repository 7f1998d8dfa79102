package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/AhmadZeb/SecurityApi/internal/domain"
)

// RefreshTokenRepository implements the refresh token ledger on PostgreSQL.
type RefreshTokenRepository struct {
	db DB
}

// NewRefreshTokenRepository creates a new PostgreSQL-backed refresh token repository.
func NewRefreshTokenRepository(db DB) *RefreshTokenRepository {
	return &RefreshTokenRepository{db: db}
}

const refreshTokenColumns = `id, user_id, token_hash, issued_at, expires_at, used_at, revoked_at`

// Create appends a new token record to the ledger.
func (r *RefreshTokenRepository) Create(ctx context.Context, t *domain.RefreshToken) error {
	query := `
		INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query,
		t.ID,
		t.UserID,
		t.TokenHash,
		t.IssuedAt,
		t.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}

	return nil
}

// GetByHash retrieves a token record by the digest of its opaque value.
// The unique index on token_hash makes this a point lookup.
func (r *RefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	query := `
		SELECT ` + refreshTokenColumns + `
		FROM refresh_tokens
		WHERE token_hash = $1`

	t, err := r.scanToken(r.db.QueryRow(ctx, query, tokenHash))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, fmt.Errorf("scan refresh token: %w", err)
	}

	return t, nil
}

// Redeem marks the token used in one conditional update. The WHERE clause
// carries the full redeemability predicate, so when concurrent callers race
// on the same token exactly one gets the row back; there is no read-then-write
// sequence to interleave. On zero rows a follow-up read classifies the
// failure as not-found, expired, used or revoked, in that order.
func (r *RefreshTokenRepository) Redeem(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	query := `
		UPDATE refresh_tokens
		SET used_at = $2
		WHERE token_hash = $1
		  AND used_at IS NULL
		  AND revoked_at IS NULL
		  AND expires_at > $2
		RETURNING ` + refreshTokenColumns

	t, err := r.scanToken(r.db.QueryRow(ctx, query, tokenHash, now))
	if err == nil {
		return t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("redeem refresh token: %w", err)
	}

	return nil, r.classifyRedeemFailure(ctx, tokenHash, now)
}

// classifyRedeemFailure inspects the row after a failed redemption to
// report which redeemability condition the token violated.
func (r *RefreshTokenRepository) classifyRedeemFailure(ctx context.Context, tokenHash string, now time.Time) error {
	t, err := r.GetByHash(ctx, tokenHash)
	if err != nil {
		if errors.Is(err, domain.ErrTokenNotFound) {
			return domain.ErrTokenNotFound
		}
		return fmt.Errorf("classify redeem failure: %w", err)
	}

	if stateErr := t.StateError(now); stateErr != nil {
		return stateErr
	}

	// The update saw a non-redeemable row but the follow-up read does not.
	// Token states only move forward, so this cannot happen short of
	// storage corruption.
	return fmt.Errorf("refresh token %s in inconsistent state", t.ID)
}

// Revoke marks a single token revoked. Already-terminal tokens are left
// untouched; revoking an unknown token is not an error.
func (r *RefreshTokenRepository) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE token_hash = $1 AND revoked_at IS NULL AND used_at IS NULL`

	if _, err := r.db.Exec(ctx, query, tokenHash, now); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}

	return nil
}

// RevokeAllForUser revokes every still-active token belonging to the user.
func (r *RefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string, now time.Time) error {
	query := `
		UPDATE refresh_tokens
		SET revoked_at = $2
		WHERE user_id = $1 AND revoked_at IS NULL AND used_at IS NULL`

	if _, err := r.db.Exec(ctx, query, userID, now); err != nil {
		return fmt.Errorf("revoke refresh tokens by user: %w", err)
	}

	return nil
}

// DeleteExpired removes token records whose expiry predates the cutoff,
// regardless of their used or revoked flags.
func (r *RefreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM refresh_tokens WHERE expires_at < $1`

	ct, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired refresh tokens: %w", err)
	}

	return ct.RowsAffected(), nil
}

func (r *RefreshTokenRepository) scanToken(row pgx.Row) (*domain.RefreshToken, error) {
	var t domain.RefreshToken
	err := row.Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.IssuedAt,
		&t.ExpiresAt,
		&t.UsedAt,
		&t.RevokedAt,
	)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
