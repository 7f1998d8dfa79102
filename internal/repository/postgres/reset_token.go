package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/AhmadZeb/SecurityApi/internal/domain"
)

// ResetTokenRepository implements the password reset token store on PostgreSQL.
type ResetTokenRepository struct {
	db DB
}

// NewResetTokenRepository creates a new PostgreSQL-backed reset token repository.
func NewResetTokenRepository(db DB) *ResetTokenRepository {
	return &ResetTokenRepository{db: db}
}

// Create inserts a new reset token record.
func (r *ResetTokenRepository) Create(ctx context.Context, t *domain.ResetToken) error {
	query := `
		INSERT INTO password_reset_tokens (id, user_id, token_hash, issued_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := r.db.Exec(ctx, query,
		t.ID,
		t.UserID,
		t.TokenHash,
		t.IssuedAt,
		t.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert reset token: %w", err)
	}

	return nil
}

// Consume marks the token consumed in one conditional update, the same
// pattern the refresh token ledger uses for redemption.
func (r *ResetTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error) {
	query := `
		UPDATE password_reset_tokens
		SET consumed_at = $2
		WHERE token_hash = $1
		  AND consumed_at IS NULL
		  AND expires_at > $2
		RETURNING id, user_id, token_hash, issued_at, expires_at, consumed_at`

	var t domain.ResetToken
	err := r.db.QueryRow(ctx, query, tokenHash, now).Scan(
		&t.ID,
		&t.UserID,
		&t.TokenHash,
		&t.IssuedAt,
		&t.ExpiresAt,
		&t.ConsumedAt,
	)
	if err == nil {
		return &t, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("consume reset token: %w", err)
	}

	return nil, r.classifyConsumeFailure(ctx, tokenHash, now)
}

func (r *ResetTokenRepository) classifyConsumeFailure(ctx context.Context, tokenHash string, now time.Time) error {
	query := `
		SELECT expires_at, consumed_at
		FROM password_reset_tokens
		WHERE token_hash = $1`

	var expiresAt time.Time
	var consumedAt *time.Time
	err := r.db.QueryRow(ctx, query, tokenHash).Scan(&expiresAt, &consumedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrTokenNotFound
		}
		return fmt.Errorf("classify consume failure: %w", err)
	}

	if !now.Before(expiresAt) {
		return domain.ErrTokenExpired
	}
	if consumedAt != nil {
		return domain.ErrTokenUsed
	}
	return fmt.Errorf("reset token in inconsistent state")
}

// DeleteExpired removes reset token records whose expiry predates the cutoff.
func (r *ResetTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM password_reset_tokens WHERE expires_at < $1`

	ct, err := r.db.Exec(ctx, query, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired reset tokens: %w", err)
	}

	return ct.RowsAffected(), nil
}
