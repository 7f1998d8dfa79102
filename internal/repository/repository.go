// Package repository defines the persistence interfaces consumed by the
// service layer. Implementations live in subpackages.
package repository

import (
	"context"
	"time"

	"github.com/AhmadZeb/SecurityApi/internal/domain"
)

// UserRepository persists user accounts.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	GetByID(ctx context.Context, id string) (*domain.User, error)
	GetByUsername(ctx context.Context, username string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string, now time.Time) error
}

// RefreshTokenRepository is the refresh token ledger. Tokens are addressed
// by the SHA-256 digest of their opaque value, never by the value itself.
type RefreshTokenRepository interface {
	Create(ctx context.Context, token *domain.RefreshToken) error
	GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error)

	// Redeem marks the token used in a single conditional update. It
	// succeeds at most once per token across concurrent callers; every
	// failed attempt returns one of the domain token error kinds.
	Redeem(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error)

	Revoke(ctx context.Context, tokenHash string, now time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, now time.Time) error

	// DeleteExpired removes tokens whose expiry predates the cutoff and
	// returns the number of rows deleted.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// ResetTokenRepository persists single-use password reset tokens.
type ResetTokenRepository interface {
	Create(ctx context.Context, token *domain.ResetToken) error

	// Consume marks the token consumed in a single conditional update,
	// returning domain.ErrTokenNotFound, ErrTokenExpired or ErrTokenUsed
	// on failure.
	Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error)

	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
