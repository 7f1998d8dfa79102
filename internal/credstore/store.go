// Package credstore is the credential store: it owns password hashing and
// verification, user account persistence, and the password reset token
// lifecycle. Callers never see password hashes or raw bcrypt errors.
package credstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/AhmadZeb/SecurityApi/internal/auth"
	"github.com/AhmadZeb/SecurityApi/internal/domain"
	"github.com/AhmadZeb/SecurityApi/internal/repository"
	apperrors "github.com/AhmadZeb/SecurityApi/pkg/errors"
)

// minPasswordLength is the minimum password length accepted.
const minPasswordLength = 8

// maxPasswordLength caps passwords at bcrypt's 72-byte input limit.
const maxPasswordLength = 72

// Store implements credential storage over the user and reset token
// repositories.
type Store struct {
	users    repository.UserRepository
	resets   repository.ResetTokenRepository
	cost     int
	resetTTL time.Duration
}

// New creates a credential store. cost is the bcrypt cost factor; resetTTL
// bounds the lifetime of issued password reset tokens.
func New(users repository.UserRepository, resets repository.ResetTokenRepository, cost int, resetTTL time.Duration) *Store {
	return &Store{
		users:    users,
		resets:   resets,
		cost:     cost,
		resetTTL: resetTTL,
	}
}

// ResetTTL returns the configured reset token lifetime.
func (s *Store) ResetTTL() time.Duration {
	return s.resetTTL
}

// FindByID looks up a user by ID.
func (s *Store) FindByID(ctx context.Context, id string) (*domain.User, error) {
	return s.users.GetByID(ctx, id)
}

// FindByUsername looks up a user by username, case-insensitively.
func (s *Store) FindByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.users.GetByUsername(ctx, username)
}

// FindByEmail looks up a user by email, case-insensitively.
func (s *Store) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.users.GetByEmail(ctx, email)
}

// Create hashes the password and persists a new user account.
func (s *Store) Create(ctx context.Context, username, email, password string, now time.Time) (*domain.User, error) {
	if err := ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	return user, nil
}

// VerifyPassword checks a candidate password against the user's stored
// hash. Any mismatch comes back as domain.ErrInvalidCredentials.
func (s *Store) VerifyPassword(user *domain.User, password string) error {
	err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password))
	if err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return domain.ErrInvalidCredentials
		}
		return fmt.Errorf("compare password: %w", err)
	}
	return nil
}

// ChangePassword hashes and stores a new password for the user.
func (s *Store) ChangePassword(ctx context.Context, userID, newPassword string, now time.Time) error {
	if err := ValidatePassword(newPassword); err != nil {
		return err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.users.UpdatePassword(ctx, userID, string(hash), now)
}

// IssueResetToken mints a single-use password reset token for the user and
// returns its opaque value. Only the digest is persisted.
func (s *Store) IssueResetToken(ctx context.Context, userID string, now time.Time) (string, error) {
	value, err := auth.GenerateResetValue()
	if err != nil {
		return "", err
	}

	token := &domain.ResetToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: auth.HashToken(value),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.resetTTL),
	}

	if err := s.resets.Create(ctx, token); err != nil {
		return "", err
	}

	return value, nil
}

// ConsumeResetToken redeems a reset token by its opaque value. A token can
// be consumed at most once; repeat attempts report domain.ErrTokenUsed.
func (s *Store) ConsumeResetToken(ctx context.Context, value string, now time.Time) (*domain.ResetToken, error) {
	return s.resets.Consume(ctx, auth.HashToken(value), now)
}

// ValidatePassword enforces the password policy shared by registration and
// password reset.
func ValidatePassword(password string) error {
	if len(password) < minPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}
	if len(password) > maxPasswordLength {
		return apperrors.InvalidInput(fmt.Sprintf("password must be at most %d characters", maxPasswordLength))
	}
	return nil
}
