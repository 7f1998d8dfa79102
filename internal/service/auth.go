// Package service implements the auth business logic: registration, login,
// refresh token rotation, logout and password reset.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/AhmadZeb/SecurityApi/internal/auth"
	"github.com/AhmadZeb/SecurityApi/internal/credstore"
	"github.com/AhmadZeb/SecurityApi/internal/domain"
	"github.com/AhmadZeb/SecurityApi/internal/event"
	"github.com/AhmadZeb/SecurityApi/internal/repository"
	apperrors "github.com/AhmadZeb/SecurityApi/pkg/errors"
)

// AuthService orchestrates the credential store, the refresh token ledger
// and the access token issuer.
type AuthService struct {
	creds      *credstore.Store
	tokens     repository.RefreshTokenRepository
	jwtManager *auth.JWTManager
	producer   *event.Producer
	logger     *slog.Logger
	refreshTTL time.Duration

	// exposeResetToken echoes password reset tokens in API responses.
	// Development only; production delivery goes through the
	// user.password_reset event.
	exposeResetToken bool
}

// NewAuthService creates the auth service.
func NewAuthService(
	creds *credstore.Store,
	tokens repository.RefreshTokenRepository,
	jwtManager *auth.JWTManager,
	producer *event.Producer,
	logger *slog.Logger,
	refreshTTL time.Duration,
	exposeResetToken bool,
) *AuthService {
	return &AuthService{
		creds:            creds,
		tokens:           tokens,
		jwtManager:       jwtManager,
		producer:         producer,
		logger:           logger,
		refreshTTL:       refreshTTL,
		exposeResetToken: exposeResetToken,
	}
}

// RegisterInput holds the parameters for registering a new user.
type RegisterInput struct {
	Username string
	Email    string
	Password string
}

// LoginInput holds the parameters for user login.
type LoginInput struct {
	Username string
	Password string
}

// Register creates a new user account. Conflicts are reported per field,
// email first, matching the order clients see during signup.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*domain.User, error) {
	if input.Username == "" {
		return nil, apperrors.InvalidInput("username is required")
	}
	if input.Email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}

	if _, err := s.creds.FindByEmail(ctx, input.Email); err == nil {
		return nil, apperrors.AlreadyExists("user", "email", input.Email)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("check email: %w", err)
	}

	if _, err := s.creds.FindByUsername(ctx, input.Username); err == nil {
		return nil, apperrors.AlreadyExists("user", "username", input.Username)
	} else if !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("check username: %w", err)
	}

	now := time.Now().UTC()
	user, err := s.creds.Create(ctx, input.Username, input.Email, input.Password, now)
	if err != nil {
		return nil, err
	}

	// Publish registration event (non-blocking on failure).
	if err := s.producer.PublishUserRegistered(ctx, user); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.registered event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user registered",
		slog.String("user_id", user.ID),
		slog.String("username", user.Username),
	)

	return user, nil
}

// Login authenticates a user by username and password and mints a token
// pair. Unknown username and wrong password produce the same error.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*domain.User, *domain.TokenPair, error) {
	user, err := s.creds.FindByUsername(ctx, input.Username)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, nil, invalidCredentials()
		}
		return nil, nil, fmt.Errorf("find user: %w", err)
	}

	if err := s.creds.VerifyPassword(user, input.Password); err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) {
			return nil, nil, invalidCredentials()
		}
		return nil, nil, err
	}

	tokens, err := s.mintTokenPair(ctx, user, time.Now().UTC())
	if err != nil {
		return nil, nil, err
	}

	s.logger.InfoContext(ctx, "user logged in",
		slog.String("user_id", user.ID),
	)

	return user, tokens, nil
}

// Refresh exchanges a refresh token for a fresh token pair. The presented
// token is atomically marked used; every failure mode maps to the same 401
// so callers cannot probe ledger state.
func (s *AuthService) Refresh(ctx context.Context, refreshValue string) (*domain.TokenPair, error) {
	tokenHash := auth.HashToken(refreshValue)
	now := time.Now().UTC()

	redeemed, err := s.tokens.Redeem(ctx, tokenHash, now)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTokenUsed):
			s.reportTokenReuse(ctx, tokenHash, now)
			return nil, invalidRefreshToken(err)
		case errors.Is(err, domain.ErrTokenNotFound),
			errors.Is(err, domain.ErrTokenExpired),
			errors.Is(err, domain.ErrTokenRevoked):
			s.logger.WarnContext(ctx, "refresh rejected",
				slog.String("reason", err.Error()),
			)
			return nil, invalidRefreshToken(err)
		default:
			return nil, fmt.Errorf("redeem refresh token: %w", err)
		}
	}

	user, err := s.creds.FindByID(ctx, redeemed.UserID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Account deleted after the token was minted.
			return nil, invalidRefreshToken(domain.ErrTokenRevoked)
		}
		return nil, fmt.Errorf("find token owner: %w", err)
	}

	tokens, err := s.mintTokenPair(ctx, user, now)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "refresh token rotated",
		slog.String("user_id", user.ID),
		slog.String("token_id", redeemed.ID),
	)

	return tokens, nil
}

// Logout revokes every active refresh token belonging to the user.
func (s *AuthService) Logout(ctx context.Context, userID string) error {
	now := time.Now().UTC()
	if err := s.tokens.RevokeAllForUser(ctx, userID, now); err != nil {
		return fmt.Errorf("revoke tokens: %w", err)
	}

	s.logger.InfoContext(ctx, "user logged out",
		slog.String("user_id", userID),
	)

	return nil
}

// RequestPasswordReset issues a reset token for the account behind the
// email. The token value is published for out-of-band delivery; it is also
// returned to the caller when the service is configured to expose it.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	user, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return "", apperrors.InvalidInput("no account for that email address")
		}
		return "", fmt.Errorf("find user: %w", err)
	}

	now := time.Now().UTC()
	value, err := s.creds.IssueResetToken(ctx, user.ID, now)
	if err != nil {
		return "", fmt.Errorf("issue reset token: %w", err)
	}

	if err := s.producer.PublishUserPasswordReset(ctx, user, value, now.Add(s.creds.ResetTTL())); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish user.password_reset event",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "password reset requested",
		slog.String("user_id", user.ID),
	)

	if s.exposeResetToken {
		return value, nil
	}
	return "", nil
}

// ResetPassword sets a new password for the account behind the email. A
// fresh reset token is minted and immediately consumed server-side, leaving
// a consumed row in the store as the audit record of the reset. Afterwards
// all of the account's refresh tokens are revoked so stolen sessions cannot
// outlive the reset.
func (s *AuthService) ResetPassword(ctx context.Context, email, newPassword string) error {
	user, err := s.creds.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return apperrors.InvalidInput("no account for that email address")
		}
		return fmt.Errorf("find user: %w", err)
	}

	now := time.Now().UTC()

	value, err := s.creds.IssueResetToken(ctx, user.ID, now)
	if err != nil {
		return fmt.Errorf("issue reset token: %w", err)
	}

	if _, err := s.creds.ConsumeResetToken(ctx, value, now); err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}

	if err := s.creds.ChangePassword(ctx, user.ID, newPassword, now); err != nil {
		return err
	}

	if err := s.tokens.RevokeAllForUser(ctx, user.ID, now); err != nil {
		return fmt.Errorf("revoke tokens after reset: %w", err)
	}

	s.logger.InfoContext(ctx, "password reset completed",
		slog.String("user_id", user.ID),
	)

	return nil
}

// ValidateAccessToken verifies an access token and returns the user ID and
// token ID it carries. Used by the HTTP auth middleware.
func (s *AuthService) ValidateAccessToken(tokenString string) (userID, tokenID string, err error) {
	claims, err := s.jwtManager.ValidateAccessToken(tokenString)
	if err != nil {
		return "", "", apperrors.Unauthorized("invalid or expired token")
	}
	return claims.Subject, claims.ID, nil
}

// mintTokenPair issues an access token and appends a fresh refresh token to
// the ledger.
func (s *AuthService) mintTokenPair(ctx context.Context, user *domain.User, now time.Time) (*domain.TokenPair, error) {
	accessToken, err := s.jwtManager.IssueAccessToken(user, now)
	if err != nil {
		return nil, err
	}

	refreshValue, err := auth.GenerateRefreshValue()
	if err != nil {
		return nil, err
	}

	record := &domain.RefreshToken{
		ID:        uuid.NewString(),
		UserID:    user.ID,
		TokenHash: auth.HashToken(refreshValue),
		IssuedAt:  now,
		ExpiresAt: now.Add(s.refreshTTL),
	}

	if err := s.tokens.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshValue,
	}, nil
}

// reportTokenReuse logs and publishes a reuse of an already-redeemed
// refresh token. Best effort: the caller still gets a uniform 401.
func (s *AuthService) reportTokenReuse(ctx context.Context, tokenHash string, now time.Time) {
	token, err := s.tokens.GetByHash(ctx, tokenHash)
	if err != nil {
		s.logger.WarnContext(ctx, "refresh token reuse detected, record unavailable",
			slog.String("error", err.Error()),
		)
		return
	}

	s.logger.WarnContext(ctx, "refresh token reuse detected",
		slog.String("user_id", token.UserID),
		slog.String("token_id", token.ID),
	)

	if err := s.producer.PublishTokenReuse(ctx, token, now); err != nil {
		s.logger.ErrorContext(ctx, "failed to publish auth.token_reuse event",
			slog.String("token_id", token.ID),
			slog.String("error", err.Error()),
		)
	}
}

func invalidCredentials() error {
	return &apperrors.AppError{
		Code:    "UNAUTHORIZED",
		Message: "invalid login credentials",
		Status:  http.StatusUnauthorized,
		Err:     domain.ErrInvalidCredentials,
	}
}

func invalidRefreshToken(err error) error {
	return &apperrors.AppError{
		Code:    "UNAUTHORIZED",
		Message: "invalid or expired refresh token",
		Status:  http.StatusUnauthorized,
		Err:     err,
	}
}
