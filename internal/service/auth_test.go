package service

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/AhmadZeb/SecurityApi/internal/auth"
	"github.com/AhmadZeb/SecurityApi/internal/credstore"
	"github.com/AhmadZeb/SecurityApi/internal/domain"
	"github.com/AhmadZeb/SecurityApi/internal/event"
	apperrors "github.com/AhmadZeb/SecurityApi/pkg/errors"
	pkgkafka "github.com/AhmadZeb/SecurityApi/pkg/kafka"
)

// --- Mock User Repository ---

type mockUserRepository struct {
	mock.Mock
}

func (m *mockUserRepository) Create(ctx context.Context, user *domain.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByUsername(ctx context.Context, username string) (*domain.User, error) {
	args := m.Called(ctx, username)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.User), args.Error(1)
}

func (m *mockUserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string, now time.Time) error {
	args := m.Called(ctx, userID, passwordHash, now)
	return args.Error(0)
}

// --- Mock Refresh Token Repository ---

type mockRefreshTokenRepository struct {
	mock.Mock
}

func (m *mockRefreshTokenRepository) Create(ctx context.Context, token *domain.RefreshToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) GetByHash(ctx context.Context, tokenHash string) (*domain.RefreshToken, error) {
	args := m.Called(ctx, tokenHash)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepository) Redeem(ctx context.Context, tokenHash string, now time.Time) (*domain.RefreshToken, error) {
	args := m.Called(ctx, tokenHash, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.RefreshToken), args.Error(1)
}

func (m *mockRefreshTokenRepository) Revoke(ctx context.Context, tokenHash string, now time.Time) error {
	args := m.Called(ctx, tokenHash, now)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) RevokeAllForUser(ctx context.Context, userID string, now time.Time) error {
	args := m.Called(ctx, userID, now)
	return args.Error(0)
}

func (m *mockRefreshTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// --- Mock Reset Token Repository ---

type mockResetTokenRepository struct {
	mock.Mock
}

func (m *mockResetTokenRepository) Create(ctx context.Context, token *domain.ResetToken) error {
	args := m.Called(ctx, token)
	return args.Error(0)
}

func (m *mockResetTokenRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (*domain.ResetToken, error) {
	args := m.Called(ctx, tokenHash, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.ResetToken), args.Error(1)
}

func (m *mockResetTokenRepository) DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	return args.Get(0).(int64), args.Error(1)
}

// --- Test Fixtures ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestEventProducer() *event.Producer {
	logger := newTestLogger()
	kafkaCfg := pkgkafka.DefaultProducerConfig([]string{"localhost:9092"})
	kafkaProducer := pkgkafka.NewProducer(kafkaCfg, logger)
	return event.NewProducer(kafkaProducer, logger)
}

func newTestService(
	users *mockUserRepository,
	tokens *mockRefreshTokenRepository,
	resets *mockResetTokenRepository,
) *AuthService {
	logger := newTestLogger()
	creds := credstore.New(users, resets, bcrypt.MinCost, time.Hour)
	jwtManager := auth.NewJWTManager("test-secret-key-at-least-32-chars-long", "securityapi", 15*time.Minute)
	return NewAuthService(creds, tokens, jwtManager, newTestEventProducer(), logger, 168*time.Hour, true)
}

// newProductionService mirrors newTestService but keeps reset tokens
// out of responses, as a non-development deployment would.
func newProductionService(
	users *mockUserRepository,
	tokens *mockRefreshTokenRepository,
	resets *mockResetTokenRepository,
) *AuthService {
	logger := newTestLogger()
	creds := credstore.New(users, resets, bcrypt.MinCost, time.Hour)
	jwtManager := auth.NewJWTManager("test-secret-key-at-least-32-chars-long", "securityapi", 15*time.Minute)
	return NewAuthService(creds, tokens, jwtManager, newTestEventProducer(), logger, 168*time.Hour, false)
}

// hashForTest creates a bcrypt hash with minimum cost for fast tests.
func hashForTest(password string) string {
	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		panic(err)
	}
	return string(h)
}

func activeUser() *domain.User {
	now := time.Now().UTC()
	return &domain.User{
		ID:           "2f1d8e1a-7b77-4f43-9c55-0a4d2c7ef001",
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: hashForTest("correct horse battery"),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// --- Register Tests ---

func TestRegister_Success(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	users.On("GetByEmail", mock.Anything, "alice@example.com").Return(nil, apperrors.ErrNotFound)
	users.On("GetByUsername", mock.Anything, "alice").Return(nil, apperrors.ErrNotFound)
	users.On("Create", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)

	user, err := svc.Register(context.Background(), RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	assert.Equal(t, "alice", user.Username)
	assert.NotEmpty(t, user.ID)
	assert.NotEqual(t, "correct horse battery", user.PasswordHash)
	users.AssertExpectations(t)
}

func TestRegister_EmailConflictCheckedFirst(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	// Both username and email are taken; the email conflict wins.
	users.On("GetByEmail", mock.Anything, "alice@example.com").Return(activeUser(), nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "correct horse battery",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "email")
	users.AssertNotCalled(t, "GetByUsername", mock.Anything, mock.Anything)
	users.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestRegister_UsernameConflict(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	users.On("GetByEmail", mock.Anything, "new@example.com").Return(nil, apperrors.ErrNotFound)
	users.On("GetByUsername", mock.Anything, "alice").Return(activeUser(), nil)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "alice",
		Email:    "new@example.com",
		Password: "correct horse battery",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.Contains(t, err.Error(), "username")
}

func TestRegister_WeakPassword(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	users.On("GetByEmail", mock.Anything, "alice@example.com").Return(nil, apperrors.ErrNotFound)
	users.On("GetByUsername", mock.Anything, "alice").Return(nil, apperrors.ErrNotFound)

	_, err := svc.Register(context.Background(), RegisterInput{
		Username: "alice",
		Email:    "alice@example.com",
		Password: "short",
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

// --- Login Tests ---

func TestLogin_Success(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	user := activeUser()
	users.On("GetByUsername", mock.Anything, "alice").Return(user, nil)
	tokens.On("Create", mock.Anything, mock.MatchedBy(func(tk *domain.RefreshToken) bool {
		return tk.UserID == user.ID && tk.TokenHash != "" && tk.ExpiresAt.After(tk.IssuedAt)
	})).Return(nil)

	got, pair, err := svc.Login(context.Background(), LoginInput{
		Username: "alice",
		Password: "correct horse battery",
	})
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEmpty(t, pair.RefreshToken)
	tokens.AssertExpectations(t)
}

func TestLogin_UnknownUserAndWrongPasswordLookAlike(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	users.On("GetByUsername", mock.Anything, "ghost").Return(nil, apperrors.ErrNotFound)
	users.On("GetByUsername", mock.Anything, "alice").Return(activeUser(), nil)

	_, _, errUnknown := svc.Login(context.Background(), LoginInput{Username: "ghost", Password: "whatever1"})
	_, _, errWrong := svc.Login(context.Background(), LoginInput{Username: "alice", Password: "wrong password"})

	require.Error(t, errUnknown)
	require.Error(t, errWrong)
	assert.ErrorIs(t, errUnknown, domain.ErrInvalidCredentials)
	assert.ErrorIs(t, errWrong, domain.ErrInvalidCredentials)
	assert.Equal(t, errUnknown.Error(), errWrong.Error())
	tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// --- Refresh Tests ---

func TestRefresh_Success_RotatesToken(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	user := activeUser()
	value := "opaque-refresh-value"
	now := time.Now().UTC()
	usedAt := now
	redeemed := &domain.RefreshToken{
		ID:        "old-token-id",
		UserID:    user.ID,
		TokenHash: auth.HashToken(value),
		IssuedAt:  now.Add(-time.Hour),
		ExpiresAt: now.Add(167 * time.Hour),
		UsedAt:    &usedAt,
	}

	tokens.On("Redeem", mock.Anything, auth.HashToken(value), mock.AnythingOfType("time.Time")).
		Return(redeemed, nil)
	users.On("GetByID", mock.Anything, user.ID).Return(user, nil)
	tokens.On("Create", mock.Anything, mock.MatchedBy(func(tk *domain.RefreshToken) bool {
		return tk.UserID == user.ID && tk.TokenHash != redeemed.TokenHash
	})).Return(nil)

	pair, err := svc.Refresh(context.Background(), value)
	require.NoError(t, err)
	assert.NotEmpty(t, pair.AccessToken)
	assert.NotEqual(t, value, pair.RefreshToken)
	tokens.AssertExpectations(t)
}

func TestRefresh_FailureModes_UniformError(t *testing.T) {
	kinds := []error{
		domain.ErrTokenNotFound,
		domain.ErrTokenExpired,
		domain.ErrTokenRevoked,
	}

	var messages []string
	for _, kind := range kinds {
		users := new(mockUserRepository)
		tokens := new(mockRefreshTokenRepository)
		resets := new(mockResetTokenRepository)
		svc := newTestService(users, tokens, resets)

		tokens.On("Redeem", mock.Anything, mock.Anything, mock.AnythingOfType("time.Time")).
			Return(nil, kind)

		_, err := svc.Refresh(context.Background(), "some-value")
		require.Error(t, err)
		assert.ErrorIs(t, err, kind)
		assert.Equal(t, 401, apperrors.HTTPStatus(err))

		var appErr *apperrors.AppError
		require.ErrorAs(t, err, &appErr)
		messages = append(messages, appErr.Message)
		tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	}

	// Every failure mode carries the identical client-facing message.
	for _, msg := range messages {
		assert.Equal(t, messages[0], msg)
	}
}

func TestRefresh_ReuseDetected(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	value := "already-used-value"
	hash := auth.HashToken(value)
	now := time.Now().UTC()
	usedAt := now.Add(-time.Minute)
	used := &domain.RefreshToken{
		ID:        "used-token-id",
		UserID:    "user-1",
		TokenHash: hash,
		IssuedAt:  now.Add(-time.Hour),
		ExpiresAt: now.Add(time.Hour),
		UsedAt:    &usedAt,
	}

	tokens.On("Redeem", mock.Anything, hash, mock.AnythingOfType("time.Time")).
		Return(nil, domain.ErrTokenUsed)
	tokens.On("GetByHash", mock.Anything, hash).Return(used, nil)

	_, err := svc.Refresh(context.Background(), value)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrTokenUsed)
	assert.Equal(t, 401, apperrors.HTTPStatus(err))
	tokens.AssertExpectations(t)
}

func TestRefresh_OwnerDeleted(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	value := "orphaned-value"
	now := time.Now().UTC()
	usedAt := now
	redeemed := &domain.RefreshToken{
		ID:        "orphan-token",
		UserID:    "deleted-user",
		TokenHash: auth.HashToken(value),
		ExpiresAt: now.Add(time.Hour),
		UsedAt:    &usedAt,
	}

	tokens.On("Redeem", mock.Anything, auth.HashToken(value), mock.AnythingOfType("time.Time")).
		Return(redeemed, nil)
	users.On("GetByID", mock.Anything, "deleted-user").Return(nil, apperrors.ErrNotFound)

	_, err := svc.Refresh(context.Background(), value)
	require.Error(t, err)
	assert.Equal(t, 401, apperrors.HTTPStatus(err))
	tokens.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

// --- Logout Tests ---

func TestLogout_RevokesAllUserTokens(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	tokens.On("RevokeAllForUser", mock.Anything, "user-1", mock.AnythingOfType("time.Time")).Return(nil)

	err := svc.Logout(context.Background(), "user-1")
	assert.NoError(t, err)
	tokens.AssertExpectations(t)
}

// --- Password Reset Tests ---

func TestRequestPasswordReset_Success(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	user := activeUser()
	users.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)
	resets.On("Create", mock.Anything, mock.MatchedBy(func(tk *domain.ResetToken) bool {
		return tk.UserID == user.ID
	})).Return(nil)

	value, err := svc.RequestPasswordReset(context.Background(), user.Email)
	require.NoError(t, err)
	// The test service is configured to expose the token.
	assert.NotEmpty(t, value)
	resets.AssertExpectations(t)
}

func TestRequestPasswordReset_TokenNotExposedInProduction(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newProductionService(users, tokens, resets)

	user := activeUser()
	users.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)
	resets.On("Create", mock.Anything, mock.MatchedBy(func(tk *domain.ResetToken) bool {
		return tk.UserID == user.ID
	})).Return(nil)

	value, err := svc.RequestPasswordReset(context.Background(), user.Email)
	require.NoError(t, err)
	// The token is still minted and stored, but never returned to the caller.
	assert.Empty(t, value)
	resets.AssertExpectations(t)
}

func TestRequestPasswordReset_UnknownEmail(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	users.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, apperrors.ErrNotFound)

	_, err := svc.RequestPasswordReset(context.Background(), "ghost@example.com")
	require.Error(t, err)
	assert.Equal(t, 400, apperrors.HTTPStatus(err))
	resets.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestResetPassword_MintsAndConsumesToken(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	user := activeUser()
	var mintedHash string

	users.On("GetByEmail", mock.Anything, user.Email).Return(user, nil)
	resets.On("Create", mock.Anything, mock.MatchedBy(func(tk *domain.ResetToken) bool {
		mintedHash = tk.TokenHash
		return tk.UserID == user.ID
	})).Return(nil)
	resets.On("Consume", mock.Anything, mock.MatchedBy(func(hash string) bool {
		// The freshly minted token is the one consumed.
		return hash == mintedHash
	}), mock.AnythingOfType("time.Time")).
		Return(&domain.ResetToken{ID: "rt-1", UserID: user.ID}, nil)
	users.On("UpdatePassword", mock.Anything, user.ID, mock.AnythingOfType("string"), mock.AnythingOfType("time.Time")).
		Return(nil)
	tokens.On("RevokeAllForUser", mock.Anything, user.ID, mock.AnythingOfType("time.Time")).Return(nil)

	err := svc.ResetPassword(context.Background(), user.Email, "a brand new passphrase")
	require.NoError(t, err)
	users.AssertExpectations(t)
	resets.AssertExpectations(t)
	tokens.AssertExpectations(t)
}

func TestResetPassword_UnknownEmail(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	users.On("GetByEmail", mock.Anything, "ghost@example.com").Return(nil, apperrors.ErrNotFound)

	err := svc.ResetPassword(context.Background(), "ghost@example.com", "a brand new passphrase")
	require.Error(t, err)
	assert.Equal(t, 400, apperrors.HTTPStatus(err))
	users.AssertNotCalled(t, "UpdatePassword", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

// --- Access Token Validation ---

func TestValidateAccessToken(t *testing.T) {
	users := new(mockUserRepository)
	tokens := new(mockRefreshTokenRepository)
	resets := new(mockResetTokenRepository)
	svc := newTestService(users, tokens, resets)

	jwtManager := auth.NewJWTManager("test-secret-key-at-least-32-chars-long", "securityapi", 15*time.Minute)
	token, err := jwtManager.IssueAccessToken(activeUser(), time.Now().UTC())
	require.NoError(t, err)

	userID, tokenID, err := svc.ValidateAccessToken(token)
	require.NoError(t, err)
	assert.Equal(t, activeUser().ID, userID)
	assert.NotEmpty(t, tokenID)

	_, _, err = svc.ValidateAccessToken("not-a-token")
	require.Error(t, err)
	assert.Equal(t, 401, apperrors.HTTPStatus(err))
}
