package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AhmadZeb/SecurityApi/internal/domain"
)

func newTokenTestFixture(t *testing.T) (*RefreshTokenRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	repo := NewRefreshTokenRepository(mock)
	return repo, mock
}

func sampleToken() *domain.RefreshToken {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.RefreshToken{
		ID:        "a2a4bd5e-93f2-4a0a-b6a8-1dc3b86a0002",
		UserID:    "2f1d8e1a-7b77-4f43-9c55-0a4d2c7ef001",
		TokenHash: "aaaabbbbccccddddeeeeffff0000111122223333444455556666777788889999",
		IssuedAt:  now,
		ExpiresAt: now.Add(168 * time.Hour),
	}
}

func tokenColumns() []string {
	return []string{"id", "user_id", "token_hash", "issued_at", "expires_at", "used_at", "revoked_at"}
}

func tokenRow(tk *domain.RefreshToken) *pgxmock.Rows {
	return pgxmock.NewRows(tokenColumns()).AddRow(
		tk.ID, tk.UserID, tk.TokenHash, tk.IssuedAt, tk.ExpiresAt, tk.UsedAt, tk.RevokedAt,
	)
}

func TestRefreshTokenRepository_Create(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	tk := sampleToken()

	mock.ExpectExec("INSERT INTO refresh_tokens").
		WithArgs(tk.ID, tk.UserID, tk.TokenHash, tk.IssuedAt, tk.ExpiresAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := repo.Create(context.Background(), tk)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_GetByHash_NotFound(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token_hash").
		WithArgs("unknown-hash").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.GetByHash(context.Background(), "unknown-hash")
	assert.Nil(t, got)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Redeem_Success(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	tk := sampleToken()
	now := time.Now().UTC().Truncate(time.Microsecond)
	redeemed := *tk
	redeemed.UsedAt = &now

	mock.ExpectQuery("UPDATE refresh_tokens").
		WithArgs(tk.TokenHash, now).
		WillReturnRows(tokenRow(&redeemed))

	got, err := repo.Redeem(context.Background(), tk.TokenHash, now)
	require.NoError(t, err)
	assert.Equal(t, tk.UserID, got.UserID)
	require.NotNil(t, got.UsedAt)
	assert.Equal(t, now, *got.UsedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Redeem_NotFound(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()

	mock.ExpectQuery("UPDATE refresh_tokens").
		WithArgs("unknown-hash", now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token_hash").
		WithArgs("unknown-hash").
		WillReturnError(pgx.ErrNoRows)

	got, err := repo.Redeem(context.Background(), "unknown-hash", now)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, domain.ErrTokenNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Redeem_AlreadyUsed(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	tk := sampleToken()
	now := time.Now().UTC().Truncate(time.Microsecond)
	usedAt := now.Add(-time.Minute)
	tk.UsedAt = &usedAt

	mock.ExpectQuery("UPDATE refresh_tokens").
		WithArgs(tk.TokenHash, now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token_hash").
		WithArgs(tk.TokenHash).
		WillReturnRows(tokenRow(tk))

	got, err := repo.Redeem(context.Background(), tk.TokenHash, now)
	assert.Nil(t, got)
	assert.ErrorIs(t, err, domain.ErrTokenUsed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Redeem_ExpiredBeatsUsed(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	// A token that is both expired and used reports expiry.
	tk := sampleToken()
	now := time.Now().UTC().Truncate(time.Microsecond)
	tk.ExpiresAt = now.Add(-time.Hour)
	usedAt := now.Add(-2 * time.Hour)
	tk.UsedAt = &usedAt

	mock.ExpectQuery("UPDATE refresh_tokens").
		WithArgs(tk.TokenHash, now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token_hash").
		WithArgs(tk.TokenHash).
		WillReturnRows(tokenRow(tk))

	_, err := repo.Redeem(context.Background(), tk.TokenHash, now)
	assert.ErrorIs(t, err, domain.ErrTokenExpired)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Redeem_Revoked(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	tk := sampleToken()
	now := time.Now().UTC().Truncate(time.Microsecond)
	revokedAt := now.Add(-time.Minute)
	tk.RevokedAt = &revokedAt

	mock.ExpectQuery("UPDATE refresh_tokens").
		WithArgs(tk.TokenHash, now).
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery("SELECT .+ FROM refresh_tokens WHERE token_hash").
		WithArgs(tk.TokenHash).
		WillReturnRows(tokenRow(tk))

	_, err := repo.Redeem(context.Background(), tk.TokenHash, now)
	assert.ErrorIs(t, err, domain.ErrTokenRevoked)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_Revoke(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()

	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("some-hash", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := repo.Revoke(context.Background(), "some-hash", now)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_RevokeAllForUser(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	now := time.Now().UTC()

	mock.ExpectExec("UPDATE refresh_tokens").
		WithArgs("user-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 3))

	err := repo.RevokeAllForUser(context.Background(), "user-1", now)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefreshTokenRepository_DeleteExpired(t *testing.T) {
	repo, mock := newTokenTestFixture(t)
	defer mock.Close()

	cutoff := time.Now().UTC().Add(-720 * time.Hour)

	mock.ExpectExec("DELETE FROM refresh_tokens").
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 42))

	n, err := repo.DeleteExpired(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
