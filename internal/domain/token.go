package domain

import (
	"errors"
	"time"
)

// Refresh token failure kinds. All of them surface to clients as a uniform
// 401; they stay distinguishable internally for logging and reuse detection.
var (
	ErrTokenNotFound = errors.New("refresh token not found")
	ErrTokenExpired  = errors.New("refresh token expired")
	ErrTokenUsed     = errors.New("refresh token already used")
	ErrTokenRevoked  = errors.New("refresh token revoked")
)

// ErrInvalidCredentials is returned on any login failure. Unknown username
// and wrong password are deliberately indistinguishable.
var ErrInvalidCredentials = errors.New("invalid login credentials")

// RefreshToken is a single-use opaque credential tracked by the ledger.
// Only the SHA-256 digest of the opaque value is persisted; the value itself
// is handed to the client exactly once at mint time.
//
// used_at and revoked_at are each set at most once and never cleared.
type RefreshToken struct {
	ID        string     `json:"id"`
	UserID    string     `json:"user_id"`
	TokenHash string     `json:"-"`
	IssuedAt  time.Time  `json:"issued_at"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
}

// Used reports whether the token has been redeemed.
func (t *RefreshToken) Used() bool {
	return t.UsedAt != nil
}

// Revoked reports whether the token has been administratively revoked.
func (t *RefreshToken) Revoked() bool {
	return t.RevokedAt != nil
}

// Redeemable reports whether the token can still be exchanged at the given
// instant: never used, never revoked, and not yet expired.
func (t *RefreshToken) Redeemable(now time.Time) bool {
	return !t.Used() && !t.Revoked() && now.Before(t.ExpiresAt)
}

// StateError returns the failure kind a redemption attempt at the given
// instant would produce, or nil if the token is redeemable. Expiry is
// checked before the used/revoked flags, so an expired-but-used token
// reports ErrTokenExpired.
func (t *RefreshToken) StateError(now time.Time) error {
	switch {
	case !now.Before(t.ExpiresAt):
		return ErrTokenExpired
	case t.Used():
		return ErrTokenUsed
	case t.Revoked():
		return ErrTokenRevoked
	default:
		return nil
	}
}

// ResetToken is a short-lived, single-use password reset credential issued
// by the credential store. Like refresh tokens, only the digest is stored.
type ResetToken struct {
	ID         string     `json:"id"`
	UserID     string     `json:"user_id"`
	TokenHash  string     `json:"-"`
	IssuedAt   time.Time  `json:"issued_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	ConsumedAt *time.Time `json:"consumed_at,omitempty"`
}

// TokenPair holds an access and refresh token pair returned to clients.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
