package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
)

const (
	refreshValueBytes = 64
	resetValueBytes   = 32
)

// GenerateRefreshValue returns a fresh opaque refresh token value: 64 bytes
// from crypto/rand, base64 URL encoded. The raw value is never persisted.
func GenerateRefreshValue() (string, error) {
	return generateOpaque(refreshValueBytes)
}

// GenerateResetValue returns a fresh opaque password reset token value.
func GenerateResetValue() (string, error) {
	return generateOpaque(resetValueBytes)
}

func generateOpaque(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate token value: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// HashToken returns the hex-encoded SHA-256 digest of an opaque token value.
// The ledger stores and looks up tokens exclusively by this digest.
func HashToken(value string) string {
	sum := sha256.Sum256([]byte(value))
	return hex.EncodeToString(sum[:])
}
