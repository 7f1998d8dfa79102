package domain

import (
	"time"
)

// User represents a registered account.
//
// Usernames and emails are unique case-insensitively; the stored value
// preserves the casing the user registered with.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
