package domain

import "time"

// Credential holds the password material for a user. Exactly one per
// user, keyed by normalized email for sign-in.
type Credential struct {
	UserID       string
	Email        string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
