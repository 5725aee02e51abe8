package domain

import (
	"strings"
	"time"
)

// User is a person with an identity in the system. Every user owns or
// belongs to at least one account after first sign-in resolution.
type User struct {
	ID               string
	CreatedAt        time.Time
	Name             string
	Email            string
	ProfileImagePath string
	HeroImagePath    string
}

// DisplayNameFor derives a user-facing name from sign-up metadata,
// falling back to the local part of the email address.
func DisplayNameFor(metaName, email string) string {
	if metaName != "" {
		return metaName
	}
	return EmailLocalPart(email)
}

// EmailLocalPart returns the part of an email address before the '@',
// or the whole string when no '@' is present.
func EmailLocalPart(email string) string {
	if at := strings.IndexByte(email, '@'); at >= 0 {
		return email[:at]
	}
	return email
}

// NormalizeEmail lowercases and trims an email address for comparison
// and storage.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
