package domain

import "time"

// Account is a tenant. All tasks, invites and memberships hang off an
// account.
type Account struct {
	ID            string
	CreatedAt     time.Time
	Name          string
	LogoImagePath string
	HeroImagePath string
}

// AccountNameFor derives an account name from sign-up metadata, falling
// back to the local part of the email address.
func AccountNameFor(metaAccountName, email string) string {
	if metaAccountName != "" {
		return metaAccountName
	}
	return EmailLocalPart(email)
}
