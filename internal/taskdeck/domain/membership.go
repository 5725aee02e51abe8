package domain

import "time"

// AccountMembership links a user to an account with a role. A user's
// current account is the membership with the most recent LastAccessedAt.
type AccountMembership struct {
	ID             string
	CreatedAt      time.Time
	LastAccessedAt time.Time
	UserID         string
	AccountID      string
	Role           Role
}

// Member is a membership joined with its user, for account member
// listings.
type Member struct {
	Membership AccountMembership
	User       User
}
