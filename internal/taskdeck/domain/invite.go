package domain

import "time"

// AccountInvite is a shareable invite into an account. The code is the
// public handle; the row tracks acceptance and revocation so a code can
// only be meaningfully accepted once per distinct user.
type AccountInvite struct {
	ID               string
	CreatedAt        time.Time
	Code             string
	AccountID        string
	InvitedByUserID  string
	Email            string
	Role             Role
	ExpiresAt        time.Time
	AcceptedAt       time.Time
	AcceptedByUserID string
	RevokedAt        time.Time
}

// Expired reports whether the invite has an expiry in the past.
func (i AccountInvite) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

// Revoked reports whether the invite was revoked.
func (i AccountInvite) Revoked() bool {
	return !i.RevokedAt.IsZero()
}

// Accepted reports whether the invite was already accepted by someone.
func (i AccountInvite) Accepted() bool {
	return i.AcceptedByUserID != ""
}

// RestrictedTo reports whether the invite is locked to a specific email
// address. Comparison is case-insensitive.
func (i AccountInvite) RestrictedTo(email string) bool {
	if i.Email == "" {
		return false
	}
	return NormalizeEmail(i.Email) != NormalizeEmail(email)
}
