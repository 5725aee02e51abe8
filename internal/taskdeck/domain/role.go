package domain

// Role is a membership role within an account. Roles form a total order
// guest < default < manager < admin, used when an invite upgrades an
// existing membership.
type Role string

const (
	RoleGuest   Role = "guest"
	RoleDefault Role = "default"
	RoleManager Role = "manager"
	RoleAdmin   Role = "admin"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleGuest, RoleDefault, RoleManager, RoleAdmin:
		return true
	}
	return false
}

// Rank returns the position of r in the role order. Unknown roles rank
// below guest so they never win an upgrade.
func (r Role) Rank() int {
	switch r {
	case RoleGuest:
		return 0
	case RoleDefault:
		return 1
	case RoleManager:
		return 2
	case RoleAdmin:
		return 3
	}
	return -1
}

// MaxRole returns the higher of the two roles.
func MaxRole(a, b Role) Role {
	if a.Rank() >= b.Rank() {
		return a
	}
	return b
}

// SanitizeRole maps arbitrary input to a known role, falling back to
// RoleDefault for anything unrecognised.
func SanitizeRole(s string) Role {
	r := Role(s)
	if r.Valid() {
		return r
	}
	return RoleDefault
}
