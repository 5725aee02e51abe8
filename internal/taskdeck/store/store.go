package store

import (
	"context"
	"errors"

	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")
)

// Store is the root data access interface. Concrete drivers (sqlite for now)
// implement this. It exposes sub-repositories to keep concerns tidy and
// testable, and keeps transaction scope explicit so callers cannot
// accidentally nest transactions.
type Store interface {
	Users() Users
	Credentials() Credentials
	Accounts() Accounts
	Memberships() Memberships
	Invites() Invites
	Tasks() Tasks

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Users interface {
	// GetUserByID returns a user by id.
	GetUserByID(ctx context.Context, id string) (domain.User, error)

	// GetUserByEmail returns a user by normalized email.
	GetUserByEmail(ctx context.Context, email string) (domain.User, error)

	// CreateUser inserts a new user (id is provided by app via ULID).
	CreateUser(ctx context.Context, u domain.User) error

	// UpdateUserProfile mutates name and image paths.
	UpdateUserProfile(ctx context.Context, u domain.User) error
}

type Credentials interface {
	// CreateCredential stores a password hash for a user. Fails with
	// ErrAlreadyExists when the email is taken.
	CreateCredential(ctx context.Context, c domain.Credential) error

	// GetCredentialByEmail looks up a credential during sign-in.
	GetCredentialByEmail(ctx context.Context, email string) (domain.Credential, error)

	// UpdatePasswordHash sets the password_hash and bumps updated_at.
	UpdatePasswordHash(ctx context.Context, userID string, newHash string) error
}

type Accounts interface {
	// GetAccountByID returns an account by id.
	GetAccountByID(ctx context.Context, id string) (domain.Account, error)

	// CreateAccount inserts a new account.
	CreateAccount(ctx context.Context, a domain.Account) error

	// UpdateAccountProfile mutates name and image paths.
	UpdateAccountProfile(ctx context.Context, a domain.Account) error
}

type Memberships interface {
	// GetMembership returns the membership for a (user, account) pair.
	GetMembership(ctx context.Context, userID, accountID string) (domain.AccountMembership, error)

	// GetMostRecentMembershipForUser returns the membership with the
	// latest last_accessed_at, which defines the user's current account.
	GetMostRecentMembershipForUser(ctx context.Context, userID string) (domain.AccountMembership, error)

	// ListMembershipsForUser returns all memberships for a user, most
	// recently accessed first.
	ListMembershipsForUser(ctx context.Context, userID string) ([]domain.AccountMembership, error)

	// ListMembersForAccount joins memberships with users for an account.
	ListMembersForAccount(ctx context.Context, accountID string) ([]domain.Member, error)

	// CreateMembership inserts a new membership. Fails with
	// ErrAlreadyExists when the (user, account) pair already has one.
	CreateMembership(ctx context.Context, m domain.AccountMembership) error

	// UpdateMembershipRole changes the role on an existing membership.
	UpdateMembershipRole(ctx context.Context, membershipID string, role domain.Role) error

	// TouchMembership bumps last_accessed_at to now.
	TouchMembership(ctx context.Context, membershipID string) error
}

type Invites interface {
	// GetInviteByCode returns an invite by its public code.
	GetInviteByCode(ctx context.Context, code string) (domain.AccountInvite, error)

	// ListInvitesForAccount returns all invites for an account, newest first.
	ListInvitesForAccount(ctx context.Context, accountID string) ([]domain.AccountInvite, error)

	// CreateInvite writes a new invite.
	CreateInvite(ctx context.Context, inv domain.AccountInvite) error

	// MarkInviteAccepted sets accepted_at and accepted_by_user_id.
	MarkInviteAccepted(ctx context.Context, inviteID, userID string) error

	// RevokeInvite sets revoked_at.
	RevokeInvite(ctx context.Context, inviteID string) error

	// DeleteExpiredInvites is housekeeping.
	DeleteExpiredInvites(ctx context.Context) error
}

type Tasks interface {
	// GetTaskByID returns a task by id.
	GetTaskByID(ctx context.Context, id string) (domain.Task, error)

	// ListTasksForAccount returns the account's tasks filtered by the
	// given options.
	ListTasksForAccount(ctx context.Context, accountID string, opts domain.TaskListOptions) ([]domain.Task, error)
}
