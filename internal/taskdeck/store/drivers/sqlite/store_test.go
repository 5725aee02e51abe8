package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
	"github.com/taskdeck/taskdeck/internal/taskdeck/store"
	"github.com/taskdeck/taskdeck/pkg/idx"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	dsn := filepath.Join(t.TempDir(), "taskdeck.db")
	s, err := NewStore(dsn)
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedUser(t *testing.T, s *Store, email string) domain.User {
	t.Helper()

	u := domain.User{
		ID:        idx.New().String(),
		CreatedAt: time.Now(),
		Name:      domain.EmailLocalPart(email),
		Email:     email,
	}
	require.NoError(t, s.Users().CreateUser(context.Background(), u))
	return u
}

func seedAccount(t *testing.T, s *Store, name string) domain.Account {
	t.Helper()

	a := domain.Account{
		ID:        idx.New().String(),
		CreatedAt: time.Now(),
		Name:      name,
	}
	require.NoError(t, s.Accounts().CreateAccount(context.Background(), a))
	return a
}

func TestUsersRoundTrip(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "Alice@Example.com")

	got, err := s.Users().GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, "alice@example.com", got.Email)
	require.Equal(t, u.Name, got.Name)

	// Email lookup is case-insensitive via normalization.
	got, err = s.Users().GetUserByEmail(ctx, "ALICE@example.COM")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.ID)

	_, err = s.Users().GetUserByID(ctx, "missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateUserDuplicateEmail(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	seedUser(t, s, "dup@example.com")

	err := s.Users().CreateUser(context.Background(), domain.User{
		ID:        idx.New().String(),
		CreatedAt: time.Now(),
		Name:      "dup",
		Email:     "dup@example.com",
	})
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestMembershipMostRecent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "bob@example.com")
	first := seedAccount(t, s, "first")
	second := seedAccount(t, s, "second")

	now := time.Now()
	older := domain.AccountMembership{
		ID: idx.New().String(), CreatedAt: now, LastAccessedAt: now.Add(-time.Hour),
		UserID: u.ID, AccountID: first.ID, Role: domain.RoleAdmin,
	}
	newer := domain.AccountMembership{
		ID: idx.New().String(), CreatedAt: now, LastAccessedAt: now,
		UserID: u.ID, AccountID: second.ID, Role: domain.RoleDefault,
	}
	require.NoError(t, s.Memberships().CreateMembership(ctx, older))
	require.NoError(t, s.Memberships().CreateMembership(ctx, newer))

	got, err := s.Memberships().GetMostRecentMembershipForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, second.ID, got.AccountID)

	// Touching the older one makes it current.
	require.NoError(t, s.Memberships().TouchMembership(ctx, older.ID))
	got, err = s.Memberships().GetMostRecentMembershipForUser(ctx, u.ID)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.AccountID)
}

func TestMembershipUniquePerAccount(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "carol@example.com")
	a := seedAccount(t, s, "acme")

	m := domain.AccountMembership{
		ID: idx.New().String(), CreatedAt: time.Now(), LastAccessedAt: time.Now(),
		UserID: u.ID, AccountID: a.ID, Role: domain.RoleDefault,
	}
	require.NoError(t, s.Memberships().CreateMembership(ctx, m))

	m.ID = idx.New().String()
	err := s.Memberships().CreateMembership(ctx, m)
	require.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestInviteLifecycle(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "dan@example.com")
	a := seedAccount(t, s, "acme")

	inv := domain.AccountInvite{
		ID:              idx.New().String(),
		CreatedAt:       time.Now(),
		Code:            "test-code",
		AccountID:       a.ID,
		InvitedByUserID: u.ID,
		Role:            domain.RoleManager,
		ExpiresAt:       time.Now().Add(time.Hour),
	}
	require.NoError(t, s.Invites().CreateInvite(ctx, inv))

	got, err := s.Invites().GetInviteByCode(ctx, "test-code")
	require.NoError(t, err)
	require.Equal(t, domain.RoleManager, got.Role)
	require.False(t, got.Accepted())
	require.False(t, got.Revoked())

	require.NoError(t, s.Invites().MarkInviteAccepted(ctx, inv.ID, u.ID))
	got, err = s.Invites().GetInviteByCode(ctx, "test-code")
	require.NoError(t, err)
	require.Equal(t, u.ID, got.AcceptedByUserID)
	require.False(t, got.AcceptedAt.IsZero())

	require.NoError(t, s.Invites().RevokeInvite(ctx, inv.ID))
	got, err = s.Invites().GetInviteByCode(ctx, "test-code")
	require.NoError(t, err)
	require.True(t, got.Revoked())

	// Second revoke hits zero rows.
	require.ErrorIs(t, s.Invites().RevokeInvite(ctx, inv.ID), store.ErrNotFound)
}

func TestDeleteExpiredInvites(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	u := seedUser(t, s, "erin@example.com")
	a := seedAccount(t, s, "acme")

	expired := domain.AccountInvite{
		ID: idx.New().String(), CreatedAt: time.Now(), Code: "expired",
		AccountID: a.ID, InvitedByUserID: u.ID, Role: domain.RoleDefault,
		ExpiresAt: time.Now().Add(-time.Minute),
	}
	open := domain.AccountInvite{
		ID: idx.New().String(), CreatedAt: time.Now(), Code: "open",
		AccountID: a.ID, InvitedByUserID: u.ID, Role: domain.RoleDefault,
	}
	require.NoError(t, s.Invites().CreateInvite(ctx, expired))
	require.NoError(t, s.Invites().CreateInvite(ctx, open))

	require.NoError(t, s.Invites().DeleteExpiredInvites(ctx))

	_, err := s.Invites().GetInviteByCode(ctx, "expired")
	require.ErrorIs(t, err, store.ErrNotFound)

	// Invites without an expiry survive housekeeping.
	_, err = s.Invites().GetInviteByCode(ctx, "open")
	require.NoError(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx store.Tx) error {
		if err := tx.Users().CreateUser(ctx, domain.User{
			ID: idx.New().String(), CreatedAt: time.Now(),
			Name: "ghost", Email: "ghost@example.com",
		}); err != nil {
			return err
		}
		return context.Canceled
	})
	require.ErrorIs(t, err, context.Canceled)

	_, err = s.Users().GetUserByEmail(ctx, "ghost@example.com")
	require.ErrorIs(t, err, store.ErrNotFound)
}
