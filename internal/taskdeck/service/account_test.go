package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
	"github.com/taskdeck/taskdeck/internal/taskdeck/service"
)

func TestUpdateAccountProfile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	svc := &service.AccountService{Store: env.store, Records: env.records}
	ctx := context.Background()

	acc := env.seedAccount(t, "acme")

	got, err := svc.UpdateAccount(ctx, acc.ID, domain.RoleManager, service.AccountUpdate{
		Name:          strptr("Acme Corp"),
		LogoImagePath: strptr(acc.ID + "/logo/logo.png"),
	})
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", got.Name)
	require.Equal(t, acc.ID+"/logo/logo.png", got.LogoImagePath)

	// Guests cannot edit the account.
	_, err = svc.UpdateAccount(ctx, acc.ID, domain.RoleGuest, service.AccountUpdate{Name: strptr("x")})
	require.ErrorIs(t, err, service.ErrForbidden)

	// Empty update is a read.
	same, err := svc.UpdateAccount(ctx, acc.ID, domain.RoleAdmin, service.AccountUpdate{})
	require.NoError(t, err)
	require.Equal(t, "Acme Corp", same.Name)
}

func TestListMembers(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	svc := &service.AccountService{Store: env.store, Records: env.records}
	ctx := context.Background()

	acc := env.seedAccount(t, "acme")
	alice := env.seedUser(t, "alice@example.com")
	bob := env.seedUser(t, "bob@example.com")
	env.seedMembership(t, alice, acc, domain.RoleAdmin)
	env.seedMembership(t, bob, acc, domain.RoleDefault)

	members, err := svc.ListMembers(ctx, acc.ID)
	require.NoError(t, err)
	require.Len(t, members, 2)
	require.Equal(t, "alice", members[0].User.Name)
	require.Equal(t, domain.RoleAdmin, members[0].Membership.Role)
}

func TestChangeMemberRole(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	svc := &service.AccountService{Store: env.store, Records: env.records}
	ctx := context.Background()

	acc := env.seedAccount(t, "acme")
	bob := env.seedUser(t, "bob@example.com")
	env.seedMembership(t, bob, acc, domain.RoleDefault)

	m, err := svc.ChangeMemberRole(ctx, acc.ID, bob.ID, domain.RoleAdmin, domain.RoleManager)
	require.NoError(t, err)
	require.Equal(t, domain.RoleManager, m.Role)

	stored, err := env.store.Memberships().GetMembership(ctx, bob.ID, acc.ID)
	require.NoError(t, err)
	require.Equal(t, domain.RoleManager, stored.Role)

	// Managers cannot change roles, only admins.
	_, err = svc.ChangeMemberRole(ctx, acc.ID, bob.ID, domain.RoleManager, domain.RoleGuest)
	require.ErrorIs(t, err, service.ErrForbidden)

	_, err = svc.ChangeMemberRole(ctx, acc.ID, "nobody", domain.RoleAdmin, domain.RoleGuest)
	require.ErrorIs(t, err, service.ErrMembershipNotFound)
}

func TestUpdateUserProfile(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	svc := &service.UserService{Store: env.store, Records: env.records}
	ctx := context.Background()

	u := env.seedUser(t, "alice@example.com")

	got, err := svc.UpdateUser(ctx, u.ID, service.UserUpdate{
		Name:             strptr("Alice A."),
		ProfileImagePath: strptr(u.ID + "/profile/avatar.png"),
	})
	require.NoError(t, err)
	require.Equal(t, "Alice A.", got.Name)
	require.Equal(t, "alice@example.com", got.Email)

	_, err = svc.UpdateUser(ctx, "missing", service.UserUpdate{Name: strptr("x")})
	require.ErrorIs(t, err, service.ErrUserNotFound)
}
