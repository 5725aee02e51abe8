package session_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/taskdeck/taskdeck/internal/taskdeck/domain"
	"github.com/taskdeck/taskdeck/internal/taskdeck/identity"
	"github.com/taskdeck/taskdeck/internal/taskdeck/session"
	"github.com/taskdeck/taskdeck/internal/taskdeck/store/drivers/sqlite"
	"github.com/taskdeck/taskdeck/pkg/idx"
	"github.com/taskdeck/taskdeck/pkg/slogx"
)

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "taskdeck.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newTestResolver(t *testing.T, s *sqlite.Store, debounce time.Duration) *session.Resolver {
	t.Helper()

	log := slogx.New(slogx.Config{Service: "test", Format: "text", Level: "error"})
	return session.NewResolver(s, log, debounce)
}

func testSession(userID string) identity.Session {
	return identity.Session{
		UserID:      userID,
		Email:       "alice@example.com",
		Name:        "Alice",
		AccountName: "Acme",
	}
}

func waitFor(t *testing.T, ch <-chan session.Info) session.Info {
	t.Helper()

	select {
	case info := <-ch:
		return info
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for resolution")
		return session.Info{}
	}
}

func TestLookupBootstrapsUserAndAccount(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	r := newTestResolver(t, s, time.Millisecond)
	ctx := context.Background()

	userID := idx.New().String()
	info, touchID, err := r.Lookup(ctx, testSession(userID))
	require.NoError(t, err)
	require.Equal(t, session.StateUser, info.State)
	require.Equal(t, "Alice", info.User.Name)
	require.Equal(t, "Acme", info.Account.Name)
	require.Equal(t, domain.RoleAdmin, info.Role())
	require.Equal(t, info.Membership.ID, touchID)
}

func TestLookupIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	r := newTestResolver(t, s, time.Millisecond)
	ctx := context.Background()

	userID := idx.New().String()
	first, _, err := r.Lookup(ctx, testSession(userID))
	require.NoError(t, err)

	// Resolving again finds the same rows instead of creating new ones.
	second, _, err := r.Lookup(ctx, testSession(userID))
	require.NoError(t, err)
	require.Equal(t, first.User.ID, second.User.ID)
	require.Equal(t, first.Account.ID, second.Account.ID)
	require.Equal(t, first.Membership.ID, second.Membership.ID)

	memberships, err := s.Memberships().ListMembershipsForUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, memberships, 1)
}

func TestNotifyResolvesUser(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	r := newTestResolver(t, s, time.Millisecond)
	ctx := context.Background()

	infos, cancel := r.Subscribe()
	defer cancel()

	sess := testSession(idx.New().String())
	r.Notify(ctx, identity.StateChange{Event: identity.EventSignedIn, Session: &sess})

	info := waitFor(t, infos)
	require.Equal(t, session.StateUser, info.State)
	require.Equal(t, sess.UserID, info.User.ID)
	require.Equal(t, session.StateUser, r.Current().State)
}

func TestNotifyGuest(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	r := newTestResolver(t, s, time.Millisecond)

	infos, cancel := r.Subscribe()
	defer cancel()

	r.Notify(context.Background(), identity.StateChange{Event: identity.EventSignedOut})

	info := waitFor(t, infos)
	require.Equal(t, session.StateGuest, info.State)
	require.Nil(t, info.User)
	require.Nil(t, info.Membership)
}

func TestStaleNotificationsNeverEmit(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	r := newTestResolver(t, s, 30*time.Millisecond)
	ctx := context.Background()

	infos, cancel := r.Subscribe()
	defer cancel()

	first := testSession(idx.New().String())
	second := testSession(idx.New().String())
	second.Email = "bob@example.com"

	// The second notification lands inside the first one's debounce
	// window, so only the second may publish.
	r.Notify(ctx, identity.StateChange{Event: identity.EventSignedIn, Session: &first})
	r.Notify(ctx, identity.StateChange{Event: identity.EventSignedIn, Session: &second})

	info := waitFor(t, infos)
	require.Equal(t, second.UserID, info.User.ID)

	select {
	case extra := <-infos:
		t.Fatalf("stale generation published: %+v", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestSwitchAccount(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	r := newTestResolver(t, s, time.Millisecond)
	ctx := context.Background()

	infos, cancel := r.Subscribe()
	defer cancel()

	sess := testSession(idx.New().String())
	r.Notify(ctx, identity.StateChange{Event: identity.EventSignedIn, Session: &sess})
	first := waitFor(t, infos)
	require.Equal(t, session.StateUser, first.State)

	// Second account the user belongs to.
	other := domain.Account{ID: idx.New().String(), CreatedAt: time.Now(), Name: "other"}
	require.NoError(t, s.Accounts().CreateAccount(ctx, other))
	require.NoError(t, s.Memberships().CreateMembership(ctx, domain.AccountMembership{
		ID: idx.New().String(), CreatedAt: time.Now(),
		LastAccessedAt: time.Now().Add(-time.Hour),
		UserID:         sess.UserID, AccountID: other.ID, Role: domain.RoleDefault,
	}))

	require.NoError(t, r.SwitchAccount(ctx, other.ID))
	info := waitFor(t, infos)
	require.Equal(t, other.ID, info.Account.ID)
	require.Equal(t, domain.RoleDefault, info.Role())

	// The switched-to membership is now the most recent.
	m, err := s.Memberships().GetMostRecentMembershipForUser(ctx, sess.UserID)
	require.NoError(t, err)
	require.Equal(t, other.ID, m.AccountID)
}

func TestSwitchAccountNonMemberIsNoOp(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	r := newTestResolver(t, s, time.Millisecond)
	ctx := context.Background()

	infos, cancel := r.Subscribe()
	defer cancel()

	sess := testSession(idx.New().String())
	r.Notify(ctx, identity.StateChange{Event: identity.EventSignedIn, Session: &sess})
	resolved := waitFor(t, infos)

	stranger := domain.Account{ID: idx.New().String(), CreatedAt: time.Now(), Name: "stranger"}
	require.NoError(t, s.Accounts().CreateAccount(ctx, stranger))

	require.NoError(t, r.SwitchAccount(ctx, stranger.ID))

	// Nothing published, current state untouched.
	select {
	case info := <-infos:
		t.Fatalf("unexpected publish: %+v", info)
	case <-time.After(100 * time.Millisecond):
	}
	require.Equal(t, resolved.Account.ID, r.Current().Account.ID)
}
