package identity_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/taskdeck/taskdeck/internal/taskdeck/identity"
	"github.com/taskdeck/taskdeck/internal/taskdeck/store/drivers/sqlite"
	"github.com/taskdeck/taskdeck/pkg/jwtx"
)

func newTestProvider(t *testing.T) *identity.Provider {
	t.Helper()

	s, err := sqlite.NewStore(filepath.Join(t.TempDir(), "taskdeck.db"))
	require.NoError(t, err)
	require.NoError(t, s.ApplyMigrations())
	t.Cleanup(func() { _ = s.Close() })

	signer, err := jwtx.GenerateEdDSASigner("test-key")
	require.NoError(t, err)

	return identity.NewProvider(s, signer, signer.Verifier("taskdeck-test"), "taskdeck-test", time.Hour)
}

func TestSignUpAndCurrentUser(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)
	ctx := context.Background()

	sess, err := p.SignUp(ctx, "Alice@Example.com", "hunter2!", identity.Metadata{
		Name:        "Alice",
		AccountName: "Acme",
	})
	require.NoError(t, err)
	require.NotEmpty(t, sess.Token)
	require.NotEmpty(t, sess.UserID)
	require.Equal(t, "alice@example.com", sess.Email)
	require.Equal(t, "Alice", sess.Name)
	require.Equal(t, "Acme", sess.AccountName)

	got, err := p.CurrentUser(ctx, sess.Token)
	require.NoError(t, err)
	require.Equal(t, sess.UserID, got.UserID)
	require.Equal(t, "Alice", got.Name)
	require.Equal(t, "Acme", got.AccountName)
}

func TestSignUpMetadataFallsBackToEmail(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)

	sess, err := p.SignUp(context.Background(), "bob@example.com", "hunter2!", identity.Metadata{})
	require.NoError(t, err)
	require.Equal(t, "bob", sess.Name)
	require.Equal(t, "bob", sess.AccountName)
}

func TestSignUpDuplicateEmail(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)
	ctx := context.Background()

	_, err := p.SignUp(ctx, "dup@example.com", "hunter2!", identity.Metadata{})
	require.NoError(t, err)

	_, err = p.SignUp(ctx, "DUP@example.com", "other-pass", identity.Metadata{})
	require.ErrorIs(t, err, identity.ErrEmailTaken)
}

func TestSignIn(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)
	ctx := context.Background()

	up, err := p.SignUp(ctx, "carol@example.com", "correct horse", identity.Metadata{Name: "Carol"})
	require.NoError(t, err)

	sess, err := p.SignIn(ctx, "carol@example.com", "correct horse")
	require.NoError(t, err)
	require.Equal(t, up.UserID, sess.UserID)

	_, err = p.SignIn(ctx, "carol@example.com", "wrong")
	require.ErrorIs(t, err, identity.ErrInvalidCredentials)

	// Unknown email reads the same as a bad password.
	_, err = p.SignIn(ctx, "nobody@example.com", "whatever")
	require.ErrorIs(t, err, identity.ErrInvalidCredentials)
}

func TestRefresh(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)
	ctx := context.Background()

	sess, err := p.SignUp(ctx, "erin@example.com", "hunter2!", identity.Metadata{Name: "Erin"})
	require.NoError(t, err)

	changes, cancel := p.StateChanges()
	defer cancel()

	fresh, err := p.Refresh(ctx, sess.Token)
	require.NoError(t, err)
	require.Equal(t, sess.UserID, fresh.UserID)
	require.Equal(t, "Erin", fresh.Name)

	sc := <-changes
	require.Equal(t, identity.EventTokenRefreshed, sc.Event)
	require.NotNil(t, sc.Session)

	_, err = p.Refresh(ctx, "not-a-token")
	require.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestCurrentUserRejectsGarbage(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)

	_, err := p.CurrentUser(context.Background(), "not-a-token")
	require.ErrorIs(t, err, identity.ErrInvalidToken)
}

func TestStateChangeStream(t *testing.T) {
	t.Parallel()

	p := newTestProvider(t)
	ctx := context.Background()

	changes, cancel := p.StateChanges()
	defer cancel()

	sess, err := p.SignUp(ctx, "dave@example.com", "hunter2!", identity.Metadata{})
	require.NoError(t, err)

	sc := <-changes
	require.Equal(t, identity.EventSignedIn, sc.Event)
	require.NotNil(t, sc.Session)
	require.Equal(t, sess.UserID, sc.Session.UserID)

	require.NoError(t, p.SignOut(ctx, sess.Token))
	sc = <-changes
	require.Equal(t, identity.EventSignedOut, sc.Event)
	require.Nil(t, sc.Session)
}
