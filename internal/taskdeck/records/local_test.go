package records_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taskdeck/taskdeck/internal/taskdeck/records"
)

func TestLocalStoreRoundTrip(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "local.db")
	ls, err := records.NewLocalStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	rec := records.Record{"id": "t1", "title": "hello"}
	require.NoError(t, ls.SetItem(ctx, "task", "t1", rec))

	got, err := ls.GetItem(ctx, "task", "t1")
	require.NoError(t, err)
	require.Equal(t, "hello", got.String("title"))

	_, err = ls.GetItem(ctx, "task", "missing")
	require.ErrorIs(t, err, records.ErrNotFound)

	// Values survive a close and reopen.
	require.NoError(t, ls.Close())
	ls, err = records.NewLocalStore(path)
	require.NoError(t, err)
	defer ls.Close()

	got, err = ls.GetItem(ctx, "task", "t1")
	require.NoError(t, err)
	require.Equal(t, "hello", got.String("title"))
}

func TestLocalStoreNilValueDeletes(t *testing.T) {
	t.Parallel()

	ls, err := records.NewLocalStore(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	defer ls.Close()
	ctx := context.Background()

	require.NoError(t, ls.SetItem(ctx, "task", "t1", records.Record{"id": "t1"}))
	require.NoError(t, ls.SetItem(ctx, "task", "t1", nil))

	_, err = ls.GetItem(ctx, "task", "t1")
	require.ErrorIs(t, err, records.ErrNotFound)
}

func TestLocalStoreEvents(t *testing.T) {
	t.Parallel()

	ls, err := records.NewLocalStore(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	defer ls.Close()
	ctx := context.Background()

	events, cancel := ls.Events().Subscribe()
	defer cancel()

	require.NoError(t, ls.SetItem(ctx, "task", "t1", records.Record{"id": "t1", "title": "a"}))
	ev := <-events
	require.Equal(t, records.ChangeSet, ev.Type)
	require.Equal(t, "task", ev.Table)
	require.Nil(t, ev.Prev)

	require.NoError(t, ls.SetItem(ctx, "task", "t1", records.Record{"id": "t1", "title": "b"}))
	ev = <-events
	require.Equal(t, "a", ev.Prev.String("title"))
	require.Equal(t, "b", ev.Value.String("title"))

	require.NoError(t, ls.DeleteItem(ctx, "task", "t1"))
	ev = <-events
	require.Equal(t, records.ChangeDelete, ev.Type)
	require.Equal(t, "b", ev.Prev.String("title"))

	// Deleting an absent key publishes nothing.
	require.NoError(t, ls.DeleteItem(ctx, "task", "t1"))
	require.Empty(t, events)
}

func TestLocalStoreSelectAndClear(t *testing.T) {
	t.Parallel()

	ls, err := records.NewLocalStore(filepath.Join(t.TempDir(), "local.db"))
	require.NoError(t, err)
	defer ls.Close()
	ctx := context.Background()

	require.NoError(t, ls.SetItem(ctx, "task", "t1", records.Record{"id": "t1", "status": "active"}))
	require.NoError(t, ls.SetItem(ctx, "task", "t2", records.Record{"id": "t2", "status": "completed"}))
	require.NoError(t, ls.SetItem(ctx, "user", "u1", records.Record{"id": "u1"}))

	all, err := ls.Select(ctx, "task", nil)
	require.NoError(t, err)
	require.Len(t, all, 2)

	active, err := ls.Select(ctx, "task", func(r records.Record) bool {
		return r.String("status") == "active"
	})
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "t1", active[0].ID())

	require.NoError(t, ls.Clear(ctx))
	all, err = ls.Select(ctx, "task", nil)
	require.NoError(t, err)
	require.Empty(t, all)
}
