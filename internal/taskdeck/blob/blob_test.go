package blob_test

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/taskdeck/taskdeck/internal/taskdeck/blob"
	"github.com/taskdeck/taskdeck/internal/taskdeck/records"
)

func newTestBlob(t *testing.T) *blob.Store {
	t.Helper()

	dir := t.TempDir()
	cache, err := records.NewLocalStore(filepath.Join(dir, "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = cache.Close() })

	s, err := blob.NewStore(filepath.Join(dir, "files"), "http://localhost:8080/files", cache)
	require.NoError(t, err)
	return s
}

func TestUploadAndOpen(t *testing.T) {
	t.Parallel()

	s := newTestBlob(t)
	ctx := context.Background()

	key := "acc1/logo/logo.png"
	require.NoError(t, s.Upload(ctx, key, strings.NewReader("png-bytes"), false))

	r, err := s.Open(ctx, key)
	require.NoError(t, err)
	defer r.Close()

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.Equal(t, "png-bytes", string(data))
}

func TestUploadNoOverwrite(t *testing.T) {
	t.Parallel()

	s := newTestBlob(t)
	ctx := context.Background()

	key := "acc1/logo/logo.png"
	require.NoError(t, s.Upload(ctx, key, strings.NewReader("first"), false))

	err := s.Upload(ctx, key, strings.NewReader("second"), false)
	require.ErrorIs(t, err, blob.ErrExists)

	// Original content untouched.
	r, err := s.Open(ctx, key)
	require.NoError(t, err)
	defer r.Close()
	data, _ := io.ReadAll(r)
	require.Equal(t, "first", string(data))

	// Overwrite true replaces it.
	require.NoError(t, s.Upload(ctx, key, strings.NewReader("second"), true))
}

func TestUploadRejectsEscapes(t *testing.T) {
	t.Parallel()

	s := newTestBlob(t)
	ctx := context.Background()

	for _, key := range []string{"", "../outside", "a/../../b", "./x"} {
		err := s.Upload(ctx, key, strings.NewReader("x"), true)
		require.ErrorIs(t, err, blob.ErrInvalidPath, "key %q", key)
	}
}

func TestPublicURLCaching(t *testing.T) {
	t.Parallel()

	s := newTestBlob(t)
	ctx := context.Background()

	key := "acc1/hero/hero.jpg"

	_, ok := s.CachedURL(ctx, key)
	require.False(t, ok)

	url, err := s.PublicURL(ctx, key)
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/files/acc1/hero/hero.jpg", url)

	cached, ok := s.CachedURL(ctx, key)
	require.True(t, ok)
	require.Equal(t, url, cached)
}
