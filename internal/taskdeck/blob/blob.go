// Package blob stores uploaded files on the local filesystem and hands
// out public URLs for them. Computed URLs are cached in the durable KV
// so repeat lookups skip the string work and survive restarts.
package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/taskdeck/taskdeck/internal/taskdeck/records"
)

var (
	ErrInvalidPath = errors.New("blob: invalid path")
	ErrExists      = errors.New("blob: file already exists")
)

// urlTable is the LocalStore table the URL cache lives in.
const urlTable = "file_url"

// Store writes blobs under a root directory. Paths are slash-separated
// keys like "<account_id>/logo/<name>".
type Store struct {
	root    string
	baseURL string
	cache   *records.LocalStore
}

// NewStore roots the blob store at dir. baseURL is the public prefix
// files are served under, e.g. "http://localhost:8080/files". cache may
// be nil to disable URL caching.
func NewStore(dir, baseURL string, cache *records.LocalStore) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &Store{
		root:    dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		cache:   cache,
	}, nil
}

// clean validates a blob key and maps it onto the filesystem. Anything
// that would escape the root is rejected.
func (s *Store) clean(key string) (string, error) {
	key = strings.TrimPrefix(key, "/")
	if key == "" {
		return "", ErrInvalidPath
	}
	cleaned := path.Clean(key)
	if cleaned != key || cleaned == "." || strings.HasPrefix(cleaned, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidPath, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(cleaned)), nil
}

// Upload streams r into the file at key. With overwrite false an
// existing file is an error and stays untouched.
func (s *Store) Upload(ctx context.Context, key string, r io.Reader, overwrite bool) error {
	dst, err := s.clean(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !overwrite {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	f, err := os.OpenFile(dst, flags, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return fmt.Errorf("%w: %s", ErrExists, key)
		}
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = os.Remove(dst)
		return err
	}
	return f.Close()
}

// Open returns a reader over the stored file.
func (s *Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	p, err := s.clean(key)
	if err != nil {
		return nil, err
	}
	return os.Open(p)
}

// Remove deletes a stored file and drops its cached URL.
func (s *Store) Remove(ctx context.Context, key string) error {
	p, err := s.clean(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return err
	}
	if s.cache != nil {
		_ = s.cache.DeleteItem(ctx, urlTable, key)
	}
	return nil
}

// Root returns the filesystem directory blobs live under, for mounting
// a static file handler.
func (s *Store) Root() string { return s.root }

// PublicURL returns the URL a stored key is served at, filling the
// cache on first computation.
func (s *Store) PublicURL(ctx context.Context, key string) (string, error) {
	if _, err := s.clean(key); err != nil {
		return "", err
	}

	if url, ok := s.cachedURL(ctx, key); ok {
		return url, nil
	}

	url := s.baseURL + "/" + strings.TrimPrefix(key, "/")
	if s.cache != nil {
		// Cache failures only cost a recompute next time.
		_ = s.cache.SetItem(ctx, urlTable, key, records.Record{"url": url})
	}
	return url, nil
}

// CachedURL probes the cache without computing anything.
func (s *Store) CachedURL(ctx context.Context, key string) (string, bool) {
	return s.cachedURL(ctx, key)
}

func (s *Store) cachedURL(ctx context.Context, key string) (string, bool) {
	if s.cache == nil {
		return "", false
	}
	rec, err := s.cache.GetItem(ctx, urlTable, key)
	if err != nil {
		return "", false
	}
	url := rec.String("url")
	return url, url != ""
}
