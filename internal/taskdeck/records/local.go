package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"sync"

	_ "modernc.org/sqlite"
)

// keyPrefix namespaces every LocalStore key so one file can be shared
// with other consumers without collisions.
const keyPrefix = "taskdeck"

// LocalStore is a durable key-value mirror of records, backed by its own
// sqlite file. The whole key space is loaded into memory lazily on first
// access; every mutation writes through to disk before updating the
// in-memory view, so a crash never loses an acknowledged write.
type LocalStore struct {
	db  *sql.DB
	bus *EventBus

	mu     sync.Mutex
	loaded bool
	items  map[string]json.RawMessage
}

// NewLocalStore opens (and initializes) the KV file at path.
func NewLocalStore(path string) (*LocalStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS items (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &LocalStore{
		db:    db,
		bus:   NewEventBus(),
		items: make(map[string]json.RawMessage),
	}, nil
}

func (l *LocalStore) Close() error { return l.db.Close() }

// Events exposes the change stream for subscribers.
func (l *LocalStore) Events() *EventBus { return l.bus }

// Key builds the canonical storage key for a table row.
func Key(table, id string) string {
	return keyPrefix + "::" + table + "::" + id
}

func splitKey(key string) (table, id string, ok bool) {
	parts := strings.SplitN(key, "::", 3)
	if len(parts) != 3 || parts[0] != keyPrefix {
		return "", "", false
	}
	return parts[1], parts[2], true
}

// load pulls the full key space into memory. Callers hold l.mu.
func (l *LocalStore) load(ctx context.Context) error {
	if l.loaded {
		return nil
	}

	rows, err := l.db.QueryContext(ctx, `SELECT key, value FROM items`)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return err
		}
		l.items[key] = json.RawMessage(value)
	}
	if err := rows.Err(); err != nil {
		return err
	}
	l.loaded = true
	return nil
}

// GetItem returns the stored value for (table, id), decoded into a
// Record, or ErrNotFound.
func (l *LocalStore) GetItem(ctx context.Context, table, id string) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(ctx); err != nil {
		return nil, err
	}

	raw, ok := l.items[Key(table, id)]
	if !ok {
		return nil, ErrNotFound
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// SetItem stores value under (table, id). A nil value deletes the key,
// mirroring how web storage treats null writes.
func (l *LocalStore) SetItem(ctx context.Context, table, id string, value Record) error {
	if value == nil {
		return l.DeleteItem(ctx, table, id)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(ctx); err != nil {
		return err
	}

	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}

	key := Key(table, id)
	prev := l.decodeLocked(key)

	// Disk first, memory second.
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO items (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, string(raw))
	if err != nil {
		return ErrWriteFailed
	}
	l.items[key] = json.RawMessage(raw)

	l.bus.Publish(ChangeEvent{Type: ChangeSet, Table: table, ID: id, Value: value.Clone(), Prev: prev})
	return nil
}

// DeleteItem removes (table, id). Deleting an absent key is a no-op and
// publishes nothing.
func (l *LocalStore) DeleteItem(ctx context.Context, table, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(ctx); err != nil {
		return err
	}

	key := Key(table, id)
	prev := l.decodeLocked(key)
	if prev == nil {
		return nil
	}

	if _, err := l.db.ExecContext(ctx, `DELETE FROM items WHERE key = ?`, key); err != nil {
		return ErrWriteFailed
	}
	delete(l.items, key)

	l.bus.Publish(ChangeEvent{Type: ChangeDelete, Table: table, ID: id, Prev: prev})
	return nil
}

// Select returns all records in a table for which filter returns true.
// A nil filter selects the whole table.
func (l *LocalStore) Select(ctx context.Context, table string, filter func(Record) bool) ([]Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.load(ctx); err != nil {
		return nil, err
	}

	var out []Record
	for key, raw := range l.items {
		keyTable, _, ok := splitKey(key)
		if !ok || keyTable != table {
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if filter == nil || filter(rec) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Clear drops every key. Used on sign-out.
func (l *LocalStore) Clear(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.db.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return ErrWriteFailed
	}
	l.items = make(map[string]json.RawMessage)
	l.loaded = true
	return nil
}

func (l *LocalStore) decodeLocked(key string) Record {
	raw, ok := l.items[key]
	if !ok {
		return nil
	}
	var rec Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil
	}
	return rec
}
