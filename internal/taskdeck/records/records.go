// Package records is a generic row cache over the shared sqlite handle.
// It addresses registered tables by name, returns rows as loosely typed
// Records and publishes a change event after every successful mutation.
// Reads always hit the database; there is no in-memory caching layer.
package records

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"
)

var (
	ErrNotFound     = errors.New("records: not found")
	ErrWriteFailed  = errors.New("records: write failed")
	ErrUnknownTable = errors.New("records: unknown table")
	ErrBadColumn    = errors.New("records: column not allowed")
)

// DefaultLimit bounds SelectMatching result sets when the caller does
// not ask for a limit.
const DefaultLimit = 1000

// Record is a single row keyed by column name. Values are strings,
// int64s, float64s or nil as read back from the driver.
type Record map[string]any

// ID returns the row's primary key.
func (r Record) ID() string { return r.String("id") }

// String returns the named column as a string, empty when absent or null.
func (r Record) String(col string) string {
	switch v := r[col].(type) {
	case string:
		return v
	case []byte:
		return string(v)
	}
	return ""
}

// Time parses the named column as a canonical timestamp, zero when
// absent or unparseable.
func (r Record) Time(col string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, r.String(col))
	if err != nil {
		return time.Time{}
	}
	return t
}

// Clone returns a shallow copy so callers can hold a Record across a
// later mutation.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// tableSpec is the column allow-list for one registered table. Match,
// order and write columns are all restricted to this set; the id column
// is implicit.
type tableSpec struct {
	columns []string
}

func (t tableSpec) has(col string) bool {
	return col == "id" || slices.Contains(t.columns, col)
}

func (t tableSpec) selectList() string {
	return "id, " + strings.Join(t.columns, ", ")
}

// Tables returns the registry used by the service: every domain table
// with its writable/matchable columns.
func Tables() map[string][]string {
	return map[string][]string{
		"user": {
			"created_at", "name", "email", "profile_image_path", "hero_image_path",
		},
		"account": {
			"created_at", "name", "logo_image_path", "hero_image_path",
		},
		"account_membership": {
			"created_at", "last_accessed_at", "user_id", "account_id", "role",
		},
		"account_invite": {
			"created_at", "code", "account_id", "invited_by_user_id", "email",
			"role", "expires_at", "accepted_at", "accepted_by_user_id", "revoked_at",
		},
		"task": {
			"created_at", "updated_at", "account_id", "created_by_user_id",
			"updated_by_user_id", "title", "status", "description_markdown",
			"completed_at", "archived_at",
		},
	}
}

// Store is the record cache. It shares the typed store's database handle
// so both views see the same rows.
type Store struct {
	db     *sql.DB
	tables map[string]tableSpec
	bus    *EventBus
}

// NewStore builds a Store over db restricted to the given tables. Pass
// Tables() for the full domain registry.
func NewStore(db *sql.DB, tables map[string][]string) *Store {
	specs := make(map[string]tableSpec, len(tables))
	for name, cols := range tables {
		specs[name] = tableSpec{columns: cols}
	}
	return &Store{
		db:     db,
		tables: specs,
		bus:    NewEventBus(),
	}
}

// Events exposes the change stream for subscribers.
func (s *Store) Events() *EventBus { return s.bus }

func (s *Store) spec(table string) (tableSpec, error) {
	spec, ok := s.tables[table]
	if !ok {
		return tableSpec{}, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}
	return spec, nil
}

// SelectOptions tunes a SelectMatching call.
type SelectOptions struct {
	Limit      int
	Offset     int
	OrderBy    string
	Descending bool
}

// SelectFirstByID fetches one row by primary key.
func (s *Store) SelectFirstByID(ctx context.Context, table, id string) (Record, error) {
	spec, err := s.spec(table)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`SELECT `+spec.selectList()+` FROM `+table+` WHERE id = ?`, id)
	rec, err := scanRecord(spec, row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

// SelectMatching fetches all rows whose columns equal the match values.
// An empty match selects the whole table, bounded by the limit.
func (s *Store) SelectMatching(ctx context.Context, table string, match Record, opts SelectOptions) ([]Record, error) {
	spec, err := s.spec(table)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + spec.selectList() + ` FROM ` + table
	where, args, err := buildWhere(spec, match)
	if err != nil {
		return nil, err
	}
	query += where

	if opts.OrderBy != "" {
		if !spec.has(opts.OrderBy) {
			return nil, fmt.Errorf("%w: %s.%s", ErrBadColumn, table, opts.OrderBy)
		}
		query += ` ORDER BY ` + opts.OrderBy
		if opts.Descending {
			query += ` DESC`
		}
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	query += ` LIMIT ?`
	args = append(args, limit)
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(spec, rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SelectFirstMatching is SelectMatching with limit 1, returning
// ErrNotFound when nothing matches.
func (s *Store) SelectFirstMatching(ctx context.Context, table string, match Record) (Record, error) {
	recs, err := s.SelectMatching(ctx, table, match, SelectOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(recs) == 0 {
		return nil, ErrNotFound
	}
	return recs[0], nil
}

// Update applies a partial column set to one row and returns the full
// updated row. The previous row is snapshotted first so the change
// event carries real prior state.
func (s *Store) Update(ctx context.Context, table, id string, partial Record) (Record, error) {
	spec, err := s.spec(table)
	if err != nil {
		return nil, err
	}
	if len(partial) == 0 {
		return nil, fmt.Errorf("%w: empty update", ErrWriteFailed)
	}

	prev, err := s.SelectFirstByID(ctx, table, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrWriteFailed
		}
		return nil, err
	}

	sets := make([]string, 0, len(partial))
	args := make([]any, 0, len(partial)+1)
	for _, col := range sortedKeys(partial) {
		if col == "id" || !spec.has(col) {
			return nil, fmt.Errorf("%w: %s.%s", ErrBadColumn, table, col)
		}
		sets = append(sets, col+" = ?")
		args = append(args, partial[col])
	}
	args = append(args, id)

	row := s.db.QueryRowContext(ctx,
		`UPDATE `+table+` SET `+strings.Join(sets, ", ")+` WHERE id = ? RETURNING `+spec.selectList(),
		args...)
	rec, err := scanRecord(spec, row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWriteFailed
	}
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ChangeEvent{Type: ChangeSet, Table: table, ID: rec.ID(), Value: rec, Prev: prev})
	return rec, nil
}

// Insert writes a new row and returns it as stored.
func (s *Store) Insert(ctx context.Context, table string, rec Record) (Record, error) {
	spec, err := s.spec(table)
	if err != nil {
		return nil, err
	}
	if len(rec) == 0 {
		return nil, fmt.Errorf("%w: empty insert", ErrWriteFailed)
	}

	cols := make([]string, 0, len(rec))
	marks := make([]string, 0, len(rec))
	args := make([]any, 0, len(rec))
	for _, col := range sortedKeys(rec) {
		if !spec.has(col) {
			return nil, fmt.Errorf("%w: %s.%s", ErrBadColumn, table, col)
		}
		cols = append(cols, col)
		marks = append(marks, "?")
		args = append(args, rec[col])
	}

	row := s.db.QueryRowContext(ctx,
		`INSERT INTO `+table+` (`+strings.Join(cols, ", ")+`) VALUES (`+strings.Join(marks, ", ")+
			`) RETURNING `+spec.selectList(),
		args...)
	stored, err := scanRecord(spec, row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWriteFailed
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWriteFailed, err)
	}

	s.bus.Publish(ChangeEvent{Type: ChangeSet, Table: table, ID: stored.ID(), Value: stored})
	return stored, nil
}

// Delete removes one row and returns its prior state. Absent rows are
// ErrNotFound and publish nothing.
func (s *Store) Delete(ctx context.Context, table, id string) (Record, error) {
	spec, err := s.spec(table)
	if err != nil {
		return nil, err
	}

	row := s.db.QueryRowContext(ctx,
		`DELETE FROM `+table+` WHERE id = ? RETURNING `+spec.selectList(), id)
	rec, err := scanRecord(spec, row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	s.bus.Publish(ChangeEvent{Type: ChangeDelete, Table: table, ID: id, Prev: rec})
	return rec, nil
}

// Announce re-reads a row and publishes a set event for it. Services
// that mutate rows inside a store transaction use this after commit so
// subscribers still see exactly one event per changed row.
func (s *Store) Announce(ctx context.Context, table, id string, prev Record) error {
	rec, err := s.SelectFirstByID(ctx, table, id)
	if err != nil {
		return err
	}
	s.bus.Publish(ChangeEvent{Type: ChangeSet, Table: table, ID: id, Value: rec, Prev: prev})
	return nil
}

func buildWhere(spec tableSpec, match Record) (string, []any, error) {
	if len(match) == 0 {
		return "", nil, nil
	}
	conds := make([]string, 0, len(match))
	args := make([]any, 0, len(match))
	for _, col := range sortedKeys(match) {
		if !spec.has(col) {
			return "", nil, fmt.Errorf("%w: %s", ErrBadColumn, col)
		}
		conds = append(conds, col+" = ?")
		args = append(args, match[col])
	}
	return ` WHERE ` + strings.Join(conds, " AND "), args, nil
}

func sortedKeys(r Record) []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func scanRecord(spec tableSpec, scan func(dest ...any) error) (Record, error) {
	dest := make([]any, 1+len(spec.columns))
	for i := range dest {
		dest[i] = new(any)
	}
	if err := scan(dest...); err != nil {
		return nil, err
	}

	rec := make(Record, len(dest))
	rec["id"] = normalize(*dest[0].(*any))
	for i, col := range spec.columns {
		rec[col] = normalize(*dest[i+1].(*any))
	}
	return rec, nil
}

// normalize maps driver byte slices to strings so Records compare and
// serialize cleanly.
func normalize(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
