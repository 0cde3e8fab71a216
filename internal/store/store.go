// Package store is the durable metadata store for projects, sessions,
// workers, and dev servers. It is backed by sqlite with a single write
// connection; all invariants that span rows (unique pane names, ports,
// branches) are enforced here under transactions.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/saadnvd1/agentos/internal/apperr"
)

// UncategorizedProjectID is the reserved project every store contains.
// It absorbs orphaned rows on migration and cannot be deleted.
const UncategorizedProjectID = "uncategorized"

// Common errors.
var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
)

// timeFormat is the persisted timestamp layout, UTC at second precision.
const timeFormat = "2006-01-02 15:04:05"

// Store wraps the sqlite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and applies pending
// migrations.
func Open(path string) (*Store, error) {
	// _busy_timeout makes concurrent starts wait instead of failing while
	// another process holds the migration transaction.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	// Single writer. Readers share the same connection; sqlite serializes.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// now returns the current UTC timestamp string. The store is the only
// source of created_at / updated_at.
func now() string {
	return time.Now().UTC().Format(timeFormat)
}

// boolInt converts a bool to its persisted 0/1 form.
func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// mapErr translates sqlite errors into the store's error vocabulary.
// Constraint violations become ErrConflict wrapped with a Conflict kind;
// sql.ErrNoRows becomes ErrNotFound.
func mapErr(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.Wrap(apperr.NotFound, ErrNotFound, "%s", what)
	}
	var se sqlite3.Error
	if errors.As(err, &se) && se.Code == sqlite3.ErrConstraint {
		return apperr.Wrap(apperr.Conflict, ErrConflict, "%s: %v", what, se)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// tx runs fn inside a transaction, committing on nil and rolling back on
// error. Callers must not hold the transaction across external-command
// waits.
func (s *Store) tx(fn func(*sql.Tx) error) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// nullIfEmpty converts "" to NULL for optional text columns.
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// strOrEmpty reads a nullable text column.
func strOrEmpty(ns sql.NullString) string {
	if ns.Valid {
		return ns.String
	}
	return ""
}

// intOrZero reads a nullable int column.
func intOrZero(ni sql.NullInt64) int {
	if ni.Valid {
		return int(ni.Int64)
	}
	return 0
}

// joinInts renders a port list as its persisted comma-separated form.
func joinInts(ns []int) string {
	if len(ns) == 0 {
		return ""
	}
	parts := make([]string, len(ns))
	for i, n := range ns {
		parts[i] = fmt.Sprintf("%d", n)
	}
	return strings.Join(parts, ",")
}

// splitInts parses the persisted comma-separated port list.
func splitInts(s string) []int {
	if s == "" {
		return nil
	}
	var out []int
	for _, part := range strings.Split(s, ",") {
		var n int
		if _, err := fmt.Sscanf(strings.TrimSpace(part), "%d", &n); err == nil {
			out = append(out, n)
		}
	}
	return out
}
