// Package sqlite implements the durable conversation store on
// modernc.org/sqlite (pure Go, no CGO) with WAL mode. One row holds one
// session: a JSON snapshot of the full conversation, indexed by updated-at
// for efficient expiry scans.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/Kenbark42/dominus-ai/internal/conversation"

	_ "modernc.org/sqlite" // SQLite driver registration
)

const defaultBusyTimeout = 5000

// Options tunes how the database is opened.
type Options struct {
	// WAL enables WAL journal mode for concurrent reads. Defaults to true.
	WAL *bool

	// BusyTimeout is the milliseconds to wait on a busy lock. Defaults to 5000.
	BusyTimeout int

	// Logger is used for degraded-mode warnings (corrupt rows are skipped,
	// not fatal). Defaults to slog.Default().
	Logger *slog.Logger
}

func (o *Options) defaults() {
	if o.WAL == nil {
		t := true
		o.WAL = &t
	}
	if o.BusyTimeout == 0 {
		o.BusyTimeout = defaultBusyTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Store is the SQLite-backed conversation.Store.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Compile-time interface guard.
var _ conversation.Store = (*Store)(nil)

// Open opens (creating if needed) the conversation database at path.
//
// The pool is limited to a single connection: SQLite serialises writes
// anyway, and one connection keeps the PRAGMAs applied consistently.
// The schema is migrated automatically.
func Open(path string, opts Options) (*Store, error) {
	opts.defaults()

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("sqlite: create directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}

	db.SetMaxOpenConns(1)

	ctx := context.Background()

	if *opts.WAL {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite: enable WAL: %w", err)
		}
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d", opts.BusyTimeout)); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}

	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, logger: opts.Logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
