package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/xraph/steady/id"
	"github.com/xraph/steady/job"
	"github.com/xraph/steady/store"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Ensure Store implements the store interfaces at compile time.
var (
	_ job.Store   = (*Store)(nil)
	_ store.Store = (*Store)(nil)
)

// Store is a SQLite implementation of store.Store.
//
// Each Store instance owns an opaque lock owner token. Advisory locks
// are rows in steady_locks tagged with that token plus an expiry, so
// locks a dead process left behind become reclaimable once they expire.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// owner tags this instance's lock rows.
	owner   string
	lockTTL time.Duration
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithLockTTL sets how long an acquired lock row stays valid before
// other processes may reclaim it. Size it above the longest expected
// dispatch, blocking retry waits included.
func WithLockTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.lockTTL = ttl
	}
}

// New opens a SQLite database at the given path and wraps it in a
// store. Use ":memory:" for an in-memory database (tests).
func New(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("steady/sqlite: open %q: %w", path, err)
	}

	// SQLite allows one writer; funneling all statements through a
	// single connection avoids SQLITE_BUSY under concurrent workers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`
		PRAGMA journal_mode = WAL;
		PRAGMA foreign_keys = ON;
		PRAGMA busy_timeout = 5000;
	`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("steady/sqlite: set pragmas: %w", err)
	}

	return NewFromDB(db, opts...), nil
}

// NewFromDB wraps an already opened *sql.DB. The caller is responsible
// for pragmas and connection limits.
func NewFromDB(db *sql.DB, opts ...Option) *Store {
	s := &Store{
		db:      db,
		logger:  slog.Default(),
		owner:   id.NewWorkerID().String(),
		lockTTL: 15 * time.Minute,
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Migrate runs all embedded SQL migration files in order.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS steady_migrations (
			filename TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("steady/sqlite: create migrations table: %w", err)
	}

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("steady/sqlite: read migrations: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}

		var applied bool
		err = s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM steady_migrations WHERE filename = ?)`,
			entry.Name(),
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("steady/sqlite: check migration %s: %w", entry.Name(), err)
		}
		if applied {
			continue
		}

		data, readErr := fs.ReadFile(migrationsFS, "migrations/"+entry.Name())
		if readErr != nil {
			return fmt.Errorf("steady/sqlite: read migration %s: %w", entry.Name(), readErr)
		}

		if _, execErr := s.db.ExecContext(ctx, string(data)); execErr != nil {
			return fmt.Errorf("steady/sqlite: execute migration %s: %w", entry.Name(), execErr)
		}

		if _, recErr := s.db.ExecContext(ctx,
			`INSERT INTO steady_migrations (filename) VALUES (?)`,
			entry.Name(),
		); recErr != nil {
			return fmt.Errorf("steady/sqlite: record migration %s: %w", entry.Name(), recErr)
		}

		s.logger.Info("applied migration", "file", entry.Name())
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close releases this instance's lock rows and closes the database.
func (s *Store) Close() error {
	// Best effort: leftover rows expire via their TTL anyway.
	_, _ = s.db.Exec(`DELETE FROM steady_locks WHERE owner = ?`, s.owner)
	return s.db.Close()
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *Store) DB() *sql.DB {
	return s.db
}
