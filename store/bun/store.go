package bunstore

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"

	"github.com/uptrace/bun"

	"github.com/xraph/attempts/attempt"
	"github.com/xraph/attempts/failed"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Compile-time interface checks.
var (
	_ failed.Store    = (*Store)(nil)
	_ attempt.Counter = (*Store)(nil)
)

// Store is a Bun implementation of failed.Store and attempt.Counter.
// The caller owns the *bun.DB lifecycle; Store never closes it.
type Store struct {
	db     *bun.DB
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// New creates a Bun store. Close leaves db open.
func New(db *bun.DB, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying *bun.DB for advanced usage.
func (s *Store) DB() *bun.DB {
	return s.db
}

// Migrate applies embedded SQL migrations in filename order. Each file
// runs in its own transaction together with its tracking row.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS attempts_migrations (
			filename TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`)
	if err != nil {
		return fmt.Errorf("attempts/bun: create migrations table: %w", err)
	}

	names, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("attempts/bun: read migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		file := path.Base(name)

		exists, err := s.db.NewSelect().
			TableExpr("attempts_migrations").
			Where("filename = ?", file).
			Exists(ctx)
		if err != nil {
			return fmt.Errorf("attempts/bun: check migration %s: %w", file, err)
		}
		if exists {
			continue
		}

		data, err := fs.ReadFile(migrationsFS, name)
		if err != nil {
			return fmt.Errorf("attempts/bun: read migration %s: %w", file, err)
		}

		err = s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
			if _, err := tx.ExecContext(ctx, string(data)); err != nil {
				return err
			}
			_, err := tx.NewInsert().
				Model(&migrationModel{Filename: file}).
				Exec(ctx)
			return err
		})
		if err != nil {
			return fmt.Errorf("attempts/bun: apply migration %s: %w", file, err)
		}

		s.logger.Info("applied migration", "file", file)
	}

	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close is a no-op because the caller owns the *bun.DB lifecycle.
func (s *Store) Close() error {
	return nil
}
