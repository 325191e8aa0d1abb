package sqlite

import (
	"context"
	"fmt"
)

type migration struct {
	Version string
	Name    string
	Up      string
}

// migrations are applied in order and recorded in attempts_migrations.
var migrations = []migration{
	{
		Version: "20260101120000",
		Name:    "create_failed_jobs_table",
		Up: `
			CREATE TABLE IF NOT EXISTS failed_jobs (
				id                INTEGER PRIMARY KEY AUTOINCREMENT,
				uuid              TEXT    NOT NULL UNIQUE,
				type_name         TEXT    NOT NULL,
				connection        TEXT    NOT NULL DEFAULT '',
				queue             TEXT    NOT NULL DEFAULT 'default',
				payload           BLOB    NOT NULL,
				exception_summary TEXT    NOT NULL DEFAULT '',
				exception         TEXT    NOT NULL DEFAULT '',
				attempts          INTEGER NOT NULL DEFAULT 0,
				failed_at         TEXT    NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_failed_jobs_queue_failed_at
				ON failed_jobs (queue, failed_at DESC);
			CREATE INDEX IF NOT EXISTS idx_failed_jobs_failed_at
				ON failed_jobs (failed_at DESC, id DESC);`,
	},
	{
		Version: "20260101120001",
		Name:    "create_job_attempts_table",
		Up: `
			CREATE TABLE IF NOT EXISTS job_attempts (
				key        TEXT    PRIMARY KEY,
				count      INTEGER NOT NULL,
				expires_at INTEGER NOT NULL
			);`,
	},
}

// Migrate applies pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS attempts_migrations (
			version    TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("attempts/sqlite: create migrations table: %w", err)
	}

	for _, m := range migrations {
		var applied bool
		err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS(SELECT 1 FROM attempts_migrations WHERE version = ?)`, m.Version,
		).Scan(&applied)
		if err != nil {
			return fmt.Errorf("attempts/sqlite: check migration %s: %w", m.Name, err)
		}
		if applied {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("attempts/sqlite: begin migration %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx, m.Up); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("attempts/sqlite: execute migration %s: %w", m.Name, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attempts_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
			m.Version, m.Name, formatTime(s.now()),
		); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("attempts/sqlite: record migration %s: %w", m.Name, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("attempts/sqlite: commit migration %s: %w", m.Name, err)
		}

		s.logger.Info("applied migration", "name", m.Name, "version", m.Version)
	}
	return nil
}
