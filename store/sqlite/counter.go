package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Incr increments the counter at key, starting over at 1 when it is
// absent or expired, and pushes its expiry to now+ttl.
func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	now := s.now()
	var n int64
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO job_attempts (key, count, expires_at) VALUES (?, 1, ?)
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN job_attempts.expires_at > ? THEN job_attempts.count + 1 ELSE 1 END,
			expires_at = excluded.expires_at
		RETURNING count`,
		key, now.Add(ttl).UnixMilli(), now.UnixMilli(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("attempts/sqlite: incr %s: %w", key, err)
	}
	return n, nil
}

// Delete removes the counter at key. A missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM job_attempts WHERE key = ?`, key); err != nil {
		return fmt.Errorf("attempts/sqlite: delete %s: %w", key, err)
	}
	return nil
}

// Get returns the live counter at key.
func (s *Store) Get(ctx context.Context, key string) (int64, bool, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT count FROM job_attempts WHERE key = ? AND expires_at > ?`, key, s.now().UnixMilli(),
	).Scan(&n)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("attempts/sqlite: get %s: %w", key, err)
	}
	return n, true, nil
}
