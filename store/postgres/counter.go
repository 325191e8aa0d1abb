package postgres

import (
	"context"
	"fmt"
	"time"
)

// Incr increments the counter at key, starting over at 1 when it is
// absent or expired, and pushes its expiry to now+ttl. The upsert is a
// single statement, so concurrent callers get distinct values.
func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var n int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO job_attempts (key, count, expires_at)
		VALUES ($1, 1, NOW() + $2::bigint * INTERVAL '1 millisecond')
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN job_attempts.expires_at > NOW()
				THEN job_attempts.count + 1 ELSE 1 END,
			expires_at = EXCLUDED.expires_at
		RETURNING count`,
		key, ttl.Milliseconds(),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("attempts/postgres: incr %s: %w", key, err)
	}
	return n, nil
}

// Delete removes the counter at key. A missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM job_attempts WHERE key = $1`, key); err != nil {
		return fmt.Errorf("attempts/postgres: delete %s: %w", key, err)
	}
	return nil
}

// Get returns the live counter at key.
func (s *Store) Get(ctx context.Context, key string) (int64, bool, error) {
	var n int64
	err := s.pool.QueryRow(ctx,
		`SELECT count FROM job_attempts WHERE key = $1 AND expires_at > NOW()`, key,
	).Scan(&n)
	if err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("attempts/postgres: get %s: %w", key, err)
	}
	return n, true, nil
}
