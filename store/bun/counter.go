package bunstore

import (
	"context"
	"fmt"
	"time"
)

// Incr increments the counter at key, starting over at 1 when it is
// absent or expired, and pushes its expiry to now+ttl.
func (s *Store) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	var n int64
	err := s.db.NewRaw(`
		INSERT INTO job_attempts (key, count, expires_at)
		VALUES (?, 1, NOW() + ? * INTERVAL '1 millisecond')
		ON CONFLICT (key) DO UPDATE SET
			count = CASE WHEN job_attempts.expires_at > NOW()
				THEN job_attempts.count + 1 ELSE 1 END,
			expires_at = EXCLUDED.expires_at
		RETURNING count`,
		key, ttl.Milliseconds(),
	).Scan(ctx, &n)
	if err != nil {
		return 0, fmt.Errorf("attempts/bun: incr %s: %w", key, err)
	}
	return n, nil
}

// Delete removes the counter at key. A missing key is not an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.db.NewDelete().
		TableExpr("job_attempts").
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("attempts/bun: delete %s: %w", key, err)
	}
	return nil
}

// Get returns the live counter at key.
func (s *Store) Get(ctx context.Context, key string) (int64, bool, error) {
	var n int64
	err := s.db.NewSelect().
		TableExpr("job_attempts").
		Column("count").
		Where("key = ?", key).
		Where("expires_at > NOW()").
		Scan(ctx, &n)
	if err != nil {
		if isNoRows(err) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("attempts/bun: get %s: %w", key, err)
	}
	return n, true, nil
}
