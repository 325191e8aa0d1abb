// Package attempt tracks how many times each logical job has been
// attempted.
//
// Counts live in an external Counter with a TTL, so every worker sees the
// same value and counters orphaned by a crashed worker expire on their
// own. The authoritative operation is Increment; Peek exists for operator
// diagnostics only and must not drive retry decisions.
package attempt

import (
	"context"
	"time"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/identity"
)

// Counter is the key-value backend behind a Store.
type Counter interface {
	// Incr atomically adds one to key, creating it at 1 if absent, and
	// resets its TTL. Two concurrent calls on the same key never return
	// the same value.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)

	// Delete removes key. A missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Get reads key without modifying it. found is false for a missing
	// key.
	Get(ctx context.Context, key string) (n int64, found bool, err error)
}

// Store maps identities onto Counter keys.
type Store struct {
	counter Counter
	prefix  string
}

// NewStore returns a Store whose keys are prefix + identity.
func NewStore(counter Counter, prefix string) *Store {
	return &Store{counter: counter, prefix: prefix}
}

// Key returns the counter key of id.
func (s *Store) Key(id identity.Identity) string {
	return s.prefix + id.String()
}

// Increment records one more attempt of id and returns the attempt number.
// A backend failure is returned as attempts.ErrStoreUnavailable and never
// defaults to 1.
func (s *Store) Increment(ctx context.Context, id identity.Identity, ttl time.Duration) (int, error) {
	n, err := s.counter.Incr(ctx, s.Key(id), ttl)
	if err != nil {
		return 0, attempts.Unavailable("attempt: increment "+id.String(), err)
	}
	return int(n), nil
}

// Clear forgets id's attempts. Clearing an absent counter is a no-op.
func (s *Store) Clear(ctx context.Context, id identity.Identity) error {
	if err := s.counter.Delete(ctx, s.Key(id)); err != nil {
		return attempts.Unavailable("attempt: clear "+id.String(), err)
	}
	return nil
}

// Peek returns the current attempt count of id, or 0 if none is recorded.
func (s *Store) Peek(ctx context.Context, id identity.Identity) (int, error) {
	n, found, err := s.counter.Get(ctx, s.Key(id))
	if err != nil {
		return 0, attempts.Unavailable("attempt: peek "+id.String(), err)
	}
	if !found {
		return 0, nil
	}
	return int(n), nil
}
