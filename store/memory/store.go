// Package memory implements the attempt counter and the failed-job store
// in process. It is safe for concurrent use and intended for tests and
// single-process development setups.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/attempt"
	"github.com/xraph/attempts/failed"
)

// Compile-time interface checks.
var (
	_ attempt.Counter = (*Store)(nil)
	_ failed.Store    = (*Store)(nil)
)

type counterEntry struct {
	n         int64
	expiresAt time.Time
}

// Store is an in-memory attempt counter and failed-job store.
type Store struct {
	mu sync.Mutex

	counters map[string]*counterEntry
	records  map[int64]*failed.Record
	seq      int64

	now func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithClock overrides the time source used for TTL expiry.
func WithClock(now func() time.Time) Option {
	return func(m *Store) { m.now = now }
}

// New returns a new empty Store.
func New(opts ...Option) *Store {
	m := &Store{
		counters: make(map[string]*counterEntry),
		records:  make(map[int64]*failed.Record),
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

// Migrate is a no-op for the memory store.
func (m *Store) Migrate(_ context.Context) error { return nil }

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Attempt counter
// ──────────────────────────────────────────────────

// Incr adds one to key, treating an expired counter as absent, and resets
// its TTL.
func (m *Store) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	e, ok := m.counters[key]
	if !ok || m.expired(e, now) {
		e = &counterEntry{}
		m.counters[key] = e
	}
	e.n++
	if ttl > 0 {
		e.expiresAt = now.Add(ttl)
	} else {
		e.expiresAt = time.Time{}
	}
	return e.n, nil
}

// Delete removes key.
func (m *Store) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.counters, key)
	return nil
}

// Get returns the live value of key.
func (m *Store) Get(_ context.Context, key string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.counters[key]
	if !ok {
		return 0, false, nil
	}
	if m.expired(e, m.now()) {
		delete(m.counters, key)
		return 0, false, nil
	}
	return e.n, true, nil
}

func (m *Store) expired(e *counterEntry, now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// ──────────────────────────────────────────────────
// Failed-job store
// ──────────────────────────────────────────────────

// InsertFailed stores a copy of r and assigns the next ID.
func (m *Store) InsertFailed(_ context.Context, r *failed.Record) error {
	if err := failed.Prepare(r); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.seq++
	r.ID = m.seq
	m.records[r.ID] = copyRecord(r)
	return nil
}

// FindFailed returns a copy of the selected record.
func (m *Store) FindFailed(_ context.Context, sel failed.Selector) (*failed.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if r := m.find(sel); r != nil {
		return copyRecord(r), nil
	}
	return nil, attempts.ErrFailedJobNotFound
}

// ListFailed returns copies of matching records, newest first.
func (m *Store) ListFailed(_ context.Context, opts failed.ListOpts) ([]*failed.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*failed.Record
	for _, r := range m.records {
		if opts.Filter.Match(r) {
			out = append(out, copyRecord(r))
		}
	}
	failed.SortNewestFirst(out)
	return failed.Page(out, opts.Limit, opts.Offset), nil
}

// DeleteFailed removes the selected record.
func (m *Store) DeleteFailed(_ context.Context, sel failed.Selector) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r := m.find(sel)
	if r == nil {
		return attempts.ErrFailedJobNotFound
	}
	delete(m.records, r.ID)
	return nil
}

// DeleteFailedBulk removes every record matching f.
func (m *Store) DeleteFailedBulk(_ context.Context, f failed.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for k, r := range m.records {
		if f.Match(r) {
			delete(m.records, k)
			n++
		}
	}
	return n, nil
}

// CountFailed returns the number of records matching f.
func (m *Store) CountFailed(_ context.Context, f failed.Filter) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var n int64
	for _, r := range m.records {
		if f.Match(r) {
			n++
		}
	}
	return n, nil
}

func (m *Store) find(sel failed.Selector) *failed.Record {
	if sel.UUID == "" {
		return m.records[sel.ID]
	}
	for _, r := range m.records {
		if sel.Match(r) {
			return r
		}
	}
	return nil
}

func copyRecord(r *failed.Record) *failed.Record {
	cp := *r
	cp.Payload = append([]byte(nil), r.Payload...)
	return &cp
}
