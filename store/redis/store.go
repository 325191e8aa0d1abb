// Package redis implements the attempt counter and the failed-job store on
// Redis.
//
// Attempt counters are plain string keys bumped with MULTI/INCR/EXPIRE,
// which makes the increment atomic across workers and refreshes the TTL on
// every attempt. Failed records are hashes indexed by a sorted set scored
// by their numeric ID.
//
// Usage:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	s := redisstore.New(client)
//	if err := s.Ping(ctx); err != nil { ... }
package redis

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/attempts/attempt"
	"github.com/xraph/attempts/failed"
)

// Compile-time interface checks.
var (
	_ attempt.Counter = (*Store)(nil)
	_ failed.Store    = (*Store)(nil)
)

// Option configures the Store.
type Option func(*Store)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithKeyPrefix sets the namespace of failed-record keys. Counter keys
// are used as given; attempt.Store already prefixes them.
func WithKeyPrefix(p string) Option {
	return func(s *Store) { s.keys = keyspace(p) }
}

// Store is an attempt counter and failed-job store backed by Redis.
type Store struct {
	client redis.Cmdable
	logger *slog.Logger
	keys   keyspace
}

// New creates a new Redis-backed store. The caller owns the Redis client
// lifecycle.
func New(client redis.Cmdable, opts ...Option) *Store {
	s := &Store{client: client, logger: slog.Default(), keys: defaultKeyspace}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Client returns the underlying Redis client.
func (s *Store) Client() redis.Cmdable { return s.client }

// Migrate is a no-op for Redis (schemaless).
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping verifies the Redis connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close is a no-op; the caller owns the Redis client lifecycle.
func (s *Store) Close() error { return nil }
