package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/attempts/attempt"
	"github.com/xraph/attempts/failed"
)

// Collection name constants.
const (
	colFailedJobs = "failed_jobs"
	colAttempts   = "job_attempts"
	colSequences  = "attempts_sequences"
)

// Compile-time interface checks.
var (
	_ failed.Store    = (*Store)(nil)
	_ attempt.Counter = (*Store)(nil)
)

// Store is a MongoDB implementation of failed.Store and attempt.Counter.
type Store struct {
	db     *mongod.Database
	client *mongod.Client
	logger *slog.Logger
	now    func() time.Time
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger for the store.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithClock overrides the time source used for counter expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// New creates a store on db. The caller owns the client; Close does not
// disconnect it.
func New(db *mongod.Database, opts ...Option) *Store {
	s := &Store{
		db:     db,
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Connect dials uri and returns a store on database. Close disconnects
// the client.
func Connect(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	client, err := mongod.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("attempts/mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("attempts/mongo: ping: %w", err)
	}
	s := New(client.Database(database), opts...)
	s.client = client
	return s, nil
}

// Database returns the underlying database handle.
func (s *Store) Database() *mongod.Database {
	return s.db
}

// Migrate creates the collections' indexes.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("attempts/mongo: migrate %s indexes: %w", col, err)
		}
		s.logger.Debug("ensured indexes", "collection", col, "count", len(models))
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Client().Ping(ctx, nil)
}

// Close disconnects the client when Connect created it.
func (s *Store) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(context.Background())
}

// isNoDocuments returns true when err indicates no MongoDB documents found.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colFailedJobs: {
			{
				Keys:    bson.D{{Key: "uuid", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{
				{Key: "queue", Value: 1},
				{Key: "failed_at", Value: -1},
			}},
			{Keys: bson.D{
				{Key: "failed_at", Value: -1},
				{Key: "_id", Value: -1},
			}},
		},
		colAttempts: {
			// Lets MongoDB reap counters some time after they expire.
			{
				Keys:    bson.D{{Key: "expires_at", Value: 1}},
				Options: options.Index().SetExpireAfterSeconds(0),
			},
		},
	}
}
