package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	goredis "github.com/redis/go-redis/v9"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/attempt"
	"github.com/xraph/attempts/failed"
	bunstore "github.com/xraph/attempts/store/bun"
	"github.com/xraph/attempts/store/memory"
	"github.com/xraph/attempts/store/mongo"
	"github.com/xraph/attempts/store/postgres"
	redisstore "github.com/xraph/attempts/store/redis"
	"github.com/xraph/attempts/store/sqlite"
)

// Store is a failed-job backend with its lifecycle.
type Store interface {
	failed.Store

	// Migrate creates or upgrades the schema.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases resources the backend opened itself.
	Close() error
}

// Compile-time checks that every backend satisfies Store and Counter.
var (
	_ Store = (*memory.Store)(nil)
	_ Store = (*redisstore.Store)(nil)
	_ Store = (*postgres.Store)(nil)
	_ Store = (*bunstore.Store)(nil)
	_ Store = (*sqlite.Store)(nil)
	_ Store = (*mongo.Store)(nil)

	_ attempt.Counter = (*bunstore.Store)(nil)
	_ attempt.Counter = (*mongo.Store)(nil)
)

// Backends holds the opened failed-job store and attempt counter.
type Backends struct {
	Failed  Store
	Counter attempt.Counter

	closers []func() error
}

// Close releases every connection Open created, last opened first.
func (b *Backends) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.closers = nil
	return errors.Join(errs...)
}

// Open connects the failed store and counter selected by cfg.
func Open(ctx context.Context, cfg attempts.Config, logger *slog.Logger) (*Backends, error) {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Backends{}

	fs, err := b.openFailed(ctx, cfg.FailedStore, logger)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Failed = fs

	counter, err := b.openCounter(cfg.Counter, fs, logger)
	if err != nil {
		_ = b.Close()
		return nil, err
	}
	b.Counter = counter

	logger.Debug("store backends opened",
		slog.String("failed_driver", cfg.FailedStore.Driver),
		slog.String("counter_driver", cfg.Counter.Driver),
	)
	return b, nil
}

func (b *Backends) openFailed(ctx context.Context, cfg attempts.FailedStoreConfig, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", "memory":
		return memory.New(), nil

	case "redis":
		opts, err := redisOptions(cfg.DSN, "", 0)
		if err != nil {
			return nil, err
		}
		client := goredis.NewClient(opts)
		b.closers = append(b.closers, client.Close)
		return redisstore.New(client, redisstore.WithLogger(logger)), nil

	case "postgres":
		s, err := postgres.New(ctx, cfg.DSN, postgres.WithLogger(logger))
		if err != nil {
			return nil, attempts.Unavailable("open postgres", err)
		}
		b.closers = append(b.closers, s.Close)
		return s, nil

	case "bun":
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN)))
		db := bun.NewDB(sqldb, pgdialect.New())
		b.closers = append(b.closers, db.Close)
		return bunstore.New(db, bunstore.WithLogger(logger)), nil

	case "sqlite":
		s, err := sqlite.Open(ctx, cfg.DSN, sqlite.WithLogger(logger))
		if err != nil {
			return nil, attempts.Unavailable("open sqlite", err)
		}
		b.closers = append(b.closers, s.Close)
		return s, nil

	case "mongo":
		database := cfg.Database
		if database == "" {
			database = "attempts"
		}
		s, err := mongo.Connect(ctx, cfg.DSN, database, mongo.WithLogger(logger))
		if err != nil {
			return nil, attempts.Unavailable("open mongo", err)
		}
		b.closers = append(b.closers, s.Close)
		return s, nil

	default:
		return nil, fmt.Errorf("%w: unknown failed_store.driver %q", attempts.ErrConfiguration, cfg.Driver)
	}
}

func (b *Backends) openCounter(cfg attempts.CounterConfig, fs Store, logger *slog.Logger) (attempt.Counter, error) {
	switch cfg.Driver {
	case "", "memory":
		if m, ok := fs.(*memory.Store); ok {
			return m, nil
		}
		return memory.New(), nil

	case "redis":
		opts, err := redisOptions(cfg.Addr, cfg.Password, cfg.DB)
		if err != nil {
			return nil, err
		}
		client := goredis.NewClient(opts)
		b.closers = append(b.closers, client.Close)
		return redisstore.New(client, redisstore.WithLogger(logger)), nil

	case "store":
		c, ok := fs.(attempt.Counter)
		if !ok {
			return nil, fmt.Errorf("%w: failed store %T cannot hold attempt counters", attempts.ErrConfiguration, fs)
		}
		return c, nil

	default:
		return nil, fmt.Errorf("%w: unknown counter.driver %q", attempts.ErrConfiguration, cfg.Driver)
	}
}

// redisOptions accepts either a redis:// URL or a host:port address.
func redisOptions(addr, password string, db int) (*goredis.Options, error) {
	if strings.HasPrefix(addr, "redis://") || strings.HasPrefix(addr, "rediss://") {
		opts, err := goredis.ParseURL(addr)
		if err != nil {
			return nil, fmt.Errorf("%w: redis url: %w", attempts.ErrConfiguration, err)
		}
		return opts, nil
	}
	if addr == "" {
		addr = "localhost:6379"
	}
	return &goredis.Options{Addr: addr, Password: password, DB: db}, nil
}
