package engine

import (
	"context"
	"fmt"
	"log/slog"

	goredis "github.com/redis/go-redis/v9"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/queue"
	qmemory "github.com/xraph/attempts/queue/memory"
	qredis "github.com/xraph/attempts/queue/redis"
	"github.com/xraph/attempts/store"
)

// Open connects every backend named by cfg, migrates the failed store and
// builds an Engine. Close releases the connections.
func Open(ctx context.Context, cfg attempts.Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base := &Engine{logger: slog.Default()}
	for _, opt := range opts {
		opt(base)
	}
	logger := base.logger

	backends, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if err := backends.Failed.Migrate(ctx); err != nil {
		_ = backends.Close()
		return nil, attempts.Unavailable("migrate failed store", err)
	}

	dispatcher, closeDispatcher, err := openDispatcher(cfg.Queue, logger)
	if err != nil {
		_ = backends.Close()
		return nil, err
	}

	eng, err := New(cfg, backends.Failed, backends.Counter, dispatcher, opts...)
	if err != nil {
		_ = closeDispatcher()
		_ = backends.Close()
		return nil, err
	}
	eng.closers = append(eng.closers, backends.Close, closeDispatcher)
	return eng, nil
}

func openDispatcher(cfg attempts.QueueConfig, logger *slog.Logger) (queue.Dispatcher, func() error, error) {
	noop := func() error { return nil }

	switch cfg.Driver {
	case "", "memory":
		return qmemory.New(), noop, nil

	case "redis":
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		})
		d := qredis.New(client,
			qredis.WithLogger(logger),
			qredis.WithPrefix(cfg.Prefix),
			qredis.WithCodec(queue.GetCodec(cfg.Codec)),
			qredis.WithConnection(cfg.Connection),
		)
		return d, client.Close, nil

	default:
		return nil, nil, fmt.Errorf("%w: unknown queue.driver %q", attempts.ErrConfiguration, cfg.Driver)
	}
}
