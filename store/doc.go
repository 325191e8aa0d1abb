// Package store opens the persistence backends named by attempts.Config.
//
// Every backend implements [failed.Store] plus the lifecycle methods of
// [Store]. Most also implement [attempt.Counter], so one database can hold
// both the failed-job table and the attempt counters:
//
//   - store/memory: in process, for tests and development
//   - store/redis: counters with MULTI/INCR/EXPIRE, records in hashes
//   - store/postgres: pgx/v5 pool with embedded migrations
//   - store/bun: Bun ORM on the PostgreSQL dialect
//   - store/sqlite: modernc.org/sqlite through database/sql
//   - store/mongo: the official v2 driver
//
// # Usage
//
//	b, err := store.Open(ctx, cfg, logger)
//	if err != nil {
//	    return err
//	}
//	defer b.Close()
//
//	if err := b.Failed.Migrate(ctx); err != nil {
//	    return err
//	}
//
// Set counter.driver to "store" to keep counters in the failed-job
// backend. The redis and memory counter drivers open their own client.
package store
