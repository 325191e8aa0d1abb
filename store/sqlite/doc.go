// Package sqlite implements the failed-job store and the attempt counter
// on SQLite through database/sql and the pure-Go modernc.org/sqlite
// driver. Suitable for single-node deployments, CLI tools and tests.
//
//	s, err := sqlite.Open(ctx, "file:attempts.db")
//	if err != nil { ... }
//	defer s.Close()
//	_ = s.Migrate(ctx)
//
// Timestamps are stored as fixed-width UTC text so they compare correctly
// as strings. Counter expiry is stored as Unix milliseconds.
package sqlite
