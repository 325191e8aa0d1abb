// Package bunstore implements the failed-job store and the attempt counter
// using the Bun ORM with the PostgreSQL dialect, for applications that
// already share a *bun.DB.
//
// The caller owns the *bun.DB lifecycle and bunstore never closes it:
//
//	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
//	db := bun.NewDB(sqldb, pgdialect.New())
//	s := bunstore.New(db)
//	_ = s.Migrate(ctx)
package bunstore
