// Package mongo implements the failed-job store and the attempt counter on
// MongoDB using the official v2 driver.
//
// Numeric failed-job IDs come from a sequence document updated with $inc,
// so they increase monotonically like the SQL backends. Counters are
// upserted with an update pipeline that restarts at 1 once expires_at
// has passed.
//
//	client, _ := mongod.Connect(options.Client().ApplyURI(uri))
//	s := mongo.New(client.Database("app"))
//	_ = s.Migrate(ctx)
package mongo
