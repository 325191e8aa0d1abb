// Package cron runs retention pruning of the failed store on a cron
// schedule.
//
// A [Pruner] deletes failed records older than its max age whenever its
// schedule comes due. Schedules are standard 5-field cron expressions
// ("0 3 * * *") or descriptors ("@every 1h", "@daily").
//
//	p, err := cron.NewPruner(store, "0 3 * * *", 7*24*time.Hour, logger)
//	if err != nil { ... }
//	_ = p.Start(ctx)
//	defer p.Stop(ctx)
//
// Run a single pass without a schedule with [Pruner.PruneOnce]; the
// attemptsctl prune command does exactly that.
package cron
