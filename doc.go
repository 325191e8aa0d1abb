// Package attempts adds bounded retries to a queue worker runtime.
//
// Every execution of a job increments an attempt counter keyed by the job's
// identity. A failing body is re-dispatched with a backoff delay until the
// job's maximum attempt count is reached; after that the job is written to
// a durable failed-job store, from which an operator can inspect, retry or
// delete it.
//
// attempts is a library. It does not poll queues or run workers: the host
// runtime hands each delivery to worker.Executor and re-enqueues through the
// queue.Dispatcher it supplies.
//
// # Quick Start
//
//	eng, err := engine.New(cfg, failedStore, counter, dispatcher)
//	engine.Register(eng, job.NewDefinition("send-email", sendEmail,
//	    job.WithMaxTries(3),
//	    job.WithBackoff(10, 30, 60),
//	))
//
//	// in the worker callback
//	res, err := eng.Execute(ctx, j)
//
// # Architecture
//
// Each concern defines its own small interface: attempt.Counter for the
// TTL counter cache, failed.Store for the durable table, queue.Dispatcher
// for re-enqueueing. Backends live under store/ and queue/ and implement
// one or more of them.
package attempts
