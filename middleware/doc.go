// Package middleware provides composable middleware for job execution.
//
// A [Middleware] is a function that wraps a job body. Middleware are
// composed into a chain using [Chain] and applied on every attempt. They
// are applied right-to-left: the first middleware in the slice is the
// outermost wrapper.
//
//	// logging → recover → body
//	chain := middleware.Chain(middleware.Logging(logger), middleware.Recover(logger))
//
// The executor stores the running [Attempt] in the context with
// [WithAttempt], so middleware can tell a retryable failure from a final
// one.
//
// # Built-in Middleware
//
//   - [Logging] logs each attempt; a failed final attempt logs at Error
//   - [Recover] catches panics and converts them to [PanicError]
//   - [Timeout] bounds the body and fails it with attempts.ErrJobTimedOut
//   - [Tracing] wraps the attempt in an OpenTelemetry span
//   - [Metrics] records duration, executions and attempt numbers
//
// The executor always installs [Timeout] innermost, so a body that ignores
// its context still cannot hold the attempt past the job's timeout.
//
// # Writing Custom Middleware
//
//	func MyMiddleware() middleware.Middleware {
//	    return func(ctx context.Context, j *job.Job, next middleware.Handler) error {
//	        // pre-processing
//	        err := next(ctx)
//	        // post-processing
//	        return err
//	    }
//	}
//
// Middleware MUST call next to continue the chain unless intentionally
// short-circuiting.
package middleware
