package middleware

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/job"
)

// Timeout returns middleware that bounds the body to d. A zero or negative
// d disables the bound.
//
// The body runs on its own goroutine with a deadline context. When the
// deadline passes first, the attempt fails immediately with an error that
// matches both attempts.ErrJobTimedOut and context.DeadlineExceeded; the
// body is expected to observe ctx and return. A body that returns a
// context.DeadlineExceeded of its own is reported the same way.
func Timeout(d time.Duration) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		if d <= 0 {
			return next(ctx)
		}

		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		done := make(chan error, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- &PanicError{Job: j.Name, Value: r, stack: debug.Stack()}
				}
			}()
			done <- next(ctx)
		}()

		select {
		case err := <-done:
			if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, attempts.ErrJobTimedOut) {
				return timedOut(j, d)
			}
			return err
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return timedOut(j, d)
			}
			return ctx.Err()
		}
	}
}

func timedOut(j *job.Job, d time.Duration) error {
	return fmt.Errorf("%w: job %s exceeded %s: %w", attempts.ErrJobTimedOut, j.Name, d, context.DeadlineExceeded)
}
