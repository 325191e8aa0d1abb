package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/xraph/attempts/job"
)

// PanicError is returned by Recover when a body panics.
type PanicError struct {
	Job   string
	Value any
	stack []byte
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in job %s: %v", e.Job, e.Value)
}

// Stack returns the goroutine stack captured at the panic. The failed
// store appends it to the full exception text.
func (e *PanicError) Stack() []byte { return e.stack }

// Recover returns middleware that recovers from panics in the handler chain.
// Panics are converted to *PanicError and logged with a stack trace.
func Recover(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) (retErr error) {
		defer func() {
			if r := recover(); r != nil {
				stack := debug.Stack()
				logger.Error("job handler panicked",
					slog.String("job_name", j.Name),
					slog.String("job_id", j.ID.String()),
					slog.Any("panic", r),
					slog.String("stack", string(stack)),
				)
				retErr = &PanicError{Job: j.Name, Value: r, stack: stack}
			}
		}()
		return next(ctx)
	}
}
