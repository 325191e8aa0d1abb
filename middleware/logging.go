package middleware

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/attempts/job"
)

// Logging returns middleware that logs each attempt body. A failing body
// is logged at Warn while retries remain and at Error on the final
// attempt.
func Logging(logger *slog.Logger) Middleware {
	return func(ctx context.Context, j *job.Job, next Handler) error {
		a := AttemptFrom(ctx)
		attrs := []any{
			slog.String("job_name", j.Name),
			slog.String("job_id", j.ID.String()),
			slog.String("queue", j.Queue),
			slog.String("identity", a.Identity),
			slog.Int("attempt", a.Number),
			slog.Int("max_tries", a.MaxTries),
		}
		logger.Debug("attempt started", attrs...)

		start := time.Now()
		err := next(ctx)
		attrs = append(attrs, slog.Duration("elapsed", time.Since(start)))

		switch {
		case err == nil:
			logger.Debug("attempt completed", attrs...)
		case a.Final():
			logger.Error("final attempt failed", append(attrs, slog.String("error", err.Error()))...)
		default:
			logger.Warn("attempt failed", append(attrs, slog.String("error", err.Error()))...)
		}
		return err
	}
}
