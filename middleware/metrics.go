package middleware

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/attempts/job"
)

const meterName = "github.com/xraph/attempts"

// Metrics returns middleware that records attempt metrics on the global
// MeterProvider. Without one, noop instruments make it a pass-through.
//
// Instruments, all with attributes job_name, queue and status
// ("ok", "retryable" or "exhausted"):
//   - attempts.job.duration (Float64Histogram): body time in seconds
//   - attempts.job.executions (Int64Counter): attempts run
//   - attempts.job.attempt_number (Int64Histogram): the attempt number of
//     each execution, which shows how far into the retry budget jobs get
func Metrics() Middleware {
	return MetricsWithMeter(otel.Meter(meterName))
}

// MetricsWithMeter returns metrics middleware using the provided meter.
func MetricsWithMeter(meter metric.Meter) Middleware {
	// On error the API returns noop instruments.
	duration, _ := meter.Float64Histogram(
		"attempts.job.duration",
		metric.WithDescription("Duration of job attempts in seconds"),
		metric.WithUnit("s"),
	)
	executions, _ := meter.Int64Counter(
		"attempts.job.executions",
		metric.WithDescription("Total number of job attempts"),
		metric.WithUnit("{attempt}"),
	)
	attemptNumber, _ := meter.Int64Histogram(
		"attempts.job.attempt_number",
		metric.WithDescription("Attempt number of each job execution"),
		metric.WithUnit("{attempt}"),
		metric.WithExplicitBucketBoundaries(1, 2, 3, 5, 10, 25),
	)

	return func(ctx context.Context, j *job.Job, next Handler) error {
		a := AttemptFrom(ctx)
		start := time.Now()
		err := next(ctx)
		elapsed := time.Since(start).Seconds()

		attrs := metric.WithAttributes(
			attribute.String("job_name", j.Name),
			attribute.String("queue", j.Queue),
			attribute.String("status", statusOf(a, err)),
		)
		duration.Record(ctx, elapsed, attrs)
		executions.Add(ctx, 1, attrs)
		if a.Number > 0 {
			attemptNumber.Record(ctx, int64(a.Number), attrs)
		}
		return err
	}
}

func statusOf(a Attempt, err error) string {
	switch {
	case err == nil:
		return "ok"
	case a.Final():
		return "exhausted"
	default:
		return "retryable"
	}
}
