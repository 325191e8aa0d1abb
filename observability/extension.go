package observability

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/xraph/attempts/ext"
	"github.com/xraph/attempts/failed"
	"github.com/xraph/attempts/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*MetricsExtension)(nil)
	_ ext.JobStarted         = (*MetricsExtension)(nil)
	_ ext.JobSucceeded       = (*MetricsExtension)(nil)
	_ ext.JobFailed          = (*MetricsExtension)(nil)
	_ ext.JobRetryScheduled  = (*MetricsExtension)(nil)
	_ ext.JobTerminalFailure = (*MetricsExtension)(nil)
	_ ext.HookError          = (*MetricsExtension)(nil)
	_ ext.FailedJobRetried   = (*MetricsExtension)(nil)
	_ ext.FailedJobForgotten = (*MetricsExtension)(nil)
)

const meterName = "github.com/xraph/attempts/observability"

// MetricsExtension records system-wide attempt counters. Every counter
// carries a job_name attribute.
type MetricsExtension struct {
	Started    metric.Int64Counter
	Succeeded  metric.Int64Counter
	Failed     metric.Int64Counter
	Retried    metric.Int64Counter
	Terminal   metric.Int64Counter
	HookErrors metric.Int64Counter
	Requeued   metric.Int64Counter
	Forgotten  metric.Int64Counter
}

// NewMetricsExtension creates a MetricsExtension on the global
// MeterProvider.
func NewMetricsExtension() *MetricsExtension {
	return NewMetricsExtensionWithMeter(otel.Meter(meterName))
}

// NewMetricsExtensionWithMeter creates a MetricsExtension on meter.
func NewMetricsExtensionWithMeter(meter metric.Meter) *MetricsExtension {
	counter := func(name, desc string) metric.Int64Counter {
		c, _ := meter.Int64Counter(name, metric.WithDescription(desc))
		return c
	}
	return &MetricsExtension{
		Started:    counter("attempts.job.started", "Attempts started"),
		Succeeded:  counter("attempts.job.succeeded", "Attempts that succeeded"),
		Failed:     counter("attempts.job.failed", "Attempts whose body failed"),
		Retried:    counter("attempts.job.retried", "Retries handed to the dispatcher"),
		Terminal:   counter("attempts.job.terminal", "Jobs stored as failed"),
		HookErrors: counter("attempts.job.hook_errors", "Terminal-failure hooks that errored"),
		Requeued:   counter("attempts.failed.retried", "Failed records re-dispatched by an operator"),
		Forgotten:  counter("attempts.failed.forgotten", "Failed records deleted by an operator"),
	}
}

// Name implements ext.Extension.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

func byJob(name string) metric.AddOption {
	return metric.WithAttributes(attribute.String("job_name", name))
}

// OnJobStarted implements ext.JobStarted.
func (m *MetricsExtension) OnJobStarted(ctx context.Context, a ext.Attempt) error {
	m.Started.Add(ctx, 1, byJob(a.Job.Name))
	return nil
}

// OnJobSucceeded implements ext.JobSucceeded.
func (m *MetricsExtension) OnJobSucceeded(ctx context.Context, a ext.Attempt, _ time.Duration) error {
	m.Succeeded.Add(ctx, 1, byJob(a.Job.Name))
	return nil
}

// OnJobFailed implements ext.JobFailed.
func (m *MetricsExtension) OnJobFailed(ctx context.Context, a ext.Attempt, _ error, _ bool) error {
	m.Failed.Add(ctx, 1, byJob(a.Job.Name))
	return nil
}

// OnJobRetryScheduled implements ext.JobRetryScheduled.
func (m *MetricsExtension) OnJobRetryScheduled(ctx context.Context, a ext.Attempt, _ *job.Job, _ time.Duration) error {
	m.Retried.Add(ctx, 1, byJob(a.Job.Name))
	return nil
}

// OnJobTerminalFailure implements ext.JobTerminalFailure.
func (m *MetricsExtension) OnJobTerminalFailure(ctx context.Context, a ext.Attempt, _ error, _ *failed.Record) error {
	m.Terminal.Add(ctx, 1, byJob(a.Job.Name))
	return nil
}

// OnHookError implements ext.HookError.
func (m *MetricsExtension) OnHookError(ctx context.Context, a ext.Attempt, _ error) error {
	m.HookErrors.Add(ctx, 1, byJob(a.Job.Name))
	return nil
}

// OnFailedJobRetried implements ext.FailedJobRetried.
func (m *MetricsExtension) OnFailedJobRetried(ctx context.Context, rec *failed.Record, _ *job.Job) error {
	m.Requeued.Add(ctx, 1, byJob(rec.TypeName))
	return nil
}

// OnFailedJobForgotten implements ext.FailedJobForgotten.
func (m *MetricsExtension) OnFailedJobForgotten(ctx context.Context, recs []*failed.Record) error {
	for _, r := range recs {
		m.Forgotten.Add(ctx, 1, byJob(r.TypeName))
	}
	return nil
}
