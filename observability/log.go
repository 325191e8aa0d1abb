package observability

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/attempts/ext"
	"github.com/xraph/attempts/failed"
	"github.com/xraph/attempts/job"
)

var (
	_ ext.JobStarted         = (*LogExtension)(nil)
	_ ext.JobSucceeded       = (*LogExtension)(nil)
	_ ext.JobFailed          = (*LogExtension)(nil)
	_ ext.JobRetryScheduled  = (*LogExtension)(nil)
	_ ext.JobTerminalFailure = (*LogExtension)(nil)
	_ ext.HookError          = (*LogExtension)(nil)
	_ ext.FailedJobRetried   = (*LogExtension)(nil)
	_ ext.FailedJobForgotten = (*LogExtension)(nil)
)

// LogExtension writes one log line per attempt event. The engine
// registers it when detailed logging is enabled.
type LogExtension struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewLogExtension creates a LogExtension. A nil logger uses slog.Default.
func NewLogExtension(logger *slog.Logger) *LogExtension {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogExtension{logger: logger, now: time.Now}
}

// Name implements ext.Extension.
func (l *LogExtension) Name() string { return "observability-log" }

func attemptAttrs(a ext.Attempt) []any {
	return []any{
		slog.String("job_name", a.Job.Name),
		slog.String("job_id", a.Job.ID.String()),
		slog.String("identity", a.Identity.String()),
		slog.String("queue", a.Job.Queue),
		slog.Int("attempt", a.Number),
		slog.Int("max_tries", a.MaxTries),
	}
}

func (l *LogExtension) OnJobStarted(ctx context.Context, a ext.Attempt) error {
	l.logger.InfoContext(ctx, "job started", attemptAttrs(a)...)
	return nil
}

func (l *LogExtension) OnJobSucceeded(ctx context.Context, a ext.Attempt, elapsed time.Duration) error {
	l.logger.InfoContext(ctx, "job completed", append(attemptAttrs(a), slog.Duration("elapsed", elapsed))...)
	return nil
}

func (l *LogExtension) OnJobFailed(ctx context.Context, a ext.Attempt, err error, willRetry bool) error {
	l.logger.WarnContext(ctx, "job failed", append(attemptAttrs(a),
		slog.Bool("will_retry", willRetry),
		slog.String("error", err.Error()),
	)...)
	return nil
}

func (l *LogExtension) OnJobRetryScheduled(ctx context.Context, a ext.Attempt, next *job.Job, delay time.Duration) error {
	l.logger.InfoContext(ctx, "job retry scheduled", append(attemptAttrs(a),
		slog.Int("next_attempt", a.Number+1),
		slog.Duration("delay", delay),
		slog.Time("retry_at", l.now().Add(delay)),
		slog.String("retry_queue", next.Queue),
	)...)
	return nil
}

func (l *LogExtension) OnJobTerminalFailure(ctx context.Context, a ext.Attempt, err error, rec *failed.Record) error {
	l.logger.ErrorContext(ctx, "job failed permanently", append(attemptAttrs(a),
		slog.String("uuid", rec.UUID),
		slog.String("error", err.Error()),
	)...)
	return nil
}

func (l *LogExtension) OnHookError(ctx context.Context, a ext.Attempt, err error) error {
	l.logger.ErrorContext(ctx, "failed hook error", append(attemptAttrs(a), slog.String("error", err.Error()))...)
	return nil
}

func (l *LogExtension) OnFailedJobRetried(ctx context.Context, rec *failed.Record, next *job.Job) error {
	l.logger.InfoContext(ctx, "failed job retried",
		slog.String("uuid", rec.UUID),
		slog.String("job_name", rec.TypeName),
		slog.String("queue", next.Queue),
		slog.String("job_id", next.ID.String()),
	)
	return nil
}

func (l *LogExtension) OnFailedJobForgotten(ctx context.Context, recs []*failed.Record) error {
	l.logger.InfoContext(ctx, "failed jobs deleted", slog.Int("count", len(recs)))
	return nil
}
