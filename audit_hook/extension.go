package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/attempts/ext"
	"github.com/xraph/attempts/failed"
	"github.com/xraph/attempts/job"
)

// Compile-time interface checks.
var (
	_ ext.Extension          = (*Extension)(nil)
	_ ext.JobRetryScheduled  = (*Extension)(nil)
	_ ext.JobTerminalFailure = (*Extension)(nil)
	_ ext.HookError          = (*Extension)(nil)
	_ ext.FailedJobRetried   = (*Extension)(nil)
	_ ext.FailedJobForgotten = (*Extension)(nil)
)

// Recorder is the interface audit backends implement.
type Recorder interface {
	// Record persists a fully-formed audit event.
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is one audit trail entry.
type AuditEvent struct {
	Action   string `json:"action"`
	Resource string `json:"resource"`
	Category string `json:"category"`

	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Severity constants.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityCritical = "critical"
)

// Outcome constants.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Extension turns attempt and operator events into audit events.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through r.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements ext.Extension.
func (e *Extension) Name() string { return "audit-hook" }

// ── Attempt hooks ───────────────────────────────────

// OnJobRetryScheduled implements ext.JobRetryScheduled.
func (e *Extension) OnJobRetryScheduled(ctx context.Context, a ext.Attempt, next *job.Job, delay time.Duration) error {
	return e.record(ctx, ActionJobRetryScheduled, SeverityWarning, OutcomeFailure,
		ResourceJob, a.Job.ID.String(), CategoryAttempt, nil,
		"job_name", a.Job.Name,
		"identity", a.Identity.String(),
		"attempt", a.Number,
		"max_tries", a.MaxTries,
		"next_job_id", next.ID.String(),
		"retry_queue", next.Queue,
		"delay_ms", delay.Milliseconds(),
	)
}

// OnJobTerminalFailure implements ext.JobTerminalFailure.
func (e *Extension) OnJobTerminalFailure(ctx context.Context, a ext.Attempt, err error, rec *failed.Record) error {
	return e.record(ctx, ActionJobFailedPermanently, SeverityCritical, OutcomeFailure,
		ResourceJob, a.Job.ID.String(), CategoryAttempt, err,
		"job_name", a.Job.Name,
		"identity", a.Identity.String(),
		"attempt", a.Number,
		"queue", a.Job.Queue,
		"failed_uuid", rec.UUID,
	)
}

// OnHookError implements ext.HookError.
func (e *Extension) OnHookError(ctx context.Context, a ext.Attempt, err error) error {
	return e.record(ctx, ActionJobHookFailed, SeverityCritical, OutcomeFailure,
		ResourceJob, a.Job.ID.String(), CategoryAttempt, err,
		"job_name", a.Job.Name,
		"identity", a.Identity.String(),
	)
}

// ── Operator hooks ──────────────────────────────────

// OnFailedJobRetried implements ext.FailedJobRetried.
func (e *Extension) OnFailedJobRetried(ctx context.Context, rec *failed.Record, next *job.Job) error {
	return e.record(ctx, ActionFailedJobRetried, SeverityInfo, OutcomeSuccess,
		ResourceFailedJob, rec.UUID, CategoryOperator, nil,
		"job_name", rec.TypeName,
		"failed_id", rec.ID,
		"queue", next.Queue,
		"next_job_id", next.ID.String(),
	)
}

// OnFailedJobForgotten implements ext.FailedJobForgotten. One event is
// recorded per deleted record.
func (e *Extension) OnFailedJobForgotten(ctx context.Context, recs []*failed.Record) error {
	for _, rec := range recs {
		_ = e.record(ctx, ActionFailedJobDeleted, SeverityWarning, OutcomeSuccess,
			ResourceFailedJob, rec.UUID, CategoryOperator, nil,
			"job_name", rec.TypeName,
			"failed_id", rec.ID,
			"queue", rec.Queue,
			"batch_size", len(recs),
		)
	}
	return nil
}

// record builds and sends an audit event. Recorder errors are logged and
// never returned, so a broken audit backend does not fail attempts.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
