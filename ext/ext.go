// Package ext defines the extension system. Extensions are notified of
// attempt lifecycle events (started, succeeded, failed, retry scheduled,
// terminal failure, failed-hook error) and of operator actions, and react
// to them with logging, metrics, auditing and so on.
//
// Each hook is a separate interface so extensions opt in only to the
// events they care about. Hook errors and panics are logged and never
// reach the executor.
package ext

import (
	"context"
	"time"

	"github.com/xraph/attempts/failed"
	"github.com/xraph/attempts/identity"
	"github.com/xraph/attempts/job"
)

// Extension is the base interface all extensions must implement.
type Extension interface {
	// Name returns a unique human-readable name for the extension.
	Name() string
}

// Attempt describes the execution an event belongs to.
type Attempt struct {
	Job      *job.Job
	Identity identity.Identity
	Number   int
	MaxTries int
}

// ──────────────────────────────────────────────────
// Attempt lifecycle hooks
// ──────────────────────────────────────────────────

// JobStarted is called after the attempt counter was incremented and
// before the job body runs.
type JobStarted interface {
	OnJobStarted(ctx context.Context, a Attempt) error
}

// JobSucceeded is called after the body returned nil and the counter was
// cleared.
type JobSucceeded interface {
	OnJobSucceeded(ctx context.Context, a Attempt, elapsed time.Duration) error
}

// JobFailed is called for every failed body, before the retry decision is
// acted on.
type JobFailed interface {
	OnJobFailed(ctx context.Context, a Attempt, err error, willRetry bool) error
}

// JobRetryScheduled is called after a retry was handed to the dispatcher.
type JobRetryScheduled interface {
	OnJobRetryScheduled(ctx context.Context, a Attempt, next *job.Job, delay time.Duration) error
}

// JobTerminalFailure is called after a job that exhausted its attempts
// was stored as failed.
type JobTerminalFailure interface {
	OnJobTerminalFailure(ctx context.Context, a Attempt, err error, rec *failed.Record) error
}

// HookError is called when a job's terminal-failure hook returns an error
// or panics.
type HookError interface {
	OnHookError(ctx context.Context, a Attempt, err error) error
}

// ──────────────────────────────────────────────────
// Operator hooks
// ──────────────────────────────────────────────────

// FailedJobRetried is called after an operator re-dispatched a failed
// record.
type FailedJobRetried interface {
	OnFailedJobRetried(ctx context.Context, rec *failed.Record, next *job.Job) error
}

// FailedJobForgotten is called after an operator deleted failed records.
type FailedJobForgotten interface {
	OnFailedJobForgotten(ctx context.Context, recs []*failed.Record) error
}

// ──────────────────────────────────────────────────
// Other lifecycle hooks
// ──────────────────────────────────────────────────

// Shutdown is called when the engine is stopped.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
