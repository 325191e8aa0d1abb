package ext

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/attempts/failed"
	"github.com/xraph/attempts/job"
)

// entry pairs a hook implementation with the extension name captured at
// registration time.
type entry[H any] struct {
	name string
	hook H
}

// Registry holds registered extensions and dispatches lifecycle events
// to them. It type-caches extensions at registration time so emit calls
// iterate only over extensions that implement the relevant hook.
//
// Register extensions before the first emit; Registry is not safe for
// concurrent registration.
type Registry struct {
	extensions  []Extension
	logger      *slog.Logger
	hookTimeout time.Duration

	jobStarted         []entry[JobStarted]
	jobSucceeded       []entry[JobSucceeded]
	jobFailed          []entry[JobFailed]
	jobRetryScheduled  []entry[JobRetryScheduled]
	jobTerminalFailure []entry[JobTerminalFailure]
	hookError          []entry[HookError]
	failedJobRetried   []entry[FailedJobRetried]
	failedJobForgotten []entry[FailedJobForgotten]
	shutdown           []entry[Shutdown]
}

// DefaultHookTimeout bounds the context handed to each hook.
const DefaultHookTimeout = 5 * time.Second

// NewRegistry creates an extension registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{logger: logger, hookTimeout: DefaultHookTimeout}
}

// SetHookTimeout sets the deadline applied to the context of every hook
// call. Hooks run synchronously on the emitting goroutine, so a hook that
// ignores its context still blocks the caller. Zero disables the deadline.
func (r *Registry) SetHookTimeout(d time.Duration) {
	r.hookTimeout = d
}

// Register adds an extension and type-asserts it into all applicable
// hook caches. Extensions are notified in registration order.
func (r *Registry) Register(e Extension) {
	r.extensions = append(r.extensions, e)
	name := e.Name()

	if h, ok := e.(JobStarted); ok {
		r.jobStarted = append(r.jobStarted, entry[JobStarted]{name, h})
	}
	if h, ok := e.(JobSucceeded); ok {
		r.jobSucceeded = append(r.jobSucceeded, entry[JobSucceeded]{name, h})
	}
	if h, ok := e.(JobFailed); ok {
		r.jobFailed = append(r.jobFailed, entry[JobFailed]{name, h})
	}
	if h, ok := e.(JobRetryScheduled); ok {
		r.jobRetryScheduled = append(r.jobRetryScheduled, entry[JobRetryScheduled]{name, h})
	}
	if h, ok := e.(JobTerminalFailure); ok {
		r.jobTerminalFailure = append(r.jobTerminalFailure, entry[JobTerminalFailure]{name, h})
	}
	if h, ok := e.(HookError); ok {
		r.hookError = append(r.hookError, entry[HookError]{name, h})
	}
	if h, ok := e.(FailedJobRetried); ok {
		r.failedJobRetried = append(r.failedJobRetried, entry[FailedJobRetried]{name, h})
	}
	if h, ok := e.(FailedJobForgotten); ok {
		r.failedJobForgotten = append(r.failedJobForgotten, entry[FailedJobForgotten]{name, h})
	}
	if h, ok := e.(Shutdown); ok {
		r.shutdown = append(r.shutdown, entry[Shutdown]{name, h})
	}
}

// Extensions returns all registered extensions.
func (r *Registry) Extensions() []Extension { return r.extensions }

// ──────────────────────────────────────────────────
// Attempt event emitters
// ──────────────────────────────────────────────────

// EmitJobStarted notifies all extensions that implement JobStarted.
func (r *Registry) EmitJobStarted(ctx context.Context, a Attempt) {
	for _, e := range r.jobStarted {
		r.call(ctx, "OnJobStarted", e.name, func(ctx context.Context) error { return e.hook.OnJobStarted(ctx, a) })
	}
}

// EmitJobSucceeded notifies all extensions that implement JobSucceeded.
func (r *Registry) EmitJobSucceeded(ctx context.Context, a Attempt, elapsed time.Duration) {
	for _, e := range r.jobSucceeded {
		r.call(ctx, "OnJobSucceeded", e.name, func(ctx context.Context) error { return e.hook.OnJobSucceeded(ctx, a, elapsed) })
	}
}

// EmitJobFailed notifies all extensions that implement JobFailed.
func (r *Registry) EmitJobFailed(ctx context.Context, a Attempt, jobErr error, willRetry bool) {
	for _, e := range r.jobFailed {
		r.call(ctx, "OnJobFailed", e.name, func(ctx context.Context) error { return e.hook.OnJobFailed(ctx, a, jobErr, willRetry) })
	}
}

// EmitJobRetryScheduled notifies all extensions that implement
// JobRetryScheduled.
func (r *Registry) EmitJobRetryScheduled(ctx context.Context, a Attempt, next *job.Job, delay time.Duration) {
	for _, e := range r.jobRetryScheduled {
		r.call(ctx, "OnJobRetryScheduled", e.name, func(ctx context.Context) error { return e.hook.OnJobRetryScheduled(ctx, a, next, delay) })
	}
}

// EmitJobTerminalFailure notifies all extensions that implement
// JobTerminalFailure.
func (r *Registry) EmitJobTerminalFailure(ctx context.Context, a Attempt, jobErr error, rec *failed.Record) {
	for _, e := range r.jobTerminalFailure {
		r.call(ctx, "OnJobTerminalFailure", e.name, func(ctx context.Context) error { return e.hook.OnJobTerminalFailure(ctx, a, jobErr, rec) })
	}
}

// EmitHookError notifies all extensions that implement HookError.
func (r *Registry) EmitHookError(ctx context.Context, a Attempt, hookErr error) {
	for _, e := range r.hookError {
		r.call(ctx, "OnHookError", e.name, func(ctx context.Context) error { return e.hook.OnHookError(ctx, a, hookErr) })
	}
}

// ──────────────────────────────────────────────────
// Operator event emitters
// ──────────────────────────────────────────────────

// EmitFailedJobRetried notifies all extensions that implement
// FailedJobRetried.
func (r *Registry) EmitFailedJobRetried(ctx context.Context, rec *failed.Record, next *job.Job) {
	for _, e := range r.failedJobRetried {
		r.call(ctx, "OnFailedJobRetried", e.name, func(ctx context.Context) error { return e.hook.OnFailedJobRetried(ctx, rec, next) })
	}
}

// EmitFailedJobForgotten notifies all extensions that implement
// FailedJobForgotten.
func (r *Registry) EmitFailedJobForgotten(ctx context.Context, recs []*failed.Record) {
	for _, e := range r.failedJobForgotten {
		r.call(ctx, "OnFailedJobForgotten", e.name, func(ctx context.Context) error { return e.hook.OnFailedJobForgotten(ctx, recs) })
	}
}

// EmitShutdown notifies all extensions that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		r.call(ctx, "OnShutdown", e.name, func(ctx context.Context) error { return e.hook.OnShutdown(ctx) })
	}
}

// call runs one hook under the hook deadline, turning a panic into a
// logged error.
func (r *Registry) call(ctx context.Context, hook, extName string, fn func(context.Context) error) {
	if r.hookTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.hookTimeout)
		defer cancel()
	}
	defer func() {
		if v := recover(); v != nil {
			r.logHookError(hook, extName, fmt.Errorf("panic: %v", v))
		}
	}()
	if err := fn(ctx); err != nil {
		r.logHookError(hook, extName, err)
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated.
func (r *Registry) logHookError(hook, extName string, err error) {
	r.logger.Warn("extension hook error",
		slog.String("hook", hook),
		slog.String("extension", extName),
		slog.String("error", err.Error()),
	)
}
