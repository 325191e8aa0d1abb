// Package worker provides the attempt executor. An Executor wraps one
// delivery of a registered job: it counts the attempt, runs the body
// through middleware under the job's timeout, and then either clears the
// counter, hands a delayed retry to the dispatcher, or stores the job as
// failed.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/attempt"
	"github.com/xraph/attempts/ext"
	"github.com/xraph/attempts/failed"
	"github.com/xraph/attempts/identity"
	"github.com/xraph/attempts/job"
	"github.com/xraph/attempts/middleware"
	"github.com/xraph/attempts/queue"
	"github.com/xraph/attempts/retry"
)

// DefaultTTL is the attempt counter TTL when none is configured.
const DefaultTTL = 24 * time.Hour

// Outcome is the terminal state of one execution.
type Outcome int

const (
	// Succeeded means the body returned nil and the counter was cleared.
	Succeeded Outcome = iota + 1
	// RetryScheduled means a delayed redelivery was dispatched.
	RetryScheduled
	// FailedTerminal means the job was stored as failed.
	FailedTerminal
)

func (o Outcome) String() string {
	switch o {
	case Succeeded:
		return "succeeded"
	case RetryScheduled:
		return "retry_scheduled"
	case FailedTerminal:
		return "failed"
	default:
		return "unknown"
	}
}

// Result describes what Execute did with a delivery.
type Result struct {
	Outcome  Outcome
	Identity identity.Identity
	Attempt  int
	MaxTries int
	// Delay and Next are set for RetryScheduled.
	Delay time.Duration
	Next  *job.Job
	// Record is set for FailedTerminal.
	Record *failed.Record
	// Err is the body error for RetryScheduled and FailedTerminal.
	Err error
}

// Executor runs deliveries of registered jobs with bounded retries.
// It holds no per-job state; all coordination goes through the attempt
// store and the failed store, so one Executor may serve many goroutines.
type Executor struct {
	registry   *job.Registry
	attempts   *attempt.Store
	failed     *failed.Service
	dispatcher queue.Dispatcher
	extensions *ext.Registry
	deriver    *identity.Deriver
	mws        []middleware.Middleware
	logger     *slog.Logger

	ttl          time.Duration
	defaultQueue string
	connection   string
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the executor logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) { e.logger = l }
}

// WithExtensions sets the registry notified of attempt events.
func WithExtensions(r *ext.Registry) Option {
	return func(e *Executor) { e.extensions = r }
}

// WithMiddleware appends middleware wrapped around every body.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(e *Executor) { e.mws = append(e.mws, mws...) }
}

// WithDeriver sets the identity deriver.
func WithDeriver(d *identity.Deriver) Option {
	return func(e *Executor) { e.deriver = d }
}

// WithTTL sets the attempt counter TTL.
func WithTTL(d time.Duration) Option {
	return func(e *Executor) { e.ttl = d }
}

// WithDefaultQueue sets the queue used when neither the job type nor the
// delivery names one.
func WithDefaultQueue(q string) Option {
	return func(e *Executor) { e.defaultQueue = q }
}

// WithConnection sets the transport name recorded on deliveries that do
// not carry one.
func WithConnection(name string) Option {
	return func(e *Executor) { e.connection = name }
}

// NewExecutor creates an Executor.
func NewExecutor(
	registry *job.Registry,
	counter *attempt.Store,
	failedSvc *failed.Service,
	dispatcher queue.Dispatcher,
	opts ...Option,
) *Executor {
	e := &Executor{
		registry:     registry,
		attempts:     counter,
		failed:       failedSvc,
		dispatcher:   dispatcher,
		deriver:      identity.NewDeriver(),
		logger:       slog.Default(),
		ttl:          DefaultTTL,
		defaultQueue: "default",
		connection:   "default",
	}
	for _, o := range opts {
		o(e)
	}
	if e.extensions == nil {
		e.extensions = ext.NewRegistry(e.logger)
	}
	return e
}

// Identity returns the identity of j as Execute would compute it.
func (e *Executor) Identity(j *job.Job) identity.Identity {
	d := e.deriver
	if entry, ok := e.registry.Lookup(j.Name); ok && len(entry.IdentityKeys) > 0 {
		d = d.WithKeys(entry.IdentityKeys)
	}
	return d.FromPayload(j.Name, j.Payload)
}

// Execute runs one delivery of j.
//
// A nil error means the delivery is done: it either succeeded or a retry
// was dispatched. A terminal failure returns the *attempts.JobError so
// the caller can nack the delivery. Counter, dispatcher and failed-store
// errors abort the execution and are returned as is.
//
// j is never modified. Defaults for an empty Connection or Queue are
// applied to a copy.
func (e *Executor) Execute(ctx context.Context, j *job.Job) (*Result, error) {
	entry, ok := e.registry.Lookup(j.Name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", attempts.ErrNoHandler, j.Name)
	}
	if j.Connection == "" || j.Queue == "" {
		cp := *j
		if cp.Connection == "" {
			cp.Connection = e.connection
		}
		if cp.Queue == "" {
			cp.Queue = e.queueFor(entry, nil)
		}
		j = &cp
	}

	policy := entry.Policy
	if policy.IsZero() {
		policy = retry.DefaultPolicy()
	}
	id := e.Identity(j)

	n, err := e.attempts.Increment(ctx, id, e.ttl)
	if err != nil {
		e.logger.Error("attempt counter unavailable",
			slog.String("job_name", j.Name),
			slog.String("identity", id.String()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	a := ext.Attempt{Job: j, Identity: id, Number: n, MaxTries: policy.MaxTries()}
	res := &Result{Identity: id, Attempt: n, MaxTries: policy.MaxTries()}
	e.extensions.EmitJobStarted(ctx, a)

	start := time.Now()
	actx := middleware.WithAttempt(ctx, middleware.Attempt{Number: n, MaxTries: a.MaxTries, Identity: id.String()})
	bodyErr := e.run(actx, j, entry, policy)
	elapsed := time.Since(start)

	if bodyErr == nil {
		e.clear(ctx, j, id)
		res.Outcome = Succeeded
		e.extensions.EmitJobSucceeded(ctx, a, elapsed)
		return res, nil
	}

	res.Err = bodyErr
	decision := policy.Next(n)
	e.extensions.EmitJobFailed(ctx, a, bodyErr, decision.Kind == retry.WillRetry)

	if decision.Kind == retry.WillRetry {
		next := j.Redeliver(e.queueFor(entry, j), decision.Delay)
		if err := e.dispatcher.Enqueue(ctx, next, decision.Delay); err != nil {
			e.logger.Error("retry dispatch failed",
				slog.String("job_name", j.Name),
				slog.String("identity", id.String()),
				slog.Int("attempt", n),
				slog.String("queue", next.Queue),
				slog.String("error", err.Error()),
			)
			return nil, fmt.Errorf("dispatch retry of %s: %w", j.Name, err)
		}
		res.Outcome = RetryScheduled
		res.Delay = decision.Delay
		res.Next = next
		e.extensions.EmitJobRetryScheduled(ctx, a, next, decision.Delay)
		return res, nil
	}

	e.runFailedHook(ctx, a, entry, bodyErr)

	rec, err := e.failed.Record(ctx, j, n, bodyErr)
	if err != nil {
		e.logger.Error("failed job could not be stored",
			slog.String("job_name", j.Name),
			slog.String("identity", id.String()),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	e.clear(ctx, j, id)

	res.Outcome = FailedTerminal
	res.Record = rec
	e.extensions.EmitJobTerminalFailure(ctx, a, bodyErr, rec)

	return res, &attempts.JobError{Name: j.Name, Identity: id.String(), Attempt: n, Err: bodyErr}
}

// run invokes the handler through the configured middleware. Recover and
// the job's timeout are always installed innermost.
func (e *Executor) run(ctx context.Context, j *job.Job, entry *job.Entry, policy retry.Policy) error {
	mws := make([]middleware.Middleware, 0, len(e.mws)+2)
	mws = append(mws, e.mws...)
	mws = append(mws, middleware.Recover(e.logger), middleware.Timeout(policy.Timeout()))

	return middleware.Chain(mws...)(ctx, j, func(ctx context.Context) error {
		return entry.Handler(ctx, j.Payload)
	})
}

// runFailedHook calls the job's terminal-failure hook. Its errors and
// panics are reported and never stop the failed record from being stored.
func (e *Executor) runFailedHook(ctx context.Context, a ext.Attempt, entry *job.Entry, cause error) {
	if entry.Failed == nil {
		return
	}
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
			}
		}()
		return entry.Failed(ctx, a.Job.Payload, cause)
	}()
	if err == nil {
		return
	}
	if !errors.Is(err, attempts.ErrHookFailed) {
		err = fmt.Errorf("%w: %w", attempts.ErrHookFailed, err)
	}
	e.logger.Error("failed hook error",
		slog.String("job_name", a.Job.Name),
		slog.String("identity", a.Identity.String()),
		slog.String("error", err.Error()),
	)
	e.extensions.EmitHookError(ctx, a, err)
}

// clear deletes the attempt counter. Errors are logged; the counter
// expires on its own.
func (e *Executor) clear(ctx context.Context, j *job.Job, id identity.Identity) {
	if err := e.attempts.Clear(ctx, id); err != nil {
		e.logger.Warn("failed to clear attempt counter",
			slog.String("job_name", j.Name),
			slog.String("identity", id.String()),
			slog.String("error", err.Error()),
		)
	}
}

// queueFor picks the queue for a redelivery of j (or a first delivery
// when j is nil).
func (e *Executor) queueFor(entry *job.Entry, j *job.Job) string {
	if j != nil && entry.RetryQueue != "" {
		return entry.RetryQueue
	}
	if j != nil && j.Queue != "" {
		return j.Queue
	}
	if entry.Queue != "" {
		return entry.Queue
	}
	return e.defaultQueue
}
