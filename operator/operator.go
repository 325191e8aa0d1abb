// Package operator implements the human-facing operations on failed jobs:
// list, show, forget, flush and retry. It works purely through the failed
// store, the attempt store and the dispatcher, so the same Operator backs
// the attemptsctl CLI and any API a host application builds.
package operator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/attempt"
	"github.com/xraph/attempts/ext"
	"github.com/xraph/attempts/failed"
	"github.com/xraph/attempts/identity"
	"github.com/xraph/attempts/job"
	"github.com/xraph/attempts/queue"
)

// DefaultConcurrency bounds parallel re-dispatch in Retry.
const DefaultConcurrency = 8

// Confirmer asks the operator a yes/no question. def is the answer used
// when the operator just presses enter.
type Confirmer func(prompt string, def bool) bool

// Operator runs operator actions against the failed store.
type Operator struct {
	store      failed.Store
	counter    *attempt.Store
	dispatcher queue.Dispatcher
	registry   *job.Registry
	deriver    *identity.Deriver
	extensions *ext.Registry
	logger     *slog.Logger
	now        func() time.Time

	concurrency  int
	defaultQueue string
}

// Option configures an Operator.
type Option func(*Operator)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Operator) { o.logger = l }
}

// WithRegistry enables payload validation before retry and per-type
// identity keys.
func WithRegistry(r *job.Registry) Option {
	return func(o *Operator) { o.registry = r }
}

// WithDeriver sets the identity deriver used to find a record's counter.
func WithDeriver(d *identity.Deriver) Option {
	return func(o *Operator) { o.deriver = d }
}

// WithExtensions sets the registry notified of retries and deletions.
func WithExtensions(r *ext.Registry) Option {
	return func(o *Operator) { o.extensions = r }
}

// WithConcurrency bounds parallel re-dispatch in Retry.
func WithConcurrency(n int) Option {
	return func(o *Operator) { o.concurrency = n }
}

// WithDefaultQueue sets the queue retried records go to when they carry
// none.
func WithDefaultQueue(q string) Option {
	return func(o *Operator) { o.defaultQueue = q }
}

// WithClock overrides the time source used for age filters.
func WithClock(now func() time.Time) Option {
	return func(o *Operator) { o.now = now }
}

// New creates an Operator. counter may be nil when no attempt store is
// reachable; counter operations are then skipped.
func New(store failed.Store, counter *attempt.Store, dispatcher queue.Dispatcher, opts ...Option) *Operator {
	o := &Operator{
		store:        store,
		counter:      counter,
		dispatcher:   dispatcher,
		deriver:      identity.NewDeriver(),
		logger:       slog.Default(),
		now:          func() time.Time { return time.Now().UTC() },
		concurrency:  DefaultConcurrency,
		defaultQueue: "default",
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.extensions == nil {
		o.extensions = ext.NewRegistry(o.logger)
	}
	if o.concurrency < 1 {
		o.concurrency = 1
	}
	return o
}

// ──────────────────────────────────────────────────
// List / Show / Peek
// ──────────────────────────────────────────────────

// ListQuery selects records for List.
type ListQuery struct {
	Queue          string
	OlderThanHours int
	Limit          int
	Offset         int
}

// ListResult is one page of records and the number of matching records.
type ListResult struct {
	Records []*failed.Record
	Total   int64
}

// Remaining is the number of matching records past this page.
func (r *ListResult) Remaining(offset int) int64 {
	n := r.Total - int64(offset) - int64(len(r.Records))
	if n < 0 {
		return 0
	}
	return n
}

// List returns failed records, newest first.
func (o *Operator) List(ctx context.Context, q ListQuery) (*ListResult, error) {
	f := failed.Filter{Queue: q.Queue}.OlderThan(q.OlderThanHours, o.now())
	total, err := o.store.CountFailed(ctx, f)
	if err != nil {
		return nil, attempts.Unavailable("operator: count", err)
	}
	recs, err := o.store.ListFailed(ctx, failed.ListOpts{Filter: f, Limit: q.Limit, Offset: q.Offset})
	if err != nil {
		return nil, attempts.Unavailable("operator: list", err)
	}
	return &ListResult{Records: recs, Total: total}, nil
}

// Detail is a record with its recomputed identity and live attempt count.
type Detail struct {
	Record   *failed.Record
	Identity identity.Identity
	Attempts int
}

// Show returns one record. It fails with attempts.ErrFailedJobNotFound
// when nothing matches sel.
func (o *Operator) Show(ctx context.Context, sel failed.Selector) (*Detail, error) {
	rec, err := o.store.FindFailed(ctx, sel)
	if err != nil {
		return nil, err
	}
	d := &Detail{Record: rec, Identity: o.identityOf(rec.TypeName, rec.Payload)}
	if o.counter != nil {
		n, err := o.counter.Peek(ctx, d.Identity)
		if err != nil {
			o.logger.Warn("attempt counter unavailable", slog.String("error", err.Error()))
		}
		d.Attempts = n
	}
	return d, nil
}

// Peek returns the identity of a job payload and its current attempt
// count. It never changes the counter.
func (o *Operator) Peek(ctx context.Context, typeName string, payload []byte) (identity.Identity, int, error) {
	id := o.identityOf(typeName, payload)
	if o.counter == nil {
		return id, 0, fmt.Errorf("%w: no attempt counter configured", attempts.ErrConfiguration)
	}
	n, err := o.counter.Peek(ctx, id)
	return id, n, err
}

// ──────────────────────────────────────────────────
// Forget / Flush
// ──────────────────────────────────────────────────

// ForgetOpts controls Forget.
type ForgetOpts struct {
	Force   bool
	Confirm Confirmer
}

// Forget deletes one record and best-effort clears its attempt counter.
// Without Force the operator must confirm; the default answer is no.
func (o *Operator) Forget(ctx context.Context, sel failed.Selector, opts ForgetOpts) (*failed.Record, error) {
	rec, err := o.store.FindFailed(ctx, sel)
	if err != nil {
		return nil, err
	}
	if !opts.Force && !ask(opts.Confirm, fmt.Sprintf("Delete failed job %s (%s)?", rec.UUID, rec.TypeName), false) {
		return rec, attempts.ErrCancelled
	}
	if err := o.store.DeleteFailed(ctx, failed.ByUUID(rec.UUID)); err != nil {
		return rec, err
	}
	o.clearCounter(ctx, rec)
	o.extensions.EmitFailedJobForgotten(ctx, []*failed.Record{rec})
	return rec, nil
}

// FlushOpts selects and confirms a bulk purge.
type FlushOpts struct {
	Queue          string
	OlderThanHours int
	Force          bool
	Confirm        Confirmer
}

// FlushReport is the outcome of Flush.
type FlushReport struct {
	Matched int64
	Deleted int64
}

// Flush deletes every matching record and best-effort clears their
// attempt counters. Without Force the operator must confirm; the default
// answer is no. Nothing matching is not an error.
func (o *Operator) Flush(ctx context.Context, opts FlushOpts) (*FlushReport, error) {
	f := failed.Filter{Queue: opts.Queue}.OlderThan(opts.OlderThanHours, o.now())
	recs, err := o.store.ListFailed(ctx, failed.ListOpts{Filter: f})
	if err != nil {
		return nil, attempts.Unavailable("operator: list", err)
	}
	report := &FlushReport{Matched: int64(len(recs))}
	if len(recs) == 0 {
		return report, nil
	}
	if !opts.Force && !ask(opts.Confirm, fmt.Sprintf("Delete %d failed job(s)?", len(recs)), false) {
		return report, attempts.ErrCancelled
	}

	// Delete exactly the listed records so rows written after the listing
	// survive.
	uuids := make([]string, len(recs))
	for i, r := range recs {
		uuids[i] = r.UUID
	}
	deleted, err := o.store.DeleteFailedBulk(ctx, failed.Filter{UUIDs: uuids})
	if err != nil {
		return report, attempts.Unavailable("operator: delete", err)
	}
	report.Deleted = deleted

	for _, r := range recs {
		o.clearCounter(ctx, r)
	}
	o.extensions.EmitFailedJobForgotten(ctx, recs)
	return report, nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func ask(c Confirmer, prompt string, def bool) bool {
	if c == nil {
		return def
	}
	return c(prompt, def)
}

func (o *Operator) identityOf(typeName string, payload []byte) identity.Identity {
	d := o.deriver
	if o.registry != nil {
		if e, ok := o.registry.Lookup(typeName); ok && len(e.IdentityKeys) > 0 {
			d = d.WithKeys(e.IdentityKeys)
		}
	}
	return d.FromPayload(typeName, payload)
}

func (o *Operator) clearCounter(ctx context.Context, rec *failed.Record) {
	if o.counter == nil {
		return
	}
	id := o.identityOf(rec.TypeName, rec.Payload)
	if err := o.counter.Clear(ctx, id); err != nil {
		o.logger.Warn("failed to clear attempt counter",
			slog.String("uuid", rec.UUID),
			slog.String("identity", id.String()),
			slog.String("error", err.Error()),
		)
	}
}
