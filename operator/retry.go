package operator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/failed"
	"github.com/xraph/attempts/id"
	"github.com/xraph/attempts/job"
)

var rangePattern = regexp.MustCompile(`^(\d+)-(\d+)$`)

// ParseRange parses an inclusive numeric ID range such as "1-5".
func ParseRange(s string) (from, to int64, err error) {
	m := rangePattern.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("%w: %q (use: 1-5)", attempts.ErrInvalidRange, s)
	}
	from, _ = strconv.ParseInt(m[1], 10, 64)
	to, _ = strconv.ParseInt(m[2], 10, 64)
	if from < 1 || to < from {
		return 0, 0, fmt.Errorf("%w: %q", attempts.ErrInvalidRange, s)
	}
	return from, to, nil
}

// RetryQuery selects records to re-dispatch. Selection precedence is IDs,
// then Range (narrowed by Queue), then every record (narrowed by Queue).
type RetryQuery struct {
	// IDs are UUIDs or numeric IDs.
	IDs []string
	// Range is an inclusive numeric ID range such as "1-5".
	Range string
	// Queue narrows a Range or all-records selection.
	Queue string

	// ResetAttempts clears each record's attempt counter before dispatch.
	ResetAttempts bool
	// Force skips confirmation. The default answer is yes.
	Force   bool
	Confirm Confirmer
	// OnSummary, if set, sees the selection before confirmation.
	OnSummary func(*Summary)
}

// Group counts selected records sharing a queue or job type.
type Group struct {
	Name  string
	Count int
}

// Summary describes a retry selection.
type Summary struct {
	Records       []*failed.Record
	Queue         string
	ResetAttempts bool
	ByQueue       []Group
	ByType        []Group
}

// ItemError is the failure of one record in a batch.
type ItemError struct {
	UUID string
	ID   int64
	Err  error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.UUID, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// RetryReport is the outcome of Retry.
type RetryReport struct {
	Batch     id.BatchID
	Selected  int
	Succeeded int
	Failed    []ItemError
	// Jobs are the re-dispatched deliveries, in selection order.
	Jobs []*job.Job
}

// Partial reports whether some but not necessarily all items failed.
func (r *RetryReport) Partial() bool { return len(r.Failed) > 0 }

// Retry re-dispatches the selected records and deletes each one once its
// dispatch succeeded. A failing item is reported in the report and never
// stops the batch. Retry fails with attempts.ErrFailedJobNotFound when
// explicit IDs match nothing, and with attempts.ErrCancelled when the
// operator declines.
func (o *Operator) Retry(ctx context.Context, q RetryQuery) (*RetryReport, error) {
	recs, err := o.selectForRetry(ctx, q)
	if err != nil {
		return nil, err
	}
	report := &RetryReport{Batch: id.NewBatchID(), Selected: len(recs)}
	if len(recs) == 0 {
		if len(q.IDs) > 0 {
			return report, attempts.ErrFailedJobNotFound
		}
		return report, nil
	}

	if q.OnSummary != nil {
		q.OnSummary(summarize(recs, q))
	}
	if !q.Force && !ask(q.Confirm, fmt.Sprintf("Retry %d job(s)?", len(recs)), true) {
		return report, attempts.ErrCancelled
	}

	jobs := make([]*job.Job, len(recs))
	errs := make([]error, len(recs))

	var g errgroup.Group
	g.SetLimit(o.concurrency)
	for i, rec := range recs {
		g.Go(func() error {
			jobs[i], errs[i] = o.retryOne(ctx, rec, q.ResetAttempts)
			return nil
		})
	}
	_ = g.Wait()

	for i, rec := range recs {
		if errs[i] != nil {
			report.Failed = append(report.Failed, ItemError{UUID: rec.UUID, ID: rec.ID, Err: errs[i]})
			continue
		}
		report.Succeeded++
		report.Jobs = append(report.Jobs, jobs[i])
	}

	o.logger.Info("failed jobs retried",
		slog.String("batch", report.Batch.String()),
		slog.Int("selected", report.Selected),
		slog.Int("succeeded", report.Succeeded),
		slog.Int("failed", len(report.Failed)),
	)
	return report, nil
}

func (o *Operator) retryOne(ctx context.Context, rec *failed.Record, reset bool) (*job.Job, error) {
	if o.registry != nil {
		if err := o.registry.Validate(rec.TypeName, rec.Payload); err != nil {
			return nil, err
		}
	}
	if reset && o.counter != nil {
		if err := o.counter.Clear(ctx, o.identityOf(rec.TypeName, rec.Payload)); err != nil {
			return nil, fmt.Errorf("reset attempts: %w", err)
		}
	}

	queueName := rec.Queue
	if queueName == "" {
		queueName = o.defaultQueue
	}
	next := &job.Job{
		ID:         id.NewJobID(),
		Name:       rec.TypeName,
		Queue:      queueName,
		Connection: rec.Connection,
		Payload:    rec.Payload,
		EnqueuedAt: time.Now().UTC(),
	}
	if err := o.dispatcher.Enqueue(ctx, next, 0); err != nil {
		return nil, fmt.Errorf("dispatch: %w", err)
	}

	if err := o.store.DeleteFailed(ctx, failed.ByUUID(rec.UUID)); err != nil && !errors.Is(err, attempts.ErrFailedJobNotFound) {
		return next, fmt.Errorf("dispatched as %s but record not removed: %w", next.ID, err)
	}
	o.extensions.EmitFailedJobRetried(ctx, rec, next)
	return next, nil
}

func (o *Operator) selectForRetry(ctx context.Context, q RetryQuery) ([]*failed.Record, error) {
	if len(q.IDs) > 0 {
		seen := make(map[string]bool, len(q.IDs))
		var recs []*failed.Record
		for _, s := range q.IDs {
			rec, err := o.store.FindFailed(ctx, failed.ParseSelector(s))
			if errors.Is(err, attempts.ErrFailedJobNotFound) {
				o.logger.Warn("failed job not found", slog.String("selector", s))
				continue
			}
			if err != nil {
				return nil, attempts.Unavailable("operator: find", err)
			}
			if !seen[rec.UUID] {
				seen[rec.UUID] = true
				recs = append(recs, rec)
			}
		}
		return recs, nil
	}

	f := failed.Filter{Queue: q.Queue}
	if q.Range != "" {
		from, to, err := ParseRange(q.Range)
		if err != nil {
			return nil, err
		}
		f.IDFrom, f.IDTo = from, to
	}
	recs, err := o.store.ListFailed(ctx, failed.ListOpts{Filter: f})
	if err != nil {
		return nil, attempts.Unavailable("operator: list", err)
	}
	return recs, nil
}

func summarize(recs []*failed.Record, q RetryQuery) *Summary {
	byQueue := map[string]int{}
	byType := map[string]int{}
	for _, r := range recs {
		byQueue[r.Queue]++
		byType[r.TypeName]++
	}
	return &Summary{
		Records:       recs,
		Queue:         q.Queue,
		ResetAttempts: q.ResetAttempts,
		ByQueue:       groups(byQueue),
		ByType:        groups(byType),
	}
}

func groups(m map[string]int) []Group {
	out := make([]Group, 0, len(m))
	for name, n := range m {
		out = append(out, Group{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

