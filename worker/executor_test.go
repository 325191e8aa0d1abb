package worker_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/attempt"
	"github.com/xraph/attempts/ext"
	"github.com/xraph/attempts/failed"
	"github.com/xraph/attempts/identity"
	"github.com/xraph/attempts/job"
	qmem "github.com/xraph/attempts/queue/memory"
	"github.com/xraph/attempts/store/memory"
	"github.com/xraph/attempts/worker"
)

type payload struct {
	ID int `json:"id"`
}

type harness struct {
	reg      *job.Registry
	store    *memory.Store
	counter  *attempt.Store
	queue    *qmem.Dispatcher
	events   *recorder
	executor *worker.Executor
}

func newHarness(t *testing.T, opts ...worker.Option) *harness {
	t.Helper()
	h := &harness{
		reg:    job.NewRegistry(),
		store:  memory.New(),
		queue:  qmem.New(),
		events: &recorder{},
	}
	h.counter = attempt.NewStore(h.store, "job_attempt:")
	exts := ext.NewRegistry(nil)
	exts.Register(h.events)
	opts = append([]worker.Option{worker.WithExtensions(exts)}, opts...)
	h.executor = worker.NewExecutor(h.reg, h.counter, failed.NewService(h.store), h.queue, opts...)
	return h
}

// failTimes returns a handler that fails its first n calls.
func failTimes(n int, calls *int) func(context.Context, payload) error {
	return func(context.Context, payload) error {
		*calls++
		if *calls <= n {
			return errors.New("smtp refused")
		}
		return nil
	}
}

var mailID = identity.Identity{TypeName: "send-email", Discriminator: "42"}

func mailJob() *job.Job {
	return job.New("send-email", "mail", []byte(`{"id":42}`))
}

func TestExecute_Success(t *testing.T) {
	h := newHarness(t)
	calls := 0
	job.MustRegister(h.reg, job.NewDefinition("send-email", failTimes(0, &calls), job.WithMaxTries(3)))

	res, err := h.executor.Execute(context.Background(), mailJob())
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Outcome != worker.Succeeded || res.Attempt != 1 {
		t.Fatalf("result = %+v", res)
	}
	if res.Identity != mailID {
		t.Errorf("identity = %v, want %v", res.Identity, mailID)
	}
	if n, _ := h.counter.Peek(context.Background(), mailID); n != 0 {
		t.Errorf("counter = %d, want cleared", n)
	}
	if n, _ := h.store.CountFailed(context.Background(), failed.Filter{}); n != 0 {
		t.Errorf("failed records = %d, want 0", n)
	}
	if got := h.events.joined(); got != "started,succeeded" {
		t.Errorf("events = %s", got)
	}
}

func TestExecute_RetryThenSuccess(t *testing.T) {
	h := newHarness(t)
	calls := 0
	job.MustRegister(h.reg, job.NewDefinition("send-email", failTimes(1, &calls),
		job.WithMaxTries(3), job.WithBackoff(10, 30, 60)))
	ctx := context.Background()

	res, err := h.executor.Execute(ctx, mailJob())
	if err != nil {
		t.Fatalf("first Execute: %v", err)
	}
	if res.Outcome != worker.RetryScheduled || res.Attempt != 1 || res.Delay != 10*time.Second {
		t.Fatalf("first result = %+v", res)
	}
	if n, _ := h.counter.Peek(ctx, mailID); n != 1 {
		t.Fatalf("counter after retry = %d, want 1", n)
	}

	d, ok := h.queue.Pop()
	if !ok {
		t.Fatal("expected a redelivery")
	}
	if d.Delay != 10*time.Second || d.Job.Queue != "mail" {
		t.Fatalf("redelivery = %+v", d)
	}
	if string(d.Job.Payload) != `{"id":42}` {
		t.Errorf("payload changed: %s", d.Job.Payload)
	}

	res, err = h.executor.Execute(ctx, d.Job)
	if err != nil {
		t.Fatalf("second Execute: %v", err)
	}
	if res.Outcome != worker.Succeeded || res.Attempt != 2 {
		t.Fatalf("second result = %+v", res)
	}
	if n, _ := h.counter.Peek(ctx, mailID); n != 0 {
		t.Errorf("counter = %d, want cleared", n)
	}
	if h.queue.Len() != 0 {
		t.Errorf("unexpected deliveries: %d", h.queue.Len())
	}
}

func TestExecute_Exhaustion(t *testing.T) {
	h := newHarness(t)
	calls := 0
	job.MustRegister(h.reg, job.NewDefinition("send-email", failTimes(100, &calls),
		job.WithMaxTries(3), job.WithBackoff(10, 30, 60)))
	ctx := context.Background()

	j := mailJob()
	wantDelays := []time.Duration{10 * time.Second, 30 * time.Second}
	for i, want := range wantDelays {
		res, err := h.executor.Execute(ctx, j)
		if err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
		if res.Outcome != worker.RetryScheduled || res.Delay != want {
			t.Fatalf("attempt %d result = %+v", i+1, res)
		}
		d, _ := h.queue.Pop()
		j = d.Job
	}

	if n, _ := h.counter.Peek(ctx, mailID); n != 2 {
		t.Fatalf("counter before last attempt = %d", n)
	}

	res, err := h.executor.Execute(ctx, j)
	var jobErr *attempts.JobError
	if !errors.As(err, &jobErr) {
		t.Fatalf("expected *JobError, got %v", err)
	}
	if jobErr.Attempt != 3 || !strings.Contains(jobErr.Error(), "smtp refused") {
		t.Errorf("JobError = %v", jobErr)
	}
	if res == nil || res.Outcome != worker.FailedTerminal || res.Record == nil {
		t.Fatalf("result = %+v", res)
	}
	if calls != 3 {
		t.Errorf("body ran %d times, want 3", calls)
	}
	if res.Record.Attempts != 3 || res.Record.Queue != "mail" || res.Record.TypeName != "send-email" {
		t.Errorf("record = %+v", res.Record)
	}
	if res.Record.ExceptionSummary != "smtp refused" {
		t.Errorf("summary = %q", res.Record.ExceptionSummary)
	}
	if n, _ := h.store.CountFailed(ctx, failed.Filter{}); n != 1 {
		t.Errorf("failed records = %d, want 1", n)
	}
	if n, _ := h.counter.Peek(ctx, mailID); n != 0 {
		t.Errorf("counter = %d, want cleared", n)
	}
	if h.queue.Len() != 0 {
		t.Errorf("terminal failure must not redeliver")
	}
}

func TestExecute_SingleTryGoesTerminal(t *testing.T) {
	h := newHarness(t)
	calls := 0
	job.MustRegister(h.reg, job.NewDefinition("send-email", failTimes(1, &calls)))

	res, err := h.executor.Execute(context.Background(), mailJob())
	if err == nil {
		t.Fatal("expected terminal error")
	}
	if res.Outcome != worker.FailedTerminal || res.Attempt != 1 {
		t.Fatalf("result = %+v", res)
	}
	if h.queue.Len() != 0 {
		t.Fatal("maxTries=1 must not retry")
	}
	if got := h.events.joined(); got != "started,failed(false),terminal" {
		t.Errorf("events = %s", got)
	}
}

func TestExecute_FailedHookIsIsolated(t *testing.T) {
	for _, tc := range []struct {
		name string
		hook func(context.Context, payload, error) error
	}{
		{"error", func(context.Context, payload, error) error { return errors.New("notify down") }},
		{"panic", func(context.Context, payload, error) error { panic("notify exploded") }},
	} {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			calls := 0
			job.MustRegister(h.reg, job.NewDefinition("send-email", failTimes(1, &calls)).OnFailure(tc.hook))

			res, err := h.executor.Execute(context.Background(), mailJob())
			if err == nil || res == nil || res.Record == nil {
				t.Fatalf("expected stored terminal failure, got %+v, %v", res, err)
			}
			if n, _ := h.store.CountFailed(context.Background(), failed.Filter{}); n != 1 {
				t.Fatalf("failed records = %d, want 1", n)
			}
			if len(h.events.hookErrs) != 1 || !errors.Is(h.events.hookErrs[0], attempts.ErrHookFailed) {
				t.Fatalf("hook errors = %v", h.events.hookErrs)
			}
		})
	}
}

func TestExecute_FailedHookReceivesCause(t *testing.T) {
	h := newHarness(t)
	var got payload
	var cause error
	def := job.NewDefinition("send-email", func(context.Context, payload) error {
		return errors.New("bounced")
	}).OnFailure(func(_ context.Context, p payload, err error) error {
		got, cause = p, err
		return nil
	})
	job.MustRegister(h.reg, def)

	_, _ = h.executor.Execute(context.Background(), mailJob())
	if got.ID != 42 || cause == nil || cause.Error() != "bounced" {
		t.Fatalf("hook got (%+v, %v)", got, cause)
	}
}

func TestExecute_CounterUnavailable(t *testing.T) {
	reg := job.NewRegistry()
	calls := 0
	job.MustRegister(reg, job.NewDefinition("send-email", failTimes(0, &calls)))
	counter := attempt.NewStore(brokenCounter{errors.New("connection refused")}, "p:")
	x := worker.NewExecutor(reg, counter, failed.NewService(memory.New()), qmem.New())

	_, err := x.Execute(context.Background(), mailJob())
	if !errors.Is(err, attempts.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if calls != 0 {
		t.Fatal("body must not run without an attempt number")
	}
}

func TestExecute_FailedStoreUnavailable(t *testing.T) {
	h := newHarness(t)
	broken := &brokenFailed{Store: h.store, err: errors.New("table missing")}
	x := worker.NewExecutor(h.reg, h.counter, failed.NewService(broken), h.queue)
	calls := 0
	job.MustRegister(h.reg, job.NewDefinition("send-email", failTimes(1, &calls)))

	_, err := x.Execute(context.Background(), mailJob())
	if !errors.Is(err, attempts.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if n, _ := h.counter.Peek(context.Background(), mailID); n != 1 {
		t.Errorf("counter = %d, must survive a failed insert", n)
	}
}

func TestExecute_DispatchFailureIsFatal(t *testing.T) {
	h := newHarness(t)
	calls := 0
	job.MustRegister(h.reg, job.NewDefinition("send-email", failTimes(1, &calls), job.WithMaxTries(3)))
	h.queue.FailWith(func(*job.Job) error { return errors.New("broker down") })

	res, err := h.executor.Execute(context.Background(), mailJob())
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Fatalf("expected dispatch error, got %v", err)
	}
	if res != nil {
		t.Errorf("result = %+v, want nil", res)
	}
	if n, _ := h.counter.Peek(context.Background(), mailID); n != 1 {
		t.Errorf("counter = %d, want 1", n)
	}
}

func TestExecute_RetryQueueOverride(t *testing.T) {
	h := newHarness(t)
	calls := 0
	job.MustRegister(h.reg, job.NewDefinition("send-email", failTimes(1, &calls),
		job.WithMaxTries(2), job.WithRetryQueue("mail-retry")))

	if _, err := h.executor.Execute(context.Background(), mailJob()); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if got := h.queue.Queue("mail-retry"); len(got) != 1 {
		t.Fatalf("mail-retry deliveries = %d, want 1", len(got))
	}
}

func TestExecute_TimeoutIsAFailure(t *testing.T) {
	h := newHarness(t)
	release := make(chan struct{})
	defer close(release)
	job.MustRegister(h.reg, job.NewDefinition("send-email", func(context.Context, payload) error {
		<-release
		return nil
	}, job.WithTimeout(20*time.Millisecond)))

	res, err := h.executor.Execute(context.Background(), mailJob())
	if !errors.Is(err, attempts.ErrJobTimedOut) {
		t.Fatalf("expected ErrJobTimedOut, got %v", err)
	}
	if !strings.Contains(res.Record.ExceptionSummary, "timed out") {
		t.Errorf("summary = %q", res.Record.ExceptionSummary)
	}
}

func TestExecute_PanicIsAFailure(t *testing.T) {
	h := newHarness(t)
	job.MustRegister(h.reg, job.NewDefinition("send-email", func(context.Context, payload) error {
		panic("nil map")
	}))

	res, err := h.executor.Execute(context.Background(), mailJob())
	if err == nil || res.Outcome != worker.FailedTerminal {
		t.Fatalf("expected terminal failure, got %+v, %v", res, err)
	}
	if !strings.Contains(res.Record.Exception, "goroutine") {
		t.Error("expected stack trace in the stored exception")
	}
}

func TestExecute_UnknownJob(t *testing.T) {
	h := newHarness(t)
	_, err := h.executor.Execute(context.Background(), job.New("nope", "default", nil))
	if !errors.Is(err, attempts.ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

func TestExecute_DefaultsConnectionAndQueue(t *testing.T) {
	h := newHarness(t, worker.WithConnection("redis"), worker.WithDefaultQueue("low"))
	job.MustRegister(h.reg, job.NewDefinition("send-email", func(context.Context, payload) error {
		return errors.New("x")
	}))

	j := job.New("send-email", "", []byte(`{"id":42}`))
	res, _ := h.executor.Execute(context.Background(), j)
	if res.Record.Connection != "redis" || res.Record.Queue != "low" {
		t.Errorf("record = %+v", res.Record)
	}
	if j.Connection != "" || j.Queue != "" {
		t.Errorf("caller's job modified: connection=%q queue=%q", j.Connection, j.Queue)
	}
}

func TestExecute_LeavesCallerJobUntouched(t *testing.T) {
	h := newHarness(t, worker.WithConnection("redis"), worker.WithDefaultQueue("low"))
	calls := 0
	job.MustRegister(h.reg, job.NewDefinition("send-email", failTimes(1, &calls), job.WithMaxTries(3)))

	j := job.New("send-email", "", []byte(`{"id":42}`))
	before := *j
	res, err := h.executor.Execute(context.Background(), j)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Outcome != worker.RetryScheduled {
		t.Fatalf("outcome = %v, want RetryScheduled", res.Outcome)
	}
	if res.Next.Queue != "low" || res.Next.Connection != "redis" {
		t.Errorf("next = %+v", res.Next)
	}
	if j.Queue != before.Queue || j.Connection != before.Connection || j.ID != before.ID {
		t.Errorf("job = %+v, want %+v", *j, before)
	}
}

// ──────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────

type brokenCounter struct{ err error }

func (b brokenCounter) Incr(context.Context, string, time.Duration) (int64, error) { return 0, b.err }
func (b brokenCounter) Delete(context.Context, string) error                       { return b.err }
func (b brokenCounter) Get(context.Context, string) (int64, bool, error)           { return 0, false, b.err }

type brokenFailed struct {
	*memory.Store
	err error
}

func (b *brokenFailed) InsertFailed(context.Context, *failed.Record) error { return b.err }

type recorder struct {
	events   []string
	hookErrs []error
}

func (r *recorder) Name() string { return "recorder" }

func (r *recorder) OnJobStarted(context.Context, ext.Attempt) error {
	r.events = append(r.events, "started")
	return nil
}

func (r *recorder) OnJobSucceeded(context.Context, ext.Attempt, time.Duration) error {
	r.events = append(r.events, "succeeded")
	return nil
}

func (r *recorder) OnJobFailed(_ context.Context, _ ext.Attempt, _ error, willRetry bool) error {
	if willRetry {
		r.events = append(r.events, "failed(true)")
	} else {
		r.events = append(r.events, "failed(false)")
	}
	return nil
}

func (r *recorder) OnJobTerminalFailure(context.Context, ext.Attempt, error, *failed.Record) error {
	r.events = append(r.events, "terminal")
	return nil
}

func (r *recorder) OnHookError(_ context.Context, _ ext.Attempt, err error) error {
	r.hookErrs = append(r.hookErrs, err)
	return nil
}

func (r *recorder) joined() string { return strings.Join(r.events, ",") }
