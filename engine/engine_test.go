package engine_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/attempts"
	audithook "github.com/xraph/attempts/audit_hook"
	"github.com/xraph/attempts/engine"
	"github.com/xraph/attempts/ext"
	"github.com/xraph/attempts/failed"
	"github.com/xraph/attempts/job"
	"github.com/xraph/attempts/operator"
	"github.com/xraph/attempts/queue"
	qmemory "github.com/xraph/attempts/queue/memory"
	"github.com/xraph/attempts/store/memory"
	"github.com/xraph/attempts/worker"
)

// ──────────────────────────────────────────────────
// Test payloads and extensions
// ──────────────────────────────────────────────────

type emailPayload struct {
	ID      int    `json:"id"`
	To      string `json:"to"`
	Subject string `json:"subject"`
}

type eventLog struct {
	mu     sync.Mutex
	events []string
}

func (l *eventLog) Name() string { return "event-log" }

func (l *eventLog) add(s string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, s)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) OnJobStarted(_ context.Context, _ ext.Attempt) error {
	l.add("started")
	return nil
}

func (l *eventLog) OnJobSucceeded(_ context.Context, _ ext.Attempt, _ time.Duration) error {
	l.add("succeeded")
	return nil
}

func (l *eventLog) OnJobRetryScheduled(_ context.Context, _ ext.Attempt, _ *job.Job, _ time.Duration) error {
	l.add("retry")
	return nil
}

func (l *eventLog) OnJobTerminalFailure(_ context.Context, _ ext.Attempt, _ error, _ *failed.Record) error {
	l.add("terminal")
	return nil
}

func (l *eventLog) OnFailedJobRetried(_ context.Context, _ *failed.Record, _ *job.Job) error {
	l.add("requeued")
	return nil
}

func (l *eventLog) OnShutdown(_ context.Context) error {
	l.add("shutdown")
	return nil
}

type harness struct {
	eng   *engine.Engine
	store *memory.Store
	queue *qmemory.Dispatcher
}

func newHarness(t *testing.T, mutate func(*attempts.Config), opts ...engine.Option) *harness {
	t.Helper()
	cfg := attempts.DefaultConfig()
	cfg.Logging.Enabled = false
	if mutate != nil {
		mutate(&cfg)
	}
	s := memory.New()
	q := qmemory.New()
	eng, err := engine.New(cfg, s, s, q, opts...)
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	return &harness{eng: eng, store: s, queue: q}
}

// ──────────────────────────────────────────────────
// End-to-end: Register → Enqueue → Execute
// ──────────────────────────────────────────────────

func TestEngine_EndToEnd_RegisterEnqueueExecute(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	var got emailPayload
	def := job.NewDefinition("send-email", func(_ context.Context, p emailPayload) error {
		got = p
		return nil
	}, job.WithQueue("mail"))
	if err := engine.Register(h.eng, def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	j, err := engine.Enqueue(ctx, h.eng, "send-email", emailPayload{ID: 7, To: "alice@example.com"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if j.Queue != "mail" || j.Connection != "default" {
		t.Errorf("job routed to %s/%s, want default/mail", j.Connection, j.Queue)
	}

	d, ok := h.queue.Pop()
	if !ok || d.Delay != 0 {
		t.Fatalf("expected an immediate delivery, got %+v, %v", d, ok)
	}

	res, err := h.eng.Execute(ctx, d.Job)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Outcome != worker.Succeeded {
		t.Errorf("outcome = %s, want succeeded", res.Outcome)
	}
	if got.To != "alice@example.com" || got.ID != 7 {
		t.Errorf("handler payload = %+v", got)
	}
	if n, _ := h.eng.Attempts().Peek(ctx, res.Identity); n != 0 {
		t.Errorf("counter after success = %d, want 0", n)
	}
}

func TestEngine_RetryExhaustionAndOperatorRetry(t *testing.T) {
	events := &eventLog{}
	h := newHarness(t, nil, engine.WithExtension(events))
	ctx := context.Background()

	fail := true
	def := job.NewDefinition("send-email", func(_ context.Context, _ emailPayload) error {
		if fail {
			return errors.New("smtp refused")
		}
		return nil
	}, job.WithMaxTries(2), job.WithBackoff(5))
	if err := engine.Register(h.eng, def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := engine.Enqueue(ctx, h.eng, "send-email", emailPayload{ID: 1}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	first, _ := h.queue.Pop()
	res, err := h.eng.Execute(ctx, first.Job)
	if err != nil || res.Outcome != worker.RetryScheduled {
		t.Fatalf("first attempt = %+v, %v; want retry", res, err)
	}

	second, ok := h.queue.Pop()
	if !ok || second.Delay != 5*time.Second {
		t.Fatalf("retry delivery = %+v, %v; want 5s delay", second, ok)
	}
	res, err = h.eng.Execute(ctx, second.Job)
	var jobErr *attempts.JobError
	if !errors.As(err, &jobErr) || res.Outcome != worker.FailedTerminal {
		t.Fatalf("second attempt = %+v, %v; want terminal", res, err)
	}

	list, err := h.eng.Operator().List(ctx, operator.ListQuery{})
	if err != nil || list.Total != 1 {
		t.Fatalf("List = %+v, %v; want one record", list, err)
	}
	if list.Records[0].Attempts != 2 || list.Records[0].ExceptionSummary != "smtp refused" {
		t.Errorf("record = %+v", list.Records[0])
	}

	fail = false
	report, err := h.eng.Operator().Retry(ctx, operator.RetryQuery{
		IDs:           []string{list.Records[0].UUID},
		ResetAttempts: true,
		Force:         true,
	})
	if err != nil || report.Succeeded != 1 {
		t.Fatalf("Retry = %+v, %v", report, err)
	}
	if n, _ := h.store.CountFailed(ctx, failed.Filter{}); n != 0 {
		t.Errorf("failed records after retry = %d, want 0", n)
	}

	third, ok := h.queue.Pop()
	if !ok {
		t.Fatal("expected a re-dispatched delivery")
	}
	res, err = h.eng.Execute(ctx, third.Job)
	if err != nil || res.Outcome != worker.Succeeded || res.Attempt != 1 {
		t.Fatalf("re-dispatched attempt = %+v, %v; want success at attempt 1", res, err)
	}

	want := "started,retry,started,terminal,requeued,started,succeeded"
	if got := strings.Join(events.list(), ","); got != want {
		t.Errorf("events = %s, want %s", got, want)
	}
}

func TestEngine_EnqueueUnknownJob(t *testing.T) {
	h := newHarness(t, nil)
	_, err := engine.Enqueue(context.Background(), h.eng, "nope", emailPayload{})
	if !errors.Is(err, attempts.ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
	if h.queue.Len() != 0 {
		t.Errorf("nothing should be dispatched, got %d", h.queue.Len())
	}
}

func TestEngine_LoggingExtension(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	h := newHarness(t, func(c *attempts.Config) { c.Logging.Enabled = true }, engine.WithLogger(logger))

	def := job.NewDefinition("noop", func(context.Context, emailPayload) error { return nil })
	if err := engine.Register(h.eng, def); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := h.eng.Execute(context.Background(), job.New("noop", "", []byte(`{"id":1}`))); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	out := buf.String()
	for _, want := range []string{"job started", "job completed"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q:\n%s", want, out)
		}
	}
}

func TestEngine_RateLimitWrapsDispatcher(t *testing.T) {
	h := newHarness(t, func(c *attempts.Config) {
		c.Queue.RateLimit = 100
		c.Queue.RateBurst = 10
	})
	if _, ok := h.eng.Dispatcher().(*queue.Limiter); !ok {
		t.Fatalf("Dispatcher = %T, want *queue.Limiter", h.eng.Dispatcher())
	}
}

func TestEngine_InvalidConfig(t *testing.T) {
	cfg := attempts.DefaultConfig()
	cfg.AttemptTTL = 0
	s := memory.New()
	if _, err := engine.New(cfg, s, s, qmemory.New()); !errors.Is(err, attempts.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if _, err := engine.New(attempts.DefaultConfig(), s, nil, qmemory.New()); !errors.Is(err, attempts.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for a missing counter, got %v", err)
	}
}

func TestEngine_StartStop(t *testing.T) {
	events := &eventLog{}
	h := newHarness(t, nil, engine.WithExtension(events))
	ctx := context.Background()

	if err := h.eng.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if err := h.eng.Start(ctx); err != nil {
		t.Fatalf("second Start: %v", err)
	}
	if err := h.eng.Stop(ctx); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if got := events.list(); len(got) != 1 || got[0] != "shutdown" {
		t.Errorf("events = %v, want [shutdown]", got)
	}
}

func TestEngine_StartRejectsBadSchedule(t *testing.T) {
	h := newHarness(t, func(c *attempts.Config) { c.Retention.Schedule = "not a schedule" })
	if err := h.eng.Start(context.Background()); !errors.Is(err, attempts.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}

func TestOpen_FromConfig(t *testing.T) {
	ctx := context.Background()
	cfg := attempts.DefaultConfig()
	cfg.Logging.Enabled = false
	cfg.FailedStore.Driver = "sqlite"
	cfg.FailedStore.DSN = "file:" + filepath.Join(t.TempDir(), "attempts.db")
	cfg.Counter.Driver = "store"

	eng, err := engine.Open(ctx, cfg)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer eng.Close()

	def := job.NewDefinition("send-email", func(context.Context, emailPayload) error {
		return errors.New("boom")
	})
	if err := engine.Register(eng, def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	if _, err := eng.Execute(ctx, job.New("send-email", "", []byte(`{"id":9}`))); err == nil {
		t.Fatal("expected a terminal failure")
	}
	n, err := eng.FailedStore().CountFailed(ctx, failed.Filter{})
	if err != nil || n != 1 {
		t.Fatalf("CountFailed = %d, %v; want 1", n, err)
	}
}

func TestEngine_PayloadValidation(t *testing.T) {
	tests := []struct {
		name      string
		opts      []engine.Option
		succeeded int
	}{
		{"enabled", nil, 0},
		{"disabled", []engine.Option{engine.WithPayloadValidation(false)}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, tt.opts...)
			ctx := context.Background()
			if err := h.store.InsertFailed(ctx, &failed.Record{
				TypeName: "unregistered",
				Queue:    "default",
				Payload:  []byte(`{"id":3}`),
			}); err != nil {
				t.Fatalf("InsertFailed: %v", err)
			}

			report, err := h.eng.Operator().Retry(ctx, operator.RetryQuery{Force: true})
			if err != nil {
				t.Fatalf("Retry: %v", err)
			}
			if report.Succeeded != tt.succeeded {
				t.Errorf("succeeded = %d, want %d (failures: %v)", report.Succeeded, tt.succeeded, report.Failed)
			}
		})
	}
}

func TestEngine_AuditTrail(t *testing.T) {
	var mu sync.Mutex
	var actions []string
	rec := audithook.RecorderFunc(func(_ context.Context, evt *audithook.AuditEvent) error {
		mu.Lock()
		defer mu.Unlock()
		actions = append(actions, evt.Action)
		return nil
	})
	h := newHarness(t, nil, engine.WithExtension(audithook.New(rec)))
	ctx := context.Background()

	def := job.NewDefinition("send-email", func(context.Context, emailPayload) error {
		return errors.New("smtp refused")
	}, job.WithMaxTries(2))
	if err := engine.Register(h.eng, def); err != nil {
		t.Fatalf("Register: %v", err)
	}

	res, _ := h.eng.Execute(ctx, job.New("send-email", "", []byte(`{"id":1}`)))
	next, ok := h.queue.Pop()
	if res.Outcome != worker.RetryScheduled || !ok {
		t.Fatalf("first attempt = %+v; want a scheduled retry", res)
	}
	if _, err := h.eng.Execute(ctx, next.Job); err == nil {
		t.Fatal("expected a terminal failure")
	}

	list, err := h.eng.Operator().List(ctx, operator.ListQuery{})
	if err != nil || list.Total != 1 {
		t.Fatalf("List = %+v, %v", list, err)
	}
	if _, err := h.eng.Operator().Forget(ctx, failed.ByUUID(list.Records[0].UUID), operator.ForgetOpts{Force: true}); err != nil {
		t.Fatalf("Forget: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{
		audithook.ActionJobRetryScheduled,
		audithook.ActionJobFailedPermanently,
		audithook.ActionFailedJobDeleted,
	}
	if strings.Join(actions, ",") != strings.Join(want, ",") {
		t.Errorf("audit actions = %v, want %v", actions, want)
	}
}
