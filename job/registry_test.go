package job_test

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/backoff"
	"github.com/xraph/attempts/job"
)

type emailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
}

func TestRegistry_RegisterAndGet(t *testing.T) {
	r := job.NewRegistry()

	var got emailPayload
	def := job.NewDefinition("send-email", func(_ context.Context, p emailPayload) error {
		got = p
		return nil
	})

	if err := job.RegisterDefinition(r, def); err != nil {
		t.Fatalf("register: %v", err)
	}

	h, ok := r.Get("send-email")
	if !ok {
		t.Fatal("expected handler to be registered")
	}

	payload, _ := json.Marshal(emailPayload{To: "alice@example.com", Subject: "Hello"})
	if err := h(context.Background(), payload); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.To != "alice@example.com" || got.Subject != "Hello" {
		t.Errorf("got %+v", got)
	}
}

func TestRegistry_DefaultPolicy(t *testing.T) {
	r := job.NewRegistry()
	job.MustRegister(r, job.NewDefinition("plain", func(_ context.Context, _ struct{}) error { return nil }))

	e, ok := r.Lookup("plain")
	if !ok {
		t.Fatal("expected entry")
	}
	if e.Policy.MaxTries() != 1 {
		t.Errorf("MaxTries = %d, want 1", e.Policy.MaxTries())
	}
	if got := e.Policy.Backoff(); len(got) != 3 || got[0] != 10 || got[2] != 60 {
		t.Errorf("Backoff = %v, want [10 30 60]", got)
	}
	if e.Policy.Timeout() != 0 {
		t.Errorf("Timeout = %v, want 0", e.Policy.Timeout())
	}
}

func TestRegistry_Options(t *testing.T) {
	r := job.NewRegistry()
	job.MustRegister(r, job.NewDefinition("report", func(_ context.Context, _ struct{}) error { return nil },
		job.WithMaxTries(4),
		job.WithBackoffStrategy(backoff.NewExponential(5*time.Second, time.Minute)),
		job.WithTimeout(30*time.Second),
		job.WithQueue("reports"),
		job.WithRetryQueue("reports-retry"),
		job.WithIdentityKeys("reportId"),
	))

	e, _ := r.Lookup("report")
	if e.Policy.MaxTries() != 4 {
		t.Errorf("MaxTries = %d", e.Policy.MaxTries())
	}
	if got := e.Policy.Backoff(); len(got) != 3 || got[0] != 5 || got[1] != 10 || got[2] != 20 {
		t.Errorf("Backoff = %v, want [5 10 20]", got)
	}
	if e.Policy.Timeout() != 30*time.Second {
		t.Errorf("Timeout = %v", e.Policy.Timeout())
	}
	if e.Queue != "reports" || e.RetryQueue != "reports-retry" {
		t.Errorf("queues = %q / %q", e.Queue, e.RetryQueue)
	}
	if len(e.IdentityKeys) != 1 || e.IdentityKeys[0] != "reportId" {
		t.Errorf("IdentityKeys = %v", e.IdentityKeys)
	}
}

func TestRegistry_RejectsInvalidPolicy(t *testing.T) {
	r := job.NewRegistry()
	err := job.RegisterDefinition(r, job.NewDefinition("bad", func(_ context.Context, _ struct{}) error { return nil },
		job.WithMaxTries(0),
	))
	if !errors.Is(err, attempts.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
	if _, ok := r.Lookup("bad"); ok {
		t.Fatal("invalid definition must not be registered")
	}
}

func TestRegistry_GetUnknown(t *testing.T) {
	r := job.NewRegistry()
	if _, ok := r.Get("nonexistent"); ok {
		t.Fatal("expected no handler for unregistered job")
	}
	if err := r.Validate("nonexistent", nil); !errors.Is(err, attempts.ErrNoHandler) {
		t.Fatalf("expected ErrNoHandler, got %v", err)
	}
}

func TestRegistry_Names(t *testing.T) {
	r := job.NewRegistry()

	job.MustRegister(r, job.NewDefinition("job-a", func(_ context.Context, _ struct{}) error { return nil }))
	job.MustRegister(r, job.NewDefinition("job-b", func(_ context.Context, _ struct{}) error { return nil }))
	job.MustRegister(r, job.NewDefinition("job-c", func(_ context.Context, _ struct{}) error { return nil }))

	names := r.Names()
	sort.Strings(names)
	expected := []string{"job-a", "job-b", "job-c"}
	if len(names) != len(expected) {
		t.Fatalf("expected %d names, got %d", len(expected), len(names))
	}
	for i, want := range expected {
		if names[i] != want {
			t.Errorf("names[%d] = %q, want %q", i, names[i], want)
		}
	}
}

func TestRegistry_InvalidJSON(t *testing.T) {
	r := job.NewRegistry()
	job.MustRegister(r, job.NewDefinition("typed-job", func(_ context.Context, _ emailPayload) error {
		t.Fatal("handler should not be called with invalid JSON")
		return nil
	}))

	h, _ := r.Get("typed-job")
	err := h(context.Background(), []byte(`{invalid json`))
	if !errors.Is(err, attempts.ErrPayloadCorrupt) {
		t.Fatalf("expected ErrPayloadCorrupt, got %v", err)
	}
	if err := r.Validate("typed-job", []byte(`[1,2`)); !errors.Is(err, attempts.ErrPayloadCorrupt) {
		t.Fatalf("Validate: expected ErrPayloadCorrupt, got %v", err)
	}
	if err := r.Validate("typed-job", []byte(`{"to":"x"}`)); err != nil {
		t.Fatalf("Validate: unexpected error %v", err)
	}
}

func TestRegistry_EmptyPayload(t *testing.T) {
	r := job.NewRegistry()
	called := false
	job.MustRegister(r, job.NewDefinition("no-payload", func(_ context.Context, _ struct{}) error {
		called = true
		return nil
	}))

	h, _ := r.Get("no-payload")
	if err := h(context.Background(), nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Fatal("handler not called with empty payload")
	}
}

func TestRegistry_FailedHook(t *testing.T) {
	r := job.NewRegistry()
	var gotCause error
	var gotTo string
	def := job.NewDefinition("hooked", func(_ context.Context, _ emailPayload) error { return nil }).
		OnFailure(func(_ context.Context, p emailPayload, cause error) error {
			gotTo = p.To
			gotCause = cause
			return nil
		})
	job.MustRegister(r, def)

	e, _ := r.Lookup("hooked")
	if e.Failed == nil {
		t.Fatal("expected failed hook")
	}
	cause := errors.New("smtp down")
	if err := e.Failed(context.Background(), []byte(`{"to":"bob@example.com"}`), cause); err != nil {
		t.Fatalf("hook: %v", err)
	}
	if gotTo != "bob@example.com" || !errors.Is(gotCause, cause) {
		t.Errorf("hook got to=%q cause=%v", gotTo, gotCause)
	}
}

func TestRegistry_OverwriteHandler(t *testing.T) {
	r := job.NewRegistry()

	job.MustRegister(r, job.NewDefinition("overwrite", func(_ context.Context, _ struct{}) error {
		return errors.New("old")
	}))
	job.MustRegister(r, job.NewDefinition("overwrite", func(_ context.Context, _ struct{}) error {
		return errors.New("new")
	}))

	h, _ := r.Get("overwrite")
	err := h(context.Background(), nil)
	if err == nil || err.Error() != "new" {
		t.Fatalf("expected 'new' error, got %v", err)
	}
}

func TestJob_Redeliver(t *testing.T) {
	j := job.New("send-email", "mail", []byte(`{"to":"x"}`))
	j.Connection = "redis"

	next := j.Redeliver("mail-retry", 30*time.Second)
	if next.ID.String() == j.ID.String() {
		t.Error("expected a fresh delivery ID")
	}
	if next.Name != j.Name || next.Connection != "redis" || string(next.Payload) != string(j.Payload) {
		t.Errorf("unexpected redelivery %+v", next)
	}
	if next.Queue != "mail-retry" {
		t.Errorf("Queue = %q", next.Queue)
	}
	if next.RunAt.Sub(next.EnqueuedAt) != 30*time.Second {
		t.Errorf("RunAt offset = %v", next.RunAt.Sub(next.EnqueuedAt))
	}
	if !j.Redeliver("mail", 0).RunAt.IsZero() {
		t.Error("expected zero RunAt without delay")
	}
}
