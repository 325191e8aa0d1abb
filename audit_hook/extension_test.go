package audithook_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	ah "github.com/xraph/attempts/audit_hook"
	"github.com/xraph/attempts/ext"
	"github.com/xraph/attempts/failed"
	"github.com/xraph/attempts/identity"
	"github.com/xraph/attempts/job"
)

// ── Mock recorder ────────────────────────────────────

type mockRecorder struct {
	mu     sync.Mutex
	events []*ah.AuditEvent
	err    error
}

func (m *mockRecorder) Record(_ context.Context, evt *ah.AuditEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
	return m.err
}

func (m *mockRecorder) all() []*ah.AuditEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*ah.AuditEvent(nil), m.events...)
}

// ── Test helpers ─────────────────────────────────────

func newAttempt() ext.Attempt {
	j := job.New("send-email", "mail", []byte(`{"id":7}`))
	return ext.Attempt{
		Job:      j,
		Identity: identity.Identity{TypeName: "send-email", Discriminator: "7"},
		Number:   2,
		MaxTries: 3,
	}
}

func newRecord() *failed.Record {
	return &failed.Record{ID: 42, UUID: "0190-uuid", TypeName: "send-email", Queue: "mail"}
}

// ── Tests ────────────────────────────────────────────

func TestExtension_Name(t *testing.T) {
	if got := ah.New(&mockRecorder{}).Name(); got != "audit-hook" {
		t.Errorf("Name() = %q", got)
	}
}

func TestExtension_Events(t *testing.T) {
	ctx := context.Background()
	a := newAttempt()
	rec := newRecord()
	boom := errors.New("smtp refused")

	tests := []struct {
		name     string
		emit     func(e *ah.Extension) error
		action   string
		severity string
		outcome  string
		resID    string
		reason   string
	}{
		{
			name: "retry scheduled",
			emit: func(e *ah.Extension) error {
				return e.OnJobRetryScheduled(ctx, a, a.Job.Redeliver("mail", 30*time.Second), 30*time.Second)
			},
			action: ah.ActionJobRetryScheduled, severity: ah.SeverityWarning,
			outcome: ah.OutcomeFailure, resID: a.Job.ID.String(),
		},
		{
			name:   "terminal failure",
			emit:   func(e *ah.Extension) error { return e.OnJobTerminalFailure(ctx, a, boom, rec) },
			action: ah.ActionJobFailedPermanently, severity: ah.SeverityCritical,
			outcome: ah.OutcomeFailure, resID: a.Job.ID.String(), reason: "smtp refused",
		},
		{
			name:   "hook error",
			emit:   func(e *ah.Extension) error { return e.OnHookError(ctx, a, boom) },
			action: ah.ActionJobHookFailed, severity: ah.SeverityCritical,
			outcome: ah.OutcomeFailure, resID: a.Job.ID.String(), reason: "smtp refused",
		},
		{
			name: "operator retry",
			emit: func(e *ah.Extension) error {
				return e.OnFailedJobRetried(ctx, rec, job.New("send-email", "mail", nil))
			},
			action: ah.ActionFailedJobRetried, severity: ah.SeverityInfo,
			outcome: ah.OutcomeSuccess, resID: rec.UUID,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := &mockRecorder{}
			if err := tt.emit(ah.New(r)); err != nil {
				t.Fatalf("hook returned %v", err)
			}
			evts := r.all()
			if len(evts) != 1 {
				t.Fatalf("recorded %d events, want 1", len(evts))
			}
			evt := evts[0]
			if evt.Action != tt.action || evt.Severity != tt.severity || evt.Outcome != tt.outcome {
				t.Errorf("event = %s/%s/%s", evt.Action, evt.Severity, evt.Outcome)
			}
			if evt.ResourceID != tt.resID {
				t.Errorf("ResourceID = %q, want %q", evt.ResourceID, tt.resID)
			}
			if evt.Reason != tt.reason {
				t.Errorf("Reason = %q, want %q", evt.Reason, tt.reason)
			}
			if evt.Metadata["job_name"] != "send-email" {
				t.Errorf("job_name = %v", evt.Metadata["job_name"])
			}
		})
	}
}

func TestExtension_ForgottenRecordsOnePerRecord(t *testing.T) {
	r := &mockRecorder{}
	recs := []*failed.Record{newRecord(), {ID: 43, UUID: "0190-other", TypeName: "sync"}}
	_ = ah.New(r).OnFailedJobForgotten(context.Background(), recs)

	evts := r.all()
	if len(evts) != 2 {
		t.Fatalf("recorded %d events, want 2", len(evts))
	}
	if evts[1].ResourceID != "0190-other" || evts[1].Metadata["batch_size"] != 2 {
		t.Errorf("second event = %+v", evts[1])
	}
}

func TestExtension_WithActions(t *testing.T) {
	r := &mockRecorder{}
	e := ah.New(r, ah.WithActions(ah.ActionFailedJobDeleted))
	ctx := context.Background()

	_ = e.OnJobTerminalFailure(ctx, newAttempt(), errors.New("x"), newRecord())
	_ = e.OnFailedJobForgotten(ctx, []*failed.Record{newRecord()})

	evts := r.all()
	if len(evts) != 1 || evts[0].Action != ah.ActionFailedJobDeleted {
		t.Fatalf("events = %+v", evts)
	}
}

func TestExtension_RecorderErrorIsSwallowed(t *testing.T) {
	r := &mockRecorder{err: errors.New("audit backend down")}
	if err := ah.New(r).OnHookError(context.Background(), newAttempt(), errors.New("x")); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestAllActions(t *testing.T) {
	if got := len(ah.AllActions()); got != 5 {
		t.Errorf("AllActions() has %d entries, want 5", got)
	}
}
