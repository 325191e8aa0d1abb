package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/attempts/job"
	"github.com/xraph/attempts/queue/memory"
)

func TestDispatcherRecordsDeliveries(t *testing.T) {
	d := memory.New()
	ctx := context.Background()

	_ = d.Enqueue(ctx, job.New("a", "mail", nil), 10*time.Second)
	_ = d.Enqueue(ctx, job.New("b", "reports", nil), 0)

	if d.Len() != 2 {
		t.Fatalf("Len = %d, want 2", d.Len())
	}
	mail := d.Queue("mail")
	if len(mail) != 1 || mail[0].Delay != 10*time.Second {
		t.Fatalf("mail deliveries = %+v", mail)
	}

	first, ok := d.Pop()
	if !ok || first.Job.Name != "a" {
		t.Fatalf("Pop = %+v, %v", first, ok)
	}
	if d.Len() != 1 {
		t.Fatalf("Len after Pop = %d", d.Len())
	}
}

func TestDispatcherFailWith(t *testing.T) {
	d := memory.New()
	down := errors.New("broker down")
	d.FailWith(func(j *job.Job) error {
		if j.Queue == "bad" {
			return down
		}
		return nil
	})

	if err := d.Enqueue(context.Background(), job.New("a", "bad", nil), 0); !errors.Is(err, down) {
		t.Fatalf("expected broker error, got %v", err)
	}
	if err := d.Enqueue(context.Background(), job.New("a", "good", nil), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Len() != 1 {
		t.Fatalf("Len = %d, want 1", d.Len())
	}
}
