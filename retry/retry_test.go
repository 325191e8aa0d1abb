package retry_test

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/retry"
)

func TestDecide(t *testing.T) {
	tests := []struct {
		attempt, maxTries int
		want              retry.Kind
	}{
		{1, 3, retry.WillRetry},
		{2, 3, retry.WillRetry},
		{3, 3, retry.Terminal},
		{4, 3, retry.Terminal},
		{1, 1, retry.Terminal},
	}
	for _, tt := range tests {
		if got := retry.Decide(tt.attempt, tt.maxTries); got != tt.want {
			t.Errorf("Decide(%d, %d) = %s, want %s", tt.attempt, tt.maxTries, got, tt.want)
		}
	}
}

func TestNewPolicyRejectsInvalid(t *testing.T) {
	tests := []struct {
		name     string
		maxTries int
		schedule []int
		timeout  time.Duration
	}{
		{"zero tries", 0, nil, 0},
		{"negative tries", -2, nil, 0},
		{"negative backoff", 3, []int{10, -1}, 0},
		{"negative timeout", 3, nil, -time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := retry.NewPolicy(tt.maxTries, tt.schedule, tt.timeout)
			if !errors.Is(err, attempts.ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestPolicyNext(t *testing.T) {
	p := retry.MustPolicy(3, []int{10, 30, 60}, 0)

	d1 := p.Next(1)
	if d1.Kind != retry.WillRetry || d1.Delay != 10*time.Second {
		t.Errorf("attempt 1: got %+v", d1)
	}
	d2 := p.Next(2)
	if d2.Kind != retry.WillRetry || d2.Delay != 30*time.Second {
		t.Errorf("attempt 2: got %+v", d2)
	}
	d3 := p.Next(3)
	if d3.Kind != retry.Terminal || d3.Delay != 0 {
		t.Errorf("attempt 3: got %+v", d3)
	}
}

func TestDefaultPolicy(t *testing.T) {
	p := retry.DefaultPolicy()
	if p.MaxTries() != 1 {
		t.Errorf("MaxTries = %d, want 1", p.MaxTries())
	}
	if p.Timeout() != 0 {
		t.Errorf("Timeout = %v, want 0", p.Timeout())
	}
	if got := p.Next(1).Kind; got != retry.Terminal {
		t.Errorf("single-try policy should be terminal on first failure, got %s", got)
	}
}

func TestPolicyBackoffIsCopied(t *testing.T) {
	schedule := []int{5}
	p := retry.MustPolicy(2, schedule, 0)
	schedule[0] = 500
	if got := p.Next(1).Delay; got != 5*time.Second {
		t.Errorf("policy mutated through caller slice: %v", got)
	}
	b := p.Backoff()
	b[0] = 700
	if got := p.Next(1).Delay; got != 5*time.Second {
		t.Errorf("policy mutated through Backoff(): %v", got)
	}
}
