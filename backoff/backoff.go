// Package backoff maps an attempt number to the delay before the next
// attempt. Everything here is pure and safe for concurrent use.
package backoff

import (
	"math"
	"time"
)

// Strategy computes the delay before retrying after a failed attempt.
type Strategy interface {
	// Delay returns how long to wait after attempt n (1-indexed) failed.
	Delay(attempt int) time.Duration
}

// fallback is used when a job declares an empty schedule.
var fallback = []int{10, 30, 60}

// DefaultSchedule returns the fallback schedule in seconds.
func DefaultSchedule() []int {
	return append([]int(nil), fallback...)
}

// DelayFor returns the delay in seconds scheduled after attempt failed.
// Index attempt-1 is used; past the end of schedule the last value repeats.
// An empty schedule uses DefaultSchedule. The result is never negative.
func DelayFor(attempt int, schedule []int) int {
	if len(schedule) == 0 {
		schedule = fallback
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(schedule) {
		idx = len(schedule) - 1
	}
	if d := schedule[idx]; d > 0 {
		return d
	}
	return 0
}

// ──────────────────────────────────────────────────
// Schedule
// ──────────────────────────────────────────────────

// Schedule is an explicit list of delays in seconds, indexed by attempt.
type Schedule []int

// Delay implements Strategy using DelayFor.
func (s Schedule) Delay(attempt int) time.Duration {
	return time.Duration(DelayFor(attempt, s)) * time.Second
}

// ──────────────────────────────────────────────────
// Constant
// ──────────────────────────────────────────────────

// Constant always returns the same delay regardless of attempt number.
type Constant struct {
	Interval time.Duration
}

// NewConstant creates a constant backoff strategy.
func NewConstant(interval time.Duration) *Constant {
	return &Constant{Interval: interval}
}

// Delay returns the fixed interval.
func (c *Constant) Delay(_ int) time.Duration {
	return c.Interval
}

// ──────────────────────────────────────────────────
// Linear
// ──────────────────────────────────────────────────

// Linear grows the delay linearly: min(Initial * attempt, Max).
type Linear struct {
	Initial time.Duration
	Max     time.Duration
}

// NewLinear creates a linear backoff strategy.
func NewLinear(initial, maxDelay time.Duration) *Linear {
	return &Linear{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * attempt, capped at Max.
func (l *Linear) Delay(attempt int) time.Duration {
	d := l.Initial * time.Duration(attempt)
	if l.Max > 0 && d > l.Max {
		return l.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Exponential
// ──────────────────────────────────────────────────

// Exponential doubles the delay each attempt: min(Initial * 2^(attempt-1), Max).
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
}

// NewExponential creates an exponential backoff strategy.
func NewExponential(initial, maxDelay time.Duration) *Exponential {
	return &Exponential{Initial: initial, Max: maxDelay}
}

// Delay returns Initial * 2^(attempt-1), capped at Max.
func (e *Exponential) Delay(attempt int) time.Duration {
	d := time.Duration(float64(e.Initial) * math.Pow(2, float64(attempt-1)))
	if e.Max > 0 && d > e.Max {
		return e.Max
	}
	return d
}

// ──────────────────────────────────────────────────
// Expansion
// ──────────────────────────────────────────────────

// Expand materializes the first n delays of s as a schedule in whole
// seconds, rounding up. Attempts past n reuse the last value, which is how
// DelayFor treats every schedule.
func Expand(s Strategy, n int) []int {
	if n < 1 {
		return nil
	}
	out := make([]int, n)
	for i := range out {
		d := s.Delay(i + 1)
		if d < 0 {
			d = 0
		}
		out[i] = int(math.Ceil(d.Seconds()))
	}
	return out
}
