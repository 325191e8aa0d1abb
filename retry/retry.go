// Package retry decides, after a failed attempt, whether a job is retried
// or has failed terminally.
package retry

import (
	"fmt"
	"time"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/backoff"
)

// Kind is the outcome of a retry decision.
type Kind int

const (
	// WillRetry means the job is re-dispatched after Decision.Delay.
	WillRetry Kind = iota + 1
	// Terminal means the job has exhausted its attempts.
	Terminal
)

func (k Kind) String() string {
	switch k {
	case WillRetry:
		return "will_retry"
	case Terminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Decide returns WillRetry iff attempt < maxTries.
func Decide(attempt, maxTries int) Kind {
	if attempt < maxTries {
		return WillRetry
	}
	return Terminal
}

// Decision is a retry decision with its delay resolved.
type Decision struct {
	Kind     Kind
	Attempt  int
	MaxTries int
	// Delay is zero for Terminal decisions.
	Delay time.Duration
}

// Policy is the immutable retry configuration of one job type.
type Policy struct {
	maxTries int
	backoff  []int
	timeout  time.Duration
}

// Default policy values.
const (
	DefaultMaxTries = 1
	DefaultTimeout  = 0
)

// DefaultPolicy returns a single-attempt policy with the fallback backoff
// schedule and no timeout.
func DefaultPolicy() Policy {
	return Policy{maxTries: DefaultMaxTries, backoff: backoff.DefaultSchedule()}
}

// NewPolicy validates and builds a Policy. maxTries must be at least 1,
// backoff values and timeout must not be negative. An empty backoff uses
// the fallback schedule at decision time.
func NewPolicy(maxTries int, schedule []int, timeout time.Duration) (Policy, error) {
	if maxTries < 1 {
		return Policy{}, fmt.Errorf("%w: max tries must be >= 1, got %d", attempts.ErrConfiguration, maxTries)
	}
	for i, d := range schedule {
		if d < 0 {
			return Policy{}, fmt.Errorf("%w: backoff[%d] is negative (%d)", attempts.ErrConfiguration, i, d)
		}
	}
	if timeout < 0 {
		return Policy{}, fmt.Errorf("%w: timeout must be >= 0, got %s", attempts.ErrConfiguration, timeout)
	}
	return Policy{
		maxTries: maxTries,
		backoff:  append([]int(nil), schedule...),
		timeout:  timeout,
	}, nil
}

// MustPolicy is like NewPolicy but panics on error.
func MustPolicy(maxTries int, schedule []int, timeout time.Duration) Policy {
	p, err := NewPolicy(maxTries, schedule, timeout)
	if err != nil {
		panic(err)
	}
	return p
}

// MaxTries returns the maximum number of attempts.
func (p Policy) MaxTries() int { return p.maxTries }

// Backoff returns a copy of the backoff schedule in seconds.
func (p Policy) Backoff() []int { return append([]int(nil), p.backoff...) }

// Timeout returns the per-attempt timeout. Zero means unbounded.
func (p Policy) Timeout() time.Duration { return p.timeout }

// IsZero reports whether p was never constructed.
func (p Policy) IsZero() bool { return p.maxTries == 0 }

// Next decides what follows a failure of attempt.
func (p Policy) Next(attempt int) Decision {
	d := Decision{
		Kind:     Decide(attempt, p.maxTries),
		Attempt:  attempt,
		MaxTries: p.maxTries,
	}
	if d.Kind == WillRetry {
		d.Delay = time.Duration(backoff.DelayFor(attempt, p.backoff)) * time.Second
	}
	return d
}
