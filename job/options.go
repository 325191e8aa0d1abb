package job

import (
	"time"

	"github.com/xraph/attempts/backoff"
	"github.com/xraph/attempts/retry"
)

// Options configures per-job retry behavior.
type Options struct {
	// MaxTries is the total number of attempts, including the first.
	MaxTries int

	// Backoff lists delays in seconds after attempt 1, 2, ... The last
	// value repeats.
	Backoff []int

	// Timeout bounds a single attempt. Zero means unbounded.
	Timeout time.Duration

	// Queue is the queue fresh deliveries go to. Empty means the engine's
	// default queue.
	Queue string

	// RetryQueue, if set, receives retries instead of the queue the failed
	// attempt ran on.
	RetryQueue string

	// IdentityKeys overrides the candidate fields used to identify a job
	// instance.
	IdentityKeys []string
}

// DefaultOptions returns one try, the fallback backoff and no timeout.
func DefaultOptions() Options {
	return Options{
		MaxTries: retry.DefaultMaxTries,
		Backoff:  backoff.DefaultSchedule(),
		Timeout:  retry.DefaultTimeout,
	}
}

// Option is a functional option for configuring a job definition.
type Option func(*Options)

// WithMaxTries sets the maximum number of attempts.
func WithMaxTries(n int) Option {
	return func(o *Options) {
		o.MaxTries = n
	}
}

// WithBackoff sets the backoff schedule in seconds. A single value gives
// a constant backoff.
func WithBackoff(seconds ...int) Option {
	return func(o *Options) {
		o.Backoff = append([]int(nil), seconds...)
	}
}

// WithBackoffStrategy expands s into a schedule covering every retry of
// the job. Apply it after WithMaxTries.
func WithBackoffStrategy(s backoff.Strategy) Option {
	return func(o *Options) {
		n := o.MaxTries - 1
		if n < 1 {
			n = 1
		}
		o.Backoff = backoff.Expand(s, n)
	}
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Options) {
		o.Timeout = d
	}
}

// WithQueue sets the queue name for fresh deliveries.
func WithQueue(q string) Option {
	return func(o *Options) {
		o.Queue = q
	}
}

// WithRetryQueue routes retries to q.
func WithRetryQueue(q string) Option {
	return func(o *Options) {
		o.RetryQueue = q
	}
}

// WithIdentityKeys sets the candidate identity fields for this job type.
func WithIdentityKeys(keys ...string) Option {
	return func(o *Options) {
		o.IdentityKeys = append([]string(nil), keys...)
	}
}
