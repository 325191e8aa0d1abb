package attempts

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports an invalid retry policy or deployment
	// config. It is raised when the policy is built, never mid-execution.
	ErrConfiguration = errors.New("attempts: invalid configuration")

	// ErrStoreUnavailable wraps any failure of the attempt counter or
	// failed-job backend. It aborts the current execution.
	ErrStoreUnavailable = errors.New("attempts: store unavailable")

	// Not found errors.
	ErrFailedJobNotFound = errors.New("attempts: failed job not found")
	ErrNoHandler         = errors.New("attempts: no handler registered")

	// Per-record errors.
	ErrPayloadCorrupt = errors.New("attempts: payload corrupt")

	// Execution errors.
	ErrJobTimedOut = errors.New("attempts: job timed out")
	ErrHookFailed  = errors.New("attempts: failed hook error")

	// Operator errors.
	ErrCancelled    = errors.New("attempts: cancelled by operator")
	ErrInvalidRange = errors.New("attempts: invalid id range")
)

// JobError is the body failure of one attempt, annotated with where it
// happened. Unwrap returns the handler's error.
type JobError struct {
	Name     string
	Identity string
	Attempt  int
	Err      error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("job %s (%s) attempt %d: %v", e.Name, e.Identity, e.Attempt, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Unavailable joins err with ErrStoreUnavailable so callers can match it
// with errors.Is while keeping the backend message.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}
