package failed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/job"
)

// Service records terminal failures into a Store.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithClock overrides the time source used for FailedAt.
func WithClock(now func() time.Time) ServiceOption {
	return func(s *Service) { s.now = now }
}

// NewService creates a failed-job service.
func NewService(store Store, opts ...ServiceOption) *Service {
	s := &Service{store: store, logger: slog.Default(), now: func() time.Time { return time.Now().UTC() }}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Record builds a Record from the failed delivery j and persists it. The
// payload is stored unchanged. Store errors are wrapped with
// attempts.ErrStoreUnavailable and must abort the execution.
func (s *Service) Record(ctx context.Context, j *job.Job, attemptNum int, jobErr error) (*Record, error) {
	summary, full := Describe(jobErr)
	r := &Record{
		TypeName:         j.Name,
		Connection:       j.Connection,
		Queue:            j.Queue,
		Payload:          j.Payload,
		ExceptionSummary: summary,
		Exception:        full,
		Attempts:         attemptNum,
		FailedAt:         s.now(),
	}
	if err := s.store.InsertFailed(ctx, r); err != nil {
		return nil, attempts.Unavailable(fmt.Sprintf("failed: insert %s", j.Name), err)
	}
	s.logger.Debug("failed job stored",
		slog.String("uuid", r.UUID),
		slog.Int64("id", r.ID),
		slog.String("job_name", r.TypeName),
		slog.String("queue", r.Queue),
	)
	return r, nil
}

// Store returns the underlying store.
func (s *Service) Store() Store {
	return s.store
}
