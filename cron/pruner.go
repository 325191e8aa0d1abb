package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	cronlib "github.com/robfig/cron/v3"

	"github.com/xraph/attempts"
	"github.com/xraph/attempts/failed"
)

// cronParser supports standard 5-field cron and descriptors like "@every 30s".
var cronParser = cronlib.NewParser(
	cronlib.Minute | cronlib.Hour | cronlib.Dom | cronlib.Month | cronlib.Dow | cronlib.Descriptor,
)

// ParseSchedule parses a cron expression and returns the schedule.
func ParseSchedule(expr string) (cronlib.Schedule, error) {
	s, err := cronParser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("%w: schedule %q: %w", attempts.ErrConfiguration, expr, err)
	}
	return s, nil
}

// Option configures a Pruner.
type Option func(*Pruner)

// WithTickInterval sets how often the pruner checks whether it is due.
func WithTickInterval(d time.Duration) Option {
	return func(p *Pruner) { p.tickInterval = d }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(p *Pruner) { p.now = now }
}

// Pruner deletes old failed records on a schedule.
type Pruner struct {
	store    failed.Store
	schedule cronlib.Schedule
	maxAge   time.Duration
	logger   *slog.Logger

	tickInterval time.Duration
	now          func() time.Time

	mu   sync.Mutex
	next time.Time

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewPruner creates a Pruner. maxAge must be positive.
func NewPruner(store failed.Store, schedule string, maxAge time.Duration, logger *slog.Logger, opts ...Option) (*Pruner, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("%w: retention max age must be positive, got %s", attempts.ErrConfiguration, maxAge)
	}
	sched, err := ParseSchedule(schedule)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pruner{
		store:        store,
		schedule:     sched,
		maxAge:       maxAge,
		logger:       logger,
		tickInterval: 30 * time.Second,
		now:          func() time.Time { return time.Now().UTC() },
		stopCh:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.next = p.schedule.Next(p.now())
	return p, nil
}

// Next returns the time of the next scheduled pass.
func (p *Pruner) Next() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

// Start launches the tick goroutine.
func (p *Pruner) Start(_ context.Context) error {
	p.wg.Add(1)
	go p.tickLoop()
	p.logger.Info("failed job pruner started",
		slog.Time("next_run", p.Next()),
		slog.Duration("max_age", p.maxAge),
	)
	return nil
}

// Stop signals the pruner to stop and waits for the tick goroutine.
func (p *Pruner) Stop(_ context.Context) error {
	close(p.stopCh)
	p.wg.Wait()
	p.logger.Info("failed job pruner stopped")
	return nil
}

func (p *Pruner) tickLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.Tick(context.Background())
		}
	}
}

// Tick runs a pass if the schedule is due and reports whether it did.
func (p *Pruner) Tick(ctx context.Context) bool {
	now := p.now()

	p.mu.Lock()
	due := !p.next.After(now)
	if due {
		p.next = p.schedule.Next(now)
	}
	p.mu.Unlock()

	if !due {
		return false
	}
	if _, err := p.PruneOnce(ctx); err != nil {
		p.logger.Error("prune failed jobs error", slog.String("error", err.Error()))
	}
	return true
}

// PruneOnce deletes every record that failed more than maxAge ago.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.maxAge)
	n, err := p.store.DeleteFailedBulk(ctx, failed.Filter{FailedBefore: cutoff})
	if err != nil {
		return 0, attempts.Unavailable("cron: prune", err)
	}
	p.logger.Info("pruned failed jobs",
		slog.Int64("deleted", n),
		slog.Time("cutoff", cutoff),
	)
	return n, nil
}
