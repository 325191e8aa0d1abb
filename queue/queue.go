package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/xraph/attempts/job"
)

// Dispatcher places a job on the live queue transport, optionally after a
// delay. A returned error is fatal to the retry that requested it; the
// dispatcher must not retry internally.
type Dispatcher interface {
	Enqueue(ctx context.Context, j *job.Job, delay time.Duration) error
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, j *job.Job, delay time.Duration) error

// Enqueue calls f.
func (f DispatcherFunc) Enqueue(ctx context.Context, j *job.Job, delay time.Duration) error {
	return f(ctx, j, delay)
}

// Wildcard names the Config applied to queues without their own entry.
const Wildcard = "*"

// Config defines the dispatch rate of one queue.
type Config struct {
	// Name is the queue name, or Wildcard.
	Name string

	// RateLimit is the maximum sustained dispatches per second onto this
	// queue. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the token-bucket burst size. Defaults to 1 when
	// RateLimit is set.
	RateBurst int
}

func (c Config) newLimiter() *rate.Limiter {
	if c.RateLimit <= 0 {
		return nil
	}
	burst := c.RateBurst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(c.RateLimit), burst)
}

// Limiter is a Dispatcher that paces dispatches per queue before handing
// them to the next Dispatcher. It is safe for concurrent use.
type Limiter struct {
	next Dispatcher

	mu       sync.Mutex
	configs  map[string]Config
	limiters map[string]*rate.Limiter
}

// NewLimiter wraps next with the given per-queue rate limits. Queues
// without a Config, and without a Wildcard Config, are not limited.
func NewLimiter(next Dispatcher, configs ...Config) *Limiter {
	l := &Limiter{
		next:     next,
		configs:  make(map[string]Config, len(configs)),
		limiters: make(map[string]*rate.Limiter),
	}
	for _, c := range configs {
		l.configs[c.Name] = c
	}
	return l
}

// Enqueue waits for the queue's rate limiter, honoring ctx, then
// dispatches.
func (l *Limiter) Enqueue(ctx context.Context, j *job.Job, delay time.Duration) error {
	if lim := l.limiter(j.Queue); lim != nil {
		if err := lim.Wait(ctx); err != nil {
			return fmt.Errorf("queue: rate limit %q: %w", j.Queue, err)
		}
	}
	return l.next.Enqueue(ctx, j, delay)
}

// limiter returns the limiter of queue, creating it on first use.
func (l *Limiter) limiter(queue string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	if lim, ok := l.limiters[queue]; ok {
		return lim
	}
	cfg, ok := l.configs[queue]
	if !ok {
		cfg, ok = l.configs[Wildcard]
	}
	var lim *rate.Limiter
	if ok {
		lim = cfg.newLimiter()
	}
	l.limiters[queue] = lim
	return lim
}
