// Package memory is an in-process Dispatcher that records deliveries. It
// backs tests and the single-process development setup.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/xraph/attempts/job"
	"github.com/xraph/attempts/queue"
)

var _ queue.Dispatcher = (*Dispatcher)(nil)

// Delivery is one recorded Enqueue call.
type Delivery struct {
	Job   *job.Job
	Delay time.Duration
}

// Dispatcher records every Enqueue. It is safe for concurrent use.
type Dispatcher struct {
	mu         sync.Mutex
	deliveries []Delivery
	fail       func(*job.Job) error
}

// New returns an empty Dispatcher.
func New() *Dispatcher {
	return &Dispatcher{}
}

// FailWith makes Enqueue return fn's error for matching jobs. A nil fn
// restores normal behavior.
func (d *Dispatcher) FailWith(fn func(*job.Job) error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.fail = fn
}

// Enqueue records j and delay.
func (d *Dispatcher) Enqueue(_ context.Context, j *job.Job, delay time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.fail != nil {
		if err := d.fail(j); err != nil {
			return err
		}
	}
	d.deliveries = append(d.deliveries, Delivery{Job: j, Delay: delay})
	return nil
}

// Deliveries returns every recorded delivery in order.
func (d *Dispatcher) Deliveries() []Delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Delivery(nil), d.deliveries...)
}

// Queue returns the deliveries made onto name.
func (d *Dispatcher) Queue(name string) []Delivery {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []Delivery
	for _, dl := range d.deliveries {
		if dl.Job.Queue == name {
			out = append(out, dl)
		}
	}
	return out
}

// Pop removes and returns the oldest delivery.
func (d *Dispatcher) Pop() (Delivery, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.deliveries) == 0 {
		return Delivery{}, false
	}
	dl := d.deliveries[0]
	d.deliveries = d.deliveries[1:]
	return dl, true
}

// Len returns the number of recorded deliveries.
func (d *Dispatcher) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.deliveries)
}
