package job

import (
	"time"

	"github.com/xraph/attempts/id"
)

// Job is one delivery of a unit of work. The payload is opaque JSON; only
// the registered handler decodes it.
type Job struct {
	ID         id.JobID  `json:"id"          msgpack:"id"`
	Name       string    `json:"name"        msgpack:"name"`
	Queue      string    `json:"queue"       msgpack:"queue"`
	Connection string    `json:"connection"  msgpack:"connection"`
	Payload    []byte    `json:"payload"     msgpack:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at" msgpack:"enqueued_at"`
	// RunAt is the earliest time a delayed delivery may run. Zero means now.
	RunAt time.Time `json:"run_at,omitempty" msgpack:"run_at,omitempty"`
}

// New creates a job delivery with a fresh ID.
func New(name, queue string, payload []byte) *Job {
	return &Job{
		ID:         id.NewJobID(),
		Name:       name,
		Queue:      queue,
		Payload:    payload,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Redeliver returns an equivalent job on queue with a fresh delivery ID.
// The payload bytes are shared, never modified.
func (j *Job) Redeliver(queue string, delay time.Duration) *Job {
	now := time.Now().UTC()
	next := &Job{
		ID:         id.NewJobID(),
		Name:       j.Name,
		Queue:      queue,
		Connection: j.Connection,
		Payload:    j.Payload,
		EnqueuedAt: now,
	}
	if delay > 0 {
		next.RunAt = now.Add(delay)
	}
	return next
}
