package queue

import (
	"time"

	"github.com/xraph/attempts/id"
	"github.com/xraph/attempts/job"
)

// Codec serializes job deliveries for a queue transport.
type Codec interface {
	// Encode serializes a job to bytes.
	Encode(j *job.Job) ([]byte, error)

	// Decode deserializes bytes into a job.
	Decode(data []byte) (*job.Job, error)

	// Name returns the codec identifier ("json" or "msgpack").
	Name() string
}

// Codec names.
const (
	CodecNameJSON    = "json"
	CodecNameMsgpack = "msgpack"
)

// GetCodec returns a codec by name. Defaults to JSON.
func GetCodec(name string) Codec {
	switch name {
	case CodecNameMsgpack:
		return &MsgpackCodec{}
	default:
		return &JSONCodec{}
	}
}

// Envelope is the wire form of a job delivery.
type Envelope struct {
	ID         string    `json:"id"                msgpack:"id"`
	Name       string    `json:"name"              msgpack:"name"`
	Queue      string    `json:"queue"             msgpack:"queue"`
	Connection string    `json:"connection"        msgpack:"connection"`
	Payload    []byte    `json:"payload"           msgpack:"payload"`
	EnqueuedAt time.Time `json:"enqueued_at"       msgpack:"enqueued_at"`
	RunAt      time.Time `json:"run_at,omitempty"  msgpack:"run_at,omitempty"`
}

func toEnvelope(j *job.Job) *Envelope {
	return &Envelope{
		ID:         j.ID.String(),
		Name:       j.Name,
		Queue:      j.Queue,
		Connection: j.Connection,
		Payload:    j.Payload,
		EnqueuedAt: j.EnqueuedAt,
		RunAt:      j.RunAt,
	}
}

func fromEnvelope(e *Envelope) (*job.Job, error) {
	j := &job.Job{
		Name:       e.Name,
		Queue:      e.Queue,
		Connection: e.Connection,
		Payload:    e.Payload,
		EnqueuedAt: e.EnqueuedAt,
		RunAt:      e.RunAt,
	}
	if e.ID != "" {
		parsed, err := id.ParseJobID(e.ID)
		if err != nil {
			return nil, err
		}
		j.ID = parsed
	}
	return j, nil
}
