package queue

import (
	"encoding/json"

	"github.com/xraph/attempts/job"
)

// JSONCodec encodes deliveries as JSON. The payload is base64 inside the
// envelope so any byte sequence survives.
type JSONCodec struct{}

func (c *JSONCodec) Encode(j *job.Job) ([]byte, error) {
	return json.Marshal(toEnvelope(j))
}

func (c *JSONCodec) Decode(data []byte) (*job.Job, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return fromEnvelope(&e)
}

func (c *JSONCodec) Name() string { return CodecNameJSON }
