package queue

import (
	"github.com/vmihailenco/msgpack/v5"

	"github.com/xraph/attempts/job"
)

// MsgpackCodec encodes deliveries as MessagePack.
type MsgpackCodec struct{}

func (c *MsgpackCodec) Encode(j *job.Job) ([]byte, error) {
	return msgpack.Marshal(toEnvelope(j))
}

func (c *MsgpackCodec) Decode(data []byte) (*job.Job, error) {
	var e Envelope
	if err := msgpack.Unmarshal(data, &e); err != nil {
		return nil, err
	}
	return fromEnvelope(&e)
}

func (c *MsgpackCodec) Name() string { return CodecNameMsgpack }
