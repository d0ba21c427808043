package queue

import (
	"fmt"

	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/protocol"
)

// Codec turns messages into transport records and back: the message wire
// codec followed by a frame protocol.
type Codec struct {
	Protocol protocol.Protocol
}

// NewCodec returns a Codec using p, or the identity protocol when p is nil.
func NewCodec(p protocol.Protocol) Codec {
	if p == nil {
		p = protocol.Identity{}
	}
	return Codec{Protocol: p}
}

// Encode serializes and frames msg.
func (c Codec) Encode(msg *message.Message) []byte {
	return c.Protocol.PackFrame(msg.Raw())
}

// Decode unframes and parses a record. Every failure is an errs.ErrDataLoss.
func (c Codec) Decode(record []byte) (*message.Message, error) {
	payload, err := c.Protocol.UnpackFrame(record)
	if err != nil {
		return nil, fmt.Errorf("unpack frame: %w", err)
	}
	msg, err := message.Parse(payload)
	if err != nil {
		return nil, fmt.Errorf("parse message: %w", err)
	}
	return msg, nil
}

// DecodeEntry decodes a backlog entry, surfacing a receive-side error as is.
func (c Codec) DecodeEntry(e Entry) (*message.Message, error) {
	if e.Err != nil {
		return nil, e.Err
	}
	return c.Decode(e.Raw)
}
