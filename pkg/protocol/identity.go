package protocol

import "bytes"

// Identity is the pass-through protocol: no delimiters, no check code. Every
// buffer is a complete and valid frame.
type Identity struct{}

var _ Protocol = Identity{}

func (Identity) PackFrame(payload []byte) []byte { return bytes.Clone(nonNil(payload)) }

func (Identity) UnpackFrame(frame []byte) ([]byte, error) { return bytes.Clone(nonNil(frame)), nil }

func (Identity) IsFrameComplete([]byte) bool { return true }

func (Identity) IsFrameValid([]byte) bool { return true }

func (Identity) CalcCheckCode([]byte) []byte { return []byte{} }

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
