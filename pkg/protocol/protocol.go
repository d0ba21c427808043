// Package protocol turns payloads into transmittable frames and back.
//
// A Protocol is chosen per transport. Transports that already deliver whole,
// intact records (Redis lists, Pub/Sub, MQTT, NATS, in-process pipes) use
// Identity. Byte streams that may concatenate or tear frames across reads
// (serial lines, TCP) use a StreamProtocol such as Checked together with a
// Framer.
package protocol

// Protocol adapts payloads to frames for one transport.
type Protocol interface {
	// PackFrame wraps payload into a frame. It is a pure function of payload.
	PackFrame(payload []byte) []byte
	// UnpackFrame validates frame and returns its payload. It fails with
	// errs.ErrDataLoss when the frame is invalid or its check code mismatches.
	UnpackFrame(frame []byte) ([]byte, error)
	// IsFrameComplete reports whether buf holds at least one whole frame
	// starting at offset zero.
	IsFrameComplete(buf []byte) bool
	// IsFrameValid checks the framing structure of buf (delimiters, length
	// field) independently of the payload content.
	IsFrameValid(buf []byte) bool
	// CalcCheckCode returns the integrity code of payload.
	CalcCheckCode(payload []byte) []byte
}

// StreamProtocol is a Protocol whose frames can be located in an unbounded
// byte stream.
type StreamProtocol interface {
	Protocol
	// Sync returns the offset of the first candidate frame start in buf, or
	// len(buf)-k when only a k byte prefix of a start delimiter is present at
	// the end. It returns len(buf) when buf holds no candidate at all.
	Sync(buf []byte) int
	// FrameLen returns the total length of the frame at the start of buf, or
	// -1 when the header is not complete yet.
	FrameLen(buf []byte) int
}
