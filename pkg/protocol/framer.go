package protocol

// Status is the outcome of Framer.Next.
type Status int

const (
	// StatusFrameDone means a payload was extracted.
	StatusFrameDone Status = iota
	// StatusIncomplete means more bytes are needed.
	StatusIncomplete
	// StatusCorrupt means a whole frame failed its check and was discarded.
	StatusCorrupt
)

// Framer accumulates bytes read from a stream and cuts them into payloads.
//
// Garbage before a sync word and headers with an impossible length are
// skipped. A frame failing its check code is reported once as StatusCorrupt;
// the framer then resumes scanning one byte after the rejected start so a
// frame hidden behind a false sync word is still found.
type Framer struct {
	proto     StreamProtocol
	buf       []byte
	discarded int
}

// NewFramer returns a Framer for p.
func NewFramer(p StreamProtocol) *Framer {
	return &Framer{proto: p}
}

// Fill appends bytes read from the stream.
func (f *Framer) Fill(b []byte) {
	f.buf = append(f.buf, b...)
}

// Buffered returns the number of bytes held waiting for a complete frame.
func (f *Framer) Buffered() int { return len(f.buf) }

// Discarded returns the number of bytes skipped while resynchronizing.
func (f *Framer) Discarded() int { return f.discarded }

// Reset drops every buffered byte.
func (f *Framer) Reset() {
	f.buf = f.buf[:0]
}

// Next extracts the next payload from the buffered bytes.
func (f *Framer) Next() ([]byte, Status) {
	for {
		if off := f.proto.Sync(f.buf); off > 0 {
			f.skip(off)
		}
		if len(f.buf) == 0 {
			return nil, StatusIncomplete
		}
		if !f.proto.IsFrameValid(f.buf) {
			// Either a lone partial sync byte waiting for its partner, or a
			// header announcing an impossible length.
			if f.proto.FrameLen(f.buf) < 0 && f.proto.Sync(f.buf) == 0 {
				return nil, StatusIncomplete
			}
			f.skip(1)
			continue
		}
		if !f.proto.IsFrameComplete(f.buf) {
			return nil, StatusIncomplete
		}

		n := f.proto.FrameLen(f.buf)
		payload, err := f.proto.UnpackFrame(f.buf[:n])
		if err != nil {
			f.skip(1)
			return nil, StatusCorrupt
		}
		f.buf = f.buf[n:]
		return payload, StatusFrameDone
	}
}

func (f *Framer) skip(n int) {
	f.discarded += n
	f.buf = f.buf[n:]
}
