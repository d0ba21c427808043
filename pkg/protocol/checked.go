package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/illmade-knight/go-rservice/pkg/errs"
)

// Checked frame layout:
//
//	[0xAA 0x55][payload_len u32 LE][payload][crc u16 LE]
//
// The crc is CRC-16/CCITT-FALSE over the payload. The two byte sync word lets
// a receiver resynchronize after garbage or a torn frame, and the maximum
// payload length bounds how long a corrupt length field can stall it.
const (
	SyncByte0 = 0xAA
	SyncByte1 = 0x55

	syncLen   = 2
	lengthLen = 4
	headerLen = syncLen + lengthLen
	checkLen  = 2

	// DefaultMaxPayload is the payload limit used when none is configured.
	DefaultMaxPayload = 64 << 10
)

var syncWord = []byte{SyncByte0, SyncByte1}

// Checked is a delimited, length-prefixed and checksummed stream protocol.
type Checked struct {
	maxPayload int
}

var _ StreamProtocol = (*Checked)(nil)

// NewChecked returns a Checked protocol accepting payloads up to maxPayload
// bytes. A non-positive maxPayload selects DefaultMaxPayload.
func NewChecked(maxPayload int) *Checked {
	if maxPayload <= 0 {
		maxPayload = DefaultMaxPayload
	}
	return &Checked{maxPayload: maxPayload}
}

// MaxPayload returns the largest payload a frame may carry.
func (c *Checked) MaxPayload() int { return c.maxPayload }

// PackFrame wraps payload. Payloads above MaxPayload are still packed; the
// receiving side rejects them as invalid.
func (c *Checked) PackFrame(payload []byte) []byte {
	frame := make([]byte, 0, headerLen+len(payload)+checkLen)
	frame = append(frame, syncWord...)
	frame = binary.LittleEndian.AppendUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)
	return append(frame, c.CalcCheckCode(payload)...)
}

func (c *Checked) UnpackFrame(frame []byte) ([]byte, error) {
	if !c.IsFrameValid(frame) {
		return nil, fmt.Errorf("invalid frame header: %w", errs.ErrDataLoss)
	}
	n := c.FrameLen(frame)
	if n < 0 || len(frame) < n {
		return nil, fmt.Errorf("truncated frame, %d bytes: %w", len(frame), errs.ErrDataLoss)
	}
	if len(frame) > n {
		return nil, fmt.Errorf("frame of %d bytes carries %d trailing bytes: %w", n, len(frame)-n, errs.ErrDataLoss)
	}
	payload := frame[headerLen : n-checkLen]
	if !bytes.Equal(c.CalcCheckCode(payload), frame[n-checkLen:n]) {
		return nil, fmt.Errorf("check code mismatch: %w", errs.ErrDataLoss)
	}
	return bytes.Clone(nonNil(payload)), nil
}

func (c *Checked) IsFrameComplete(buf []byte) bool {
	if !c.IsFrameValid(buf) {
		return false
	}
	n := c.FrameLen(buf)
	return n >= 0 && len(buf) >= n
}

// IsFrameValid checks the sync word and, once present, the length field.
// A buffer shorter than the sync word is not valid.
func (c *Checked) IsFrameValid(buf []byte) bool {
	if len(buf) < syncLen || buf[0] != SyncByte0 || buf[1] != SyncByte1 {
		return false
	}
	if len(buf) < headerLen {
		return true
	}
	return uint64(binary.LittleEndian.Uint32(buf[syncLen:])) <= uint64(c.maxPayload)
}

func (c *Checked) CalcCheckCode(payload []byte) []byte {
	return binary.LittleEndian.AppendUint16(make([]byte, 0, checkLen), CRC16(payload))
}

func (c *Checked) Sync(buf []byte) int {
	if i := bytes.Index(buf, syncWord); i >= 0 {
		return i
	}
	if len(buf) > 0 && buf[len(buf)-1] == SyncByte0 {
		return len(buf) - 1
	}
	return len(buf)
}

func (c *Checked) FrameLen(buf []byte) int {
	if len(buf) < headerLen {
		return -1
	}
	return headerLen + int(binary.LittleEndian.Uint32(buf[syncLen:])) + checkLen
}
