package streamqueue

import (
	"io"

	"go.bug.st/serial"
)

// SetPortOpener replaces the serial port opener until the returned restore
// function runs.
func SetPortOpener(open func(path string, mode *serial.Mode) (io.ReadWriteCloser, error)) (restore func()) {
	prev := openPort
	openPort = open
	return func() { openPort = prev }
}
