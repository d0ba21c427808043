package streamqueue

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/protocol"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/rs/zerolog"
	"go.bug.st/serial"
)

// SerialConfig holds the line settings of a serial port. Zero values select
// 115200 baud, 8 data bits, no parity and one stop bit.
type SerialConfig struct {
	BaudRate int `yaml:"baud_rate"`
	DataBits int `yaml:"data_bits"`
	// Parity is one of none, odd, even, mark or space.
	Parity string `yaml:"parity"`
	// StopBits is one of 1, 1.5 or 2.
	StopBits string `yaml:"stop_bits"`
}

// Mode converts the settings to a serial.Mode.
func (c SerialConfig) Mode() (*serial.Mode, error) {
	mode := &serial.Mode{BaudRate: c.BaudRate, DataBits: c.DataBits}
	if mode.BaudRate == 0 {
		mode.BaudRate = 115200
	}
	if mode.BaudRate < 0 {
		return nil, fmt.Errorf("invalid baud rate %d: %w", c.BaudRate, errs.ErrInvalidArgument)
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}
	if mode.DataBits < 5 || mode.DataBits > 8 {
		return nil, fmt.Errorf("invalid data bits %d: %w", c.DataBits, errs.ErrInvalidArgument)
	}

	switch strings.ToLower(c.Parity) {
	case "", "none", "n":
		mode.Parity = serial.NoParity
	case "odd", "o":
		mode.Parity = serial.OddParity
	case "even", "e":
		mode.Parity = serial.EvenParity
	case "mark", "m":
		mode.Parity = serial.MarkParity
	case "space", "s":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("invalid parity %q: %w", c.Parity, errs.ErrInvalidArgument)
	}

	switch c.StopBits {
	case "", "1":
		mode.StopBits = serial.OneStopBit
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("invalid stop bits %q: %w", c.StopBits, errs.ErrInvalidArgument)
	}
	return mode, nil
}

var openPort = func(path string, mode *serial.Mode) (io.ReadWriteCloser, error) {
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return port, nil
}

// OpenSerial opens the serial port at path with the line settings of sc
// and wraps it.
func OpenSerial(path string, sc SerialConfig, cfg queue.Config, proto protocol.StreamProtocol, logger zerolog.Logger) (*Queue, error) {
	mode, err := sc.Mode()
	if err != nil {
		return nil, err
	}
	port, err := openPort(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open serial port %s: %v: %w", path, err, portErrorKind(err))
	}
	q, err := New(port, cfg, proto, logger)
	if err != nil {
		_ = port.Close()
		return nil, err
	}
	q.logger.Info().Str("port", path).Int("baud", mode.BaudRate).Msg("Serial port opened.")
	return q, nil
}

func portErrorKind(err error) error {
	var perr *serial.PortError
	if errors.As(err, &perr) {
		switch perr.Code() {
		case serial.PortNotFound:
			return errs.ErrNotFound
		case serial.PermissionDenied:
			return errs.ErrPermissionDenied
		case serial.InvalidSpeed, serial.InvalidDataBits, serial.InvalidParity, serial.InvalidStopBits:
			return errs.ErrInvalidArgument
		}
		return errs.ErrUnavailable
	}
	switch {
	case errors.Is(err, os.ErrNotExist):
		return errs.ErrNotFound
	case errors.Is(err, os.ErrPermission):
		return errs.ErrPermissionDenied
	}
	return errs.ErrUnavailable
}

// portClosed reports a read interrupted by closing the port.
func portClosed(err error) bool {
	var perr *serial.PortError
	return errors.As(err, &perr) && perr.Code() == serial.PortClosed
}
