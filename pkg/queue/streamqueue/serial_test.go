package streamqueue_test

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/illmade-knight/go-rservice/pkg/queue/streamqueue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestSerialConfig_Mode(t *testing.T) {
	testCases := []struct {
		name    string
		cfg     streamqueue.SerialConfig
		want    *serial.Mode
		wantErr bool
	}{
		{
			name: "Defaults",
			want: &serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.NoParity, StopBits: serial.OneStopBit},
		},
		{
			name: "SevenEvenTwo",
			cfg:  streamqueue.SerialConfig{BaudRate: 9600, DataBits: 7, Parity: "even", StopBits: "2"},
			want: &serial.Mode{BaudRate: 9600, DataBits: 7, Parity: serial.EvenParity, StopBits: serial.TwoStopBits},
		},
		{
			name: "ShortParityNames",
			cfg:  streamqueue.SerialConfig{Parity: "O", StopBits: "1.5"},
			want: &serial.Mode{BaudRate: 115200, DataBits: 8, Parity: serial.OddParity, StopBits: serial.OnePointFiveStopBits},
		},
		{name: "BadParity", cfg: streamqueue.SerialConfig{Parity: "sometimes"}, wantErr: true},
		{name: "BadStopBits", cfg: streamqueue.SerialConfig{StopBits: "3"}, wantErr: true},
		{name: "BadDataBits", cfg: streamqueue.SerialConfig{DataBits: 9}, wantErr: true},
		{name: "NegativeBaud", cfg: streamqueue.SerialConfig{BaudRate: -1}, wantErr: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			// Act
			mode, err := tc.cfg.Mode()

			// Assert
			if tc.wantErr {
				assert.ErrorIs(t, err, errs.ErrInvalidArgument)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, mode)
		})
	}
}

func TestOpenSerial_UsesLineSettings(t *testing.T) {
	// Arrange
	local, remote := net.Pipe()
	defer remote.Close()
	var gotPath string
	var gotMode *serial.Mode
	restore := streamqueue.SetPortOpener(func(path string, mode *serial.Mode) (io.ReadWriteCloser, error) {
		gotPath, gotMode = path, mode
		return local, nil
	})
	defer restore()

	// Act
	q, err := streamqueue.OpenSerial("/dev/ttyTEST0", streamqueue.SerialConfig{BaudRate: 57600, Parity: "odd"},
		queue.NewDefaultConfig("serial"), nil, zerolog.Nop())
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	frame := frameOf(t, 5)
	go func() { _, _ = remote.Write(frame) }()
	msg, err := q.Receive(ctx)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, int32(5), msg.ID())
	assert.Equal(t, "/dev/ttyTEST0", gotPath)
	assert.Equal(t, 57600, gotMode.BaudRate)
	assert.Equal(t, serial.OddParity, gotMode.Parity)
}

func TestOpenSerial_Errors(t *testing.T) {
	t.Run("BadSettingsNeverOpen", func(t *testing.T) {
		opened := false
		restore := streamqueue.SetPortOpener(func(string, *serial.Mode) (io.ReadWriteCloser, error) {
			opened = true
			return nil, io.ErrUnexpectedEOF
		})
		defer restore()

		_, err := streamqueue.OpenSerial("/dev/ttyTEST0", streamqueue.SerialConfig{Parity: "x"},
			queue.NewDefaultConfig("serial"), nil, zerolog.Nop())

		assert.ErrorIs(t, err, errs.ErrInvalidArgument)
		assert.False(t, opened)
	})

	t.Run("MissingPort", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "ttyMISSING")

		_, err := streamqueue.OpenSerial(path, streamqueue.SerialConfig{}, queue.NewDefaultConfig("serial"), nil, zerolog.Nop())

		assert.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("NotASerialPort", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "plain")
		require.NoError(t, os.WriteFile(path, nil, 0o600))

		_, err := streamqueue.OpenSerial(path, streamqueue.SerialConfig{}, queue.NewDefaultConfig("serial"), nil, zerolog.Nop())

		assert.ErrorIs(t, err, errs.ErrUnavailable)
	})
}
