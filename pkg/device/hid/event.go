package hid

import (
	"fmt"
	"os"

	"github.com/holoplot/go-evdev"
)

// EventSource is the event stream of an opened input node.
// *evdev.InputDevice implements it.
type EventSource interface {
	ReadOne() (*evdev.InputEvent, error)
	Path() string
	Close() error
}

// Lister enumerates the input nodes with their kernel names.
type Lister func() ([]evdev.InputPath, error)

// Opener opens an input node for reading.
type Opener func(path string) (EventSource, error)

func openDevice(path string) (EventSource, error) {
	d, err := evdev.OpenWithFlags(path, os.O_RDONLY)
	if err != nil {
		return nil, err
	}
	return d, nil
}

// describe renders an event the way evtest does, with the local key names.
func describe(ev *evdev.InputEvent) string {
	t, c := uint16(ev.Type), uint16(ev.Code)
	return fmt.Sprintf("type %d (%s), code %d (%s), value %d", t, EventName(t), c, CodeName(t, c), ev.Value)
}
