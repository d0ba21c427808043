package hid_test

import (
	"testing"

	"github.com/holoplot/go-evdev"
	"github.com/illmade-knight/go-rservice/pkg/device/hid"
	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPickDevice(t *testing.T) {
	paths := []evdev.InputPath{
		{Name: "Logitech Gamepad F310", Path: "/dev/input/event11"},
		{Name: "AT Translated Set 2 keyboard", Path: "/dev/input/event2"},
		{Name: "Logitech Gamepad F310", Path: "/dev/input/event3"},
	}

	t.Run("lowest matching node", func(t *testing.T) {
		path, err := hid.PickDevice(paths, "Logitech Gamepad F310")
		require.NoError(t, err)
		assert.Equal(t, "/dev/input/event3", path)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := hid.PickDevice(paths, "Nothing")
		assert.ErrorIs(t, err, errs.ErrNotFound)
	})

	t.Run("non event node", func(t *testing.T) {
		path, err := hid.PickDevice([]evdev.InputPath{
			{Name: "Pad", Path: "/dev/input/js0"},
			{Name: "Pad", Path: "/dev/input/event7"},
		}, "Pad")
		require.NoError(t, err)
		assert.Equal(t, "/dev/input/event7", path)
	})
}

func TestDescribe(t *testing.T) {
	ev := &evdev.InputEvent{Type: evdev.EV_ABS, Code: evdev.ABS_Y, Value: -512}

	assert.Equal(t, "type 3 (Absolute), code 1 (Y), value -512", hid.Describe(ev))
}
