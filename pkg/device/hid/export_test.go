package hid

import "github.com/holoplot/go-evdev"

// UseBackend replaces how d lists and opens input nodes.
func (d *Device) UseBackend(list Lister, open Opener) {
	d.list = list
	d.open = open
}

func PickDevice(paths []evdev.InputPath, name string) (string, error) {
	return pickDevice(paths, name)
}

func Describe(ev *evdev.InputEvent) string { return describe(ev) }
