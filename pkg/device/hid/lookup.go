package hid

import (
	"fmt"
	"path/filepath"

	"github.com/holoplot/go-evdev"
	"github.com/illmade-knight/go-rservice/pkg/errs"
)

const eventPrefix = "event"

// FindDevice returns the event node of the input device named name.
func FindDevice(name string) (string, error) {
	return findDevice(evdev.ListDevicePaths, name)
}

// ListDevices returns the kernel names of all readable input nodes, keyed
// by node path.
func ListDevices() (map[string]string, error) {
	paths, err := evdev.ListDevicePaths()
	if err != nil {
		return nil, fmt.Errorf("list input devices: %v: %w", err, errs.ErrUnavailable)
	}
	devices := make(map[string]string, len(paths))
	for _, p := range paths {
		devices[p.Path] = p.Name
	}
	return devices, nil
}

func findDevice(list Lister, name string) (string, error) {
	paths, err := list()
	if err != nil {
		return "", fmt.Errorf("list input devices: %v: %w", err, errs.ErrUnavailable)
	}
	return pickDevice(paths, name)
}

// pickDevice chooses among the nodes named name. Several interfaces of one
// device share a name; the lowest event number wins.
func pickDevice(paths []evdev.InputPath, name string) (string, error) {
	best, bestIndex := "", -1
	for _, p := range paths {
		if p.Name != name {
			continue
		}
		idx := eventIndex(p.Path)
		if bestIndex < 0 || idx < bestIndex {
			best, bestIndex = p.Path, idx
		}
	}
	if best == "" {
		return "", fmt.Errorf("no input device named %q: %w", name, errs.ErrNotFound)
	}
	return best, nil
}

func eventIndex(path string) int {
	var n int
	if _, err := fmt.Sscanf(filepath.Base(path), eventPrefix+"%d", &n); err != nil {
		return int(^uint(0) >> 1)
	}
	return n
}
