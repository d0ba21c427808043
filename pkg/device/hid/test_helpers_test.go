package hid_test

import (
	"io"
	"io/fs"
	"os"
	"sync"

	"github.com/holoplot/go-evdev"
	"github.com/illmade-knight/go-rservice/pkg/device/hid"
)

// fakeInput stands in for /dev/input. Each node replays its events, then
// reports end of stream.
type fakeInput struct {
	mu      sync.Mutex
	devices []evdev.InputPath
	events  map[string][]*evdev.InputEvent
	denied  map[string]bool
}

func newFakeInput() *fakeInput {
	return &fakeInput{
		events: make(map[string][]*evdev.InputEvent),
		denied: make(map[string]bool),
	}
}

func (f *fakeInput) addDevice(path, name string, events ...*evdev.InputEvent) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.devices = append(f.devices, evdev.InputPath{Name: name, Path: path})
	f.events[path] = events
	return path
}

func (f *fakeInput) list() ([]evdev.InputPath, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]evdev.InputPath(nil), f.devices...), nil
}

func (f *fakeInput) open(path string) (hid.EventSource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.denied[path] {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrPermission}
	}
	events, ok := f.events[path]
	if !ok {
		return nil, &fs.PathError{Op: "open", Path: path, Err: fs.ErrNotExist}
	}
	src := &fakeSource{path: path, events: make(chan *evdev.InputEvent, len(events)), closed: make(chan struct{})}
	for _, ev := range events {
		src.events <- ev
	}
	close(src.events)
	return src, nil
}

// attach makes dev read from f.
func (f *fakeInput) attach(dev *hid.Device) *hid.Device {
	dev.UseBackend(f.list, f.open)
	return dev
}

type fakeSource struct {
	path   string
	events chan *evdev.InputEvent
	closed chan struct{}
	once   sync.Once
}

func (s *fakeSource) ReadOne() (*evdev.InputEvent, error) {
	select {
	case <-s.closed:
		return nil, os.ErrClosed
	default:
	}
	ev, ok := <-s.events
	if !ok {
		return nil, io.EOF
	}
	return ev, nil
}

func (s *fakeSource) Path() string { return s.path }

func (s *fakeSource) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

func key(code uint16, value int32) *evdev.InputEvent {
	return &evdev.InputEvent{Type: evdev.EV_KEY, Code: evdev.EvCode(code), Value: value}
}

func abs(code uint16, value int32) *evdev.InputEvent {
	return &evdev.InputEvent{Type: evdev.EV_ABS, Code: evdev.EvCode(code), Value: value}
}

func report() *evdev.InputEvent {
	return &evdev.InputEvent{Type: evdev.EV_SYN, Code: evdev.SYN_REPORT}
}
