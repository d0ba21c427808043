// Package hid reads Linux evdev input devices (keyboards, mice, joysticks)
// and keeps the latest value of every key and axis.
//
// A Device is located by its kernel name and read through go-evdev by a
// worker.Routine. It exposes its state through the device.Device accessors.
// Keys are stored under their key name ("A", "LeftBtn"), axes under
// "Abs"+axis name ("AbsX") and relative motion under "Rel"+name.
package hid

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/holoplot/go-evdev"

	"github.com/illmade-knight/go-rservice/pkg/device"
	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/worker"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Configuration and state keys.
const (
	// KeyHIDName selects the device by its kernel name in ReConfig.
	KeyHIDName = "hid_name"
	// KeyDevicePath selects the device node directly, bypassing the name
	// lookup.
	KeyDevicePath = "device_path"
	// KeyKeyUpdated is set to 1 whenever a key event arrives. Consumers clear
	// it with Set.
	KeyKeyUpdated = "key_updated"
)

// Config holds the settings of a Device.
type Config struct {
	// Name is the kernel name of the device opened when ReConfig names none.
	Name   string        `yaml:"name"`
	Worker worker.Config `yaml:"worker"`
}

// HIDName overrides Config.Name.
const HIDName = "HID_NAME"

// LoadConfigWithEnv returns the default configuration with environment
// overrides applied.
func LoadConfigWithEnv() Config {
	cfg := Config{
		Worker: worker.NewDefaultConfig("hid-receive"),
	}
	if name := os.Getenv(HIDName); name != "" {
		cfg.Name = name
	}
	return cfg
}

// Device is an evdev input device.
type Device struct {
	cfg     Config
	logger  zerolog.Logger
	thread  *worker.Routine
	updated *device.Updated

	list Lister
	open Opener

	srcMu sync.Mutex
	src   EventSource

	mu      sync.Mutex
	values  map[string]int32
	pending bool
}

var _ device.Device = (*Device)(nil)

// NewDevice returns an unconfigured device.
func NewDevice(cfg Config, logger zerolog.Logger) *Device {
	if cfg.Worker.Name == "" {
		cfg.Worker.Name = "hid-receive"
	}
	return &Device{
		cfg:     cfg,
		logger:  logger.With().Str("component", "HIDDevice").Logger(),
		thread:  worker.New(cfg.Worker, logger),
		updated: device.NewUpdated(),
		list:    evdev.ListDevicePaths,
		open:    openDevice,
		values:  make(map[string]int32),
	}
}

// ReConfig opens the node at cfg[KeyDevicePath], or else the device named
// by cfg[KeyHIDName] or Config.Name, and starts reading it.
func (d *Device) ReConfig(cfg device.Config) error {
	if err := d.DeConfig(); err != nil {
		return err
	}
	path := cfg[KeyDevicePath]
	if path == "" {
		name := cfg[KeyHIDName]
		if name == "" {
			name = d.cfg.Name
		}
		if name == "" {
			return fmt.Errorf("hid config needs %q or %q: %w", KeyHIDName, KeyDevicePath, errs.ErrInvalidArgument)
		}
		var err error
		if path, err = findDevice(d.list, name); err != nil {
			return err
		}
	}

	src, err := d.open(path)
	if err != nil {
		switch {
		case errors.Is(err, os.ErrPermission):
			return fmt.Errorf("open %s: %v: %w", path, err, errs.ErrPermissionDenied)
		case errors.Is(err, os.ErrNotExist):
			return fmt.Errorf("open %s: %v: %w", path, err, errs.ErrNotFound)
		}
		return fmt.Errorf("open %s: %v: %w", path, err, errs.ErrUnavailable)
	}

	d.mu.Lock()
	d.values = make(map[string]int32)
	d.pending = false
	d.mu.Unlock()
	d.updated.Reset()

	d.srcMu.Lock()
	d.src = src
	d.srcMu.Unlock()

	d.thread.SetWork(func(ctx context.Context) error { return d.receiveWork(ctx, src) })
	if err := d.thread.Start(false); err != nil {
		_ = d.DeConfig()
		return fmt.Errorf("start hid receive worker: %w", err)
	}
	d.logger.Info().Str("path", path).Msg("HID device configured.")
	return nil
}

// DeConfig closes the device node and stops the receive worker.
func (d *Device) DeConfig() error {
	d.srcMu.Lock()
	src := d.src
	d.src = nil
	d.srcMu.Unlock()
	if src == nil {
		return nil
	}
	// Closing the node unblocks the pending read.
	err := src.Close()
	err = multierr.Append(err, d.thread.Stop())
	d.logger.Info().Msg("HID device released.")
	return err
}

// Path returns the node currently read, or "".
func (d *Device) Path() string {
	d.srcMu.Lock()
	defer d.srcMu.Unlock()
	if d.src == nil {
		return ""
	}
	return d.src.Path()
}

// Set overwrites a state value, typically to clear KeyKeyUpdated.
func (d *Device) Set(key string, value int32) error {
	if key == "" {
		return fmt.Errorf("empty key: %w", errs.ErrInvalidArgument)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.values[key] = value
	return nil
}

// SetData is not supported by input devices.
func (d *Device) SetData(key string, _ []byte) error {
	return fmt.Errorf("hid device has no data value %q: %w", key, errs.ErrInvalidArgument)
}

// Get returns the latest value of key.
func (d *Device) Get(key string) (int32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	v, ok := d.values[key]
	if !ok {
		return 0, fmt.Errorf("hid value %q: %w", key, errs.ErrNotFound)
	}
	return v, nil
}

// GetData is not supported by input devices.
func (d *Device) GetData(key string) ([]byte, error) {
	return nil, fmt.Errorf("hid device has no data value %q: %w", key, errs.ErrInvalidArgument)
}

// Snapshot returns a copy of all current values.
func (d *Device) Snapshot() map[string]int32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int32, len(d.values))
	for k, v := range d.values {
		out[k] = v
	}
	return out
}

// WaitUpdated blocks until a report with changed values completes.
func (d *Device) WaitUpdated(ctx context.Context) error {
	return d.updated.Wait(ctx)
}

// receiveWork reads and applies one event.
func (d *Device) receiveWork(ctx context.Context, src EventSource) error {
	ev, err := src.ReadOne()
	if err != nil {
		switch {
		case ctx.Err() != nil, errors.Is(err, os.ErrClosed):
			return worker.ErrDone
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			d.logger.Warn().Err(err).Msg("HID event stream ended.")
			return worker.ErrDone
		default:
			return fmt.Errorf("read hid event: %w", err)
		}
	}
	d.apply(ev)
	return nil
}

func (d *Device) apply(ev *evdev.InputEvent) {
	if e := d.logger.Trace(); e.Enabled() {
		e.Str("event", describe(ev)).Msg("HID event")
	}
	t, code := uint16(ev.Type), uint16(ev.Code)
	d.mu.Lock()
	defer d.mu.Unlock()
	switch t {
	case EvKey:
		name := FindKeyName(code)
		if name == "" {
			name = CodeName(t, code)
		}
		d.values[name] = ev.Value
		d.values[KeyKeyUpdated] = 1
		d.pending = true
	case EvAbs:
		d.values["Abs"+CodeName(t, code)] = ev.Value
		d.pending = true
	case EvRel:
		d.values["Rel"+CodeName(t, code)] = ev.Value
		d.pending = true
	case EvSyn:
		switch code {
		case SynReport:
			if d.pending {
				d.pending = false
				d.updated.Signal()
			}
		case SynDropped:
			d.logger.Warn().Msg("Kernel dropped HID events, state may be stale until the next report.")
		}
	}
}
