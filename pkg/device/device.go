// Package device defines the boundary between services and the hardware they
// wrap: a keyed value store with a reconfigure/deconfigure lifecycle and an
// asynchronous "updated" notification.
package device

import "context"

// Config is the key/value configuration handed to ReConfig.
type Config map[string]string

// Device is a configurable source or sink of keyed values.
type Device interface {
	// ReConfig applies cfg, releasing whatever the previous configuration
	// held first.
	ReConfig(cfg Config) error
	// DeConfig releases the device. It is safe to call on an unconfigured
	// device.
	DeConfig() error

	Set(key string, value int32) error
	SetData(key string, value []byte) error
	Get(key string) (int32, error)
	GetData(key string) ([]byte, error)

	// WaitUpdated blocks until the device reports new values or ctx ends.
	WaitUpdated(ctx context.Context) error
}
