package queue

import (
	"os"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"
)

// NormalPriority is the priority attached to every enqueued message by
// transports that carry one.
const NormalPriority = 50

// Config holds the settings common to every transport.
type Config struct {
	// Name identifies the endpoint, e.g. "motion". Transports derive their
	// upstream and downstream channel names from it.
	Name string `yaml:"name"`
	// OpenOnCreate opens the transport in the constructor. When false the
	// caller opens it explicitly with Open.
	OpenOnCreate bool `yaml:"open_on_create"`
	// Capacity bounds the downstream backlog held in memory.
	Capacity int `yaml:"capacity"`
	// Blocking selects the policy of Send on a full transport: wait for room
	// when true, fail with errs.ErrResourceExhausted when false.
	Blocking bool `yaml:"blocking"`
	// PollInterval is how often blocked calls re-check their context.
	PollInterval time.Duration `yaml:"poll_interval"`
}

// Env constants for overriding queue settings.
const (
	QueueCapacity     = "QUEUE_CAPACITY"
	QueueBlocking     = "QUEUE_BLOCKING"
	QueuePollInterval = "QUEUE_POLL_INTERVAL"
)

// Default values.
const (
	DefaultCapacity     = 64
	DefaultPollInterval = 50 * time.Millisecond
)

// NewDefaultConfig returns a config for name with sensible defaults. The
// transport is opened on creation and Send blocks on a full transport.
func NewDefaultConfig(name string) Config {
	return Config{
		Name:         name,
		OpenOnCreate: true,
		Capacity:     DefaultCapacity,
		Blocking:     true,
		PollInterval: DefaultPollInterval,
	}
}

// LoadConfigWithEnv returns NewDefaultConfig(name) with environment overrides
// applied.
func LoadConfigWithEnv(name string) Config {
	cfg := NewDefaultConfig(name)
	if c := os.Getenv(QueueCapacity); c != "" {
		if val, err := strconv.Atoi(c); err == nil && val > 0 {
			cfg.Capacity = val
		} else {
			log.Printf("queue: invalid %s %q, using default", QueueCapacity, c)
		}
	}
	if b := os.Getenv(QueueBlocking); b != "" {
		if val, err := strconv.ParseBool(b); err == nil {
			cfg.Blocking = val
		}
	}
	if p := os.Getenv(QueuePollInterval); p != "" {
		if val, err := time.ParseDuration(p); err == nil && val > 0 {
			cfg.PollInterval = val
		}
	}
	return cfg
}

// WithDefaults fills zero fields with defaults.
func (c Config) WithDefaults() Config {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	return c
}
