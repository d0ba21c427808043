package natsqueue

import (
	"os"
	"time"

	"github.com/illmade-knight/go-rservice/pkg/queue"
)

// Config holds the settings of a NATS backed queue.
type Config struct {
	queue.Config `yaml:",inline"`

	// URL of the NATS server in the format nats://host:port.
	URL string `yaml:"url"`
	// SubjectPrefix namespaces the subjects, e.g. "rservice.".
	SubjectPrefix string `yaml:"subject_prefix"`
	// Peer swaps the subjects, giving the endpoint that talks to a service of
	// the same name.
	Peer bool `yaml:"peer"`
	// ConnectRetries bounds the connection attempts made by Open.
	ConnectRetries int           `yaml:"connect_retries"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait"`
}

// Env constants for overriding NATS settings.
const (
	NatsURL           = "NATS_URL"
	NatsSubjectPrefix = "NATS_SUBJECT_PREFIX"
)

// LoadConfigWithEnv returns the default configuration for name with
// environment overrides applied.
func LoadConfigWithEnv(name string) *Config {
	cfg := &Config{
		Config:         queue.LoadConfigWithEnv(name),
		URL:            "nats://127.0.0.1:4222",
		ConnectRetries: 5,
		ReconnectWait:  2 * time.Second,
	}
	if url := os.Getenv(NatsURL); url != "" {
		cfg.URL = url
	}
	if prefix, ok := os.LookupEnv(NatsSubjectPrefix); ok {
		cfg.SubjectPrefix = prefix
	}
	return cfg
}

// Subjects returns the subject this endpoint publishes on and the one it
// subscribes to.
func (c *Config) Subjects() (up, down string) {
	up = c.SubjectPrefix + c.Name + ".up"
	down = c.SubjectPrefix + c.Name + ".down"
	if c.Peer {
		return down, up
	}
	return up, down
}
