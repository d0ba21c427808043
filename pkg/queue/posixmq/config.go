package posixmq

import (
	"os"
	"strconv"

	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/rs/zerolog/log"
)

// Config holds the settings of a POSIX message queue pair.
type Config struct {
	queue.Config `yaml:",inline"`

	// MaxMessages and MessageSize size the kernel queues when they are
	// created. An existing queue keeps its own attributes. Unprivileged
	// processes are limited by /proc/sys/fs/mqueue/msg_max and msgsize_max.
	MaxMessages int `yaml:"max_messages"`
	MessageSize int `yaml:"message_size"`
	// Perm is the permission of created queues.
	Perm uint32 `yaml:"perm"`
	// Peer swaps the queues, giving the endpoint that talks to a service of
	// the same name.
	Peer bool `yaml:"peer"`
	// UnlinkOnClose removes both queues from the system on Close.
	UnlinkOnClose bool `yaml:"unlink_on_close"`
}

// Env constants for overriding POSIX queue settings.
const (
	PosixMQMaxMessages = "POSIXMQ_MAX_MESSAGES"
	PosixMQMessageSize = "POSIXMQ_MESSAGE_SIZE"
)

// Default values matching the stock Linux limits.
const (
	DefaultMaxMessages = 10
	DefaultMessageSize = 8192
	DefaultPerm        = 0o660
)

// LoadConfigWithEnv returns the default configuration for name with
// environment overrides applied.
func LoadConfigWithEnv(name string) *Config {
	cfg := &Config{
		Config:      queue.LoadConfigWithEnv(name),
		MaxMessages: DefaultMaxMessages,
		MessageSize: DefaultMessageSize,
		Perm:        DefaultPerm,
	}
	if v := os.Getenv(PosixMQMaxMessages); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MaxMessages = n
		} else {
			log.Printf("posixmq: invalid %s %q, using default", PosixMQMaxMessages, v)
		}
	}
	if v := os.Getenv(PosixMQMessageSize); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.MessageSize = n
		} else {
			log.Printf("posixmq: invalid %s %q, using default", PosixMQMessageSize, v)
		}
	}
	return cfg
}

// Names returns the queue this endpoint sends to and the one it receives
// from: "/<name>-up" and "/<name>-down" for the service side.
func (c *Config) Names() (up, down string) {
	up = "/" + c.Name + "-up"
	down = "/" + c.Name + "-down"
	if c.Peer {
		return down, up
	}
	return up, down
}

func (c Config) withDefaults() Config {
	c.Config = c.Config.WithDefaults()
	if c.MaxMessages <= 0 {
		c.MaxMessages = DefaultMaxMessages
	}
	if c.MessageSize <= 0 {
		c.MessageSize = DefaultMessageSize
	}
	if c.Perm == 0 {
		c.Perm = DefaultPerm
	}
	return c
}
