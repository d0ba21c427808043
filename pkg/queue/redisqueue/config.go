package redisqueue

import (
	"os"
	"strconv"

	"github.com/illmade-knight/go-rservice/pkg/queue"
)

// Config holds the settings of a Redis backed queue.
type Config struct {
	queue.Config `yaml:",inline"`

	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	// KeyPrefix namespaces the list keys, e.g. "rservice:".
	KeyPrefix string `yaml:"key_prefix"`
	// MaxBacklog caps the length of the upstream list. Zero means unbounded.
	MaxBacklog int `yaml:"max_backlog"`
	// Peer swaps the upstream and downstream lists, giving the endpoint that
	// talks to a service of the same name.
	Peer bool `yaml:"peer"`
	// ConnectRetries bounds the ping attempts made by Open.
	ConnectRetries int `yaml:"connect_retries"`
}

// Env constants for overriding Redis settings.
const (
	RedisAddr      = "REDIS_ADDR"
	RedisPassword  = "REDIS_PASSWORD"
	RedisDB        = "REDIS_DB"
	RedisKeyPrefix = "REDIS_KEY_PREFIX"
)

// DefaultKeyPrefix is used when no prefix is configured.
const DefaultKeyPrefix = "rservice:"

// LoadConfigWithEnv returns the default configuration for name with
// environment overrides applied.
func LoadConfigWithEnv(name string) *Config {
	cfg := &Config{
		Config:         queue.LoadConfigWithEnv(name),
		Addr:           "localhost:6379",
		KeyPrefix:      DefaultKeyPrefix,
		ConnectRetries: 5,
	}
	if addr := os.Getenv(RedisAddr); addr != "" {
		cfg.Addr = addr
	}
	if pw := os.Getenv(RedisPassword); pw != "" {
		cfg.Password = pw
	}
	if db := os.Getenv(RedisDB); db != "" {
		if val, err := strconv.Atoi(db); err == nil && val >= 0 {
			cfg.DB = val
		}
	}
	if prefix, ok := os.LookupEnv(RedisKeyPrefix); ok {
		cfg.KeyPrefix = prefix
	}
	return cfg
}

// Keys returns the upstream and downstream list keys of this endpoint.
func (c *Config) Keys() (up, down string) {
	up = c.KeyPrefix + c.Name + ":up"
	down = c.KeyPrefix + c.Name + ":down"
	if c.Peer {
		return down, up
	}
	return up, down
}
