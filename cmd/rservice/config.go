package main

import (
	"fmt"
	"os"
	"time"

	"github.com/illmade-knight/go-rservice/pkg/device/hid"
	"github.com/illmade-knight/go-rservice/pkg/microservice"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/illmade-knight/go-rservice/pkg/queue/mqttqueue"
	"github.com/illmade-knight/go-rservice/pkg/queue/natsqueue"
	"github.com/illmade-knight/go-rservice/pkg/queue/posixmq"
	"github.com/illmade-knight/go-rservice/pkg/queue/pubsubqueue"
	"github.com/illmade-knight/go-rservice/pkg/queue/redisqueue"
	"github.com/illmade-knight/go-rservice/pkg/queue/streamqueue"
	"github.com/illmade-knight/go-rservice/pkg/worker"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Globals are the flags shared by every command.
type Globals struct {
	Config   string `help:"YAML configuration file." type:"existingfile" short:"c"`
	LogLevel string `help:"Log level (trace, debug, info, warn, error)." env:"LOG_LEVEL"`
	HTTPPort string `help:"Diagnostics listen address, e.g. :8080." env:"HTTP_PORT"`
}

// SerialConfig selects the stream behind the serial transport.
type SerialConfig struct {
	// Device is a serial device path such as /dev/ttyUSB0.
	Device string `yaml:"device"`
	// Address is a tcp host:port used instead of Device, e.g. a ser2net bridge.
	Address string `yaml:"address"`
	// MaxPayload bounds the frame payload; zero selects the protocol default.
	MaxPayload int `yaml:"max_payload"`
	// Line settings of Device: baud_rate, data_bits, parity and stop_bits.
	streamqueue.SerialConfig `yaml:",inline"`
}

// FileConfig is the full configuration of one rservice process. Every
// section is pre-filled from the environment before the file is applied.
type FileConfig struct {
	microservice.BaseConfig `yaml:",inline"`

	Queue   queue.Config       `yaml:"queue"`
	Worker  worker.Config      `yaml:"worker"`
	Serial  SerialConfig       `yaml:"serial"`
	Redis   redisqueue.Config  `yaml:"redis"`
	NATS    natsqueue.Config   `yaml:"nats"`
	MQTT    mqttqueue.Config   `yaml:"mqtt"`
	Pubsub  pubsubqueue.Config `yaml:"pubsub"`
	PosixMQ posixmq.Config     `yaml:"posixmq"`
	HID     hid.Config         `yaml:"hid"`
}

// defaultFileConfig returns the configuration for the service name with
// environment overrides applied.
func defaultFileConfig(name string) *FileConfig {
	return &FileConfig{
		BaseConfig: microservice.BaseConfig{
			LogLevel:        "info",
			HTTPPort:        ":8080",
			ServiceName:     name,
			ShutdownTimeout: 10 * time.Second,
		},
		Queue:   queue.LoadConfigWithEnv(name),
		Worker:  worker.NewDefaultConfig(name),
		Redis:   *redisqueue.LoadConfigWithEnv(name),
		NATS:    *natsqueue.LoadConfigWithEnv(name),
		MQTT:    *mqttqueue.LoadConfigWithEnv(name),
		Pubsub:  *pubsubqueue.LoadConfigWithEnv(name),
		PosixMQ: *posixmq.LoadConfigWithEnv(name),
		HID:     hid.LoadConfigWithEnv(),
	}
}

// load builds the configuration of service name: defaults, then the file,
// then the command line flags.
func (g *Globals) load(name string) (*FileConfig, error) {
	cfg := defaultFileConfig(name)
	if g.Config != "" {
		raw, err := os.ReadFile(g.Config)
		if err != nil {
			return nil, fmt.Errorf("read config %s: %w", g.Config, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", g.Config, err)
		}
	}
	if g.LogLevel != "" {
		cfg.LogLevel = g.LogLevel
	}
	if g.HTTPPort != "" {
		cfg.HTTPPort = g.HTTPPort
	}
	// The endpoint name is the service name whatever the file says.
	cfg.ServiceName = name
	cfg.Queue.Name = name
	cfg.Redis.Name = name
	cfg.NATS.Name = name
	cfg.MQTT.Name = name
	cfg.Pubsub.Name = name
	cfg.PosixMQ.Name = name
	if cfg.Worker.Name == "" {
		cfg.Worker.Name = name
	}
	return cfg, nil
}

func newLogger(cfg *FileConfig) zerolog.Logger {
	return zerolog.New(os.Stderr).Level(cfg.Level()).With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Logger()
}
