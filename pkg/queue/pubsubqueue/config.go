package pubsubqueue

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"google.golang.org/api/option"
)

// Config holds the settings of a Pub/Sub backed queue.
type Config struct {
	queue.Config `yaml:",inline"`

	ProjectID       string `yaml:"project_id"`
	CredentialsFile string `yaml:"credentials_file"` // Optional
	// Peer swaps the directions, giving the endpoint that talks to a service
	// of the same name.
	Peer bool `yaml:"peer"`
	// CreateResources creates missing topics and the subscription on Open.
	CreateResources bool `yaml:"create_resources"`
	// NumGoroutines is the number of goroutines the client uses to pull.
	NumGoroutines int `yaml:"num_goroutines"`
	// ExistsTimeout bounds each existence check made by Open.
	ExistsTimeout time.Duration `yaml:"exists_timeout"`
	// StopTimeout bounds how long Close waits for the receive goroutine.
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// Env constants for overriding Pub/Sub settings.
const (
	PubsubProjectID       = "PUBSUB_PROJECT_ID"
	PubsubCredentialsFile = "PUBSUB_CREDENTIALS_FILE"
	PubsubCreateResources = "PUBSUB_CREATE_RESOURCES"
)

// LoadConfigWithEnv provides a config for name with sensible defaults,
// allowing overrides from the environment.
func LoadConfigWithEnv(name string) *Config {
	cfg := &Config{
		Config:        queue.LoadConfigWithEnv(name),
		NumGoroutines: 1,
		ExistsTimeout: 15 * time.Second,
		StopTimeout:   30 * time.Second,
	}
	cfg.ProjectID = os.Getenv(PubsubProjectID)
	cfg.CredentialsFile = os.Getenv(PubsubCredentialsFile)
	if cr := os.Getenv(PubsubCreateResources); cr != "" {
		if val, err := strconv.ParseBool(cr); err == nil {
			cfg.CreateResources = val
		}
	}
	return cfg
}

// Names returns the topic this endpoint publishes to, the topic it consumes
// from and the subscription it pulls with.
func (c *Config) Names() (upTopic, downTopic, downSub string) {
	up, down := c.Name+"-up", c.Name+"-down"
	if c.Peer {
		up, down = down, up
	}
	return up, down, down + "-sub"
}

// NewClient creates a Pub/Sub client for cfg. Extra options, such as a gRPC
// connection to an emulator, are appended.
func NewClient(ctx context.Context, cfg *Config, opts ...option.ClientOption) (*pubsub.Client, error) {
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := pubsub.NewClient(ctx, cfg.ProjectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create pubsub client for project %s: %v: %w", cfg.ProjectID, err, errs.ErrUnavailable)
	}
	return client, nil
}
