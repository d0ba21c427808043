package mqttqueue

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/rs/zerolog/log"
)

// Config holds the queue settings and everything the Paho client needs to
// reach the broker.
type Config struct {
	queue.Config `yaml:",inline"`

	// BrokerURL is the full URL of the MQTT broker to connect to.
	// Example: "tls://mqtt.example.com:8883"
	BrokerURL string `yaml:"broker_url"`
	// ClientIDPrefix is a prefix for the MQTT client ID. A unique suffix is
	// added because brokers drop an older session using the same ID.
	ClientIDPrefix string `yaml:"client_id_prefix"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	// QoS used for both publishing and subscribing.
	QoS byte `yaml:"qos"`
	// Peer swaps the topics, giving the endpoint that talks to a service of
	// the same name.
	Peer bool `yaml:"peer"`

	KeepAlive        time.Duration `yaml:"keep_alive"`
	ConnectTimeout   time.Duration `yaml:"connect_timeout"`
	ReconnectWaitMax time.Duration `yaml:"reconnect_wait_max"`

	// CACertFile is an optional path to a CA certificate file for verifying the broker's certificate.
	CACertFile string `yaml:"ca_cert_file"`
	// ClientCertFile and ClientKeyFile enable mTLS when both are set.
	ClientCertFile string `yaml:"client_cert_file"`
	ClientKeyFile  string `yaml:"client_key_file"`
	// InsecureSkipVerify skips TLS certificate verification.
	// This is NOT recommended for production environments.
	InsecureSkipVerify bool `yaml:"insecure_skip_verify"`
}

// Env constants for setting Mqtt settings
const (
	MqttBrokerURL             = "MQTT_BROKER_URL"
	MqttUsername              = "MQTT_USERNAME"
	MqttPassword              = "MQTT_PASSWORD"
	MqttSkipVerify            = "MQTT_INSECURE_SKIP_VERIFY"
	MqttKeepAliveSeconds      = "MQTT_KEEP_ALIVE_SECONDS"
	MqttConnectTimeoutSeconds = "MQTT_CONNECT_TIMEOUT_SECONDS"
)

// LoadConfigWithEnv loads the configuration for the endpoint name, filling
// timeouts and keep-alive intervals with sensible defaults when the
// environment does not set them.
func LoadConfigWithEnv(name string) *Config {
	cfg := &Config{
		Config:           queue.LoadConfigWithEnv(name),
		BrokerURL:        "tcp://localhost:1883",
		ClientIDPrefix:   "rservice-",
		QoS:              1,
		KeepAlive:        60 * time.Second,
		ConnectTimeout:   10 * time.Second,
		ReconnectWaitMax: 120 * time.Second,
	}
	if url := os.Getenv(MqttBrokerURL); url != "" {
		cfg.BrokerURL = url
	}
	cfg.Username = os.Getenv(MqttUsername)
	cfg.Password = os.Getenv(MqttPassword)
	if skipVerify := os.Getenv(MqttSkipVerify); skipVerify == "true" {
		cfg.InsecureSkipVerify = true
	}
	if ka := os.Getenv(MqttKeepAliveSeconds); ka != "" {
		s, err := time.ParseDuration(ka + "s")
		if err == nil {
			cfg.KeepAlive = s
		} else {
			log.Printf("mqttqueue: error parsing keepAlive seconds: %s, using default", err)
		}
	}
	if ct := os.Getenv(MqttConnectTimeoutSeconds); ct != "" {
		s, err := time.ParseDuration(ct + "s")
		if err == nil {
			cfg.ConnectTimeout = s
		} else {
			log.Printf("mqttqueue: error parsing connect timeout seconds: %s, using default", err)
		}
	}
	return cfg
}

// Topics returns the topic this endpoint publishes to and the one it
// subscribes to.
func (c *Config) Topics() (up, down string) {
	up, down = c.Name+"/up", c.Name+"/down"
	if c.Peer {
		return down, up
	}
	return up, down
}

// newTLSConfig is a helper to create a tls.Config.
func newTLSConfig(cfg *Config) (*tls.Config, error) {
	tlsConfig := &tls.Config{InsecureSkipVerify: cfg.InsecureSkipVerify}
	if cfg.CACertFile != "" {
		caCert, err := os.ReadFile(cfg.CACertFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read CA cert file %s: %w", cfg.CACertFile, err)
		}
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(caCert) {
			return nil, fmt.Errorf("failed to append CA cert from %s", cfg.CACertFile)
		}
		tlsConfig.RootCAs = caCertPool
	}
	if cfg.ClientCertFile != "" && cfg.ClientKeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.ClientCertFile, cfg.ClientKeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}
	return tlsConfig, nil
}
