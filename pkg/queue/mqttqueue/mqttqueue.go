// Package mqttqueue implements queue.MessageQueue over an MQTT broker. An
// endpoint named "motion" publishes on "motion/up" and subscribes to
// "motion/down"; its peer does the opposite.
//
// Inbound messages are handled in arrival order. The Paho handler never
// blocks: it hands each message to a forwarding goroutine through an inbox of
// Capacity entries, and the forwarder fills the local backlog. Messages that
// find the inbox full are dropped and counted. Send is safe for concurrent
// producers; Capacity bounds the publishes in flight.
package mqttqueue

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// ClientFactory builds the Paho client from its options.
type ClientFactory func(opts *mqtt.ClientOptions) mqtt.Client

// Queue is an MQTT topic pair.
type Queue struct {
	cfg       *Config
	codec     queue.Codec
	upTopic   string
	downTopic string
	logger    zerolog.Logger
	newClient ClientFactory
	inflight  chan struct{}
	connected *atomic.Bool
	dropped   *atomic.Uint64

	mu      sync.Mutex
	client  mqtt.Client
	backlog *queue.Backlog
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
}

// inbound is a received payload and the backlog generation it arrived in.
type inbound struct {
	raw []byte
	gen uint64
}

var _ queue.MessageQueue = (*Queue)(nil)

// New creates a queue for cfg, connecting when cfg.OpenOnCreate is set.
func New(ctx context.Context, cfg *Config, logger zerolog.Logger) (*Queue, error) {
	return NewWithClientFactory(ctx, cfg, mqtt.NewClient, logger)
}

// NewWithClientFactory is New with a custom Paho client constructor.
func NewWithClientFactory(ctx context.Context, cfg *Config, factory ClientFactory, logger zerolog.Logger) (*Queue, error) {
	if cfg == nil || cfg.Name == "" {
		return nil, fmt.Errorf("mqtt queue needs a name: %w", errs.ErrInvalidArgument)
	}
	if cfg.BrokerURL == "" {
		return nil, fmt.Errorf("MQTT broker URL is required: %w", errs.ErrInvalidArgument)
	}
	c := *cfg
	c.Config = c.Config.WithDefaults()
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 10 * time.Second
	}
	up, down := c.Topics()
	q := &Queue{
		cfg:       &c,
		codec:     queue.NewCodec(nil),
		upTopic:   up,
		downTopic: down,
		logger:    logger.With().Str("component", "MqttQueue").Str("queue", c.Name).Logger(),
		newClient: factory,
		inflight:  make(chan struct{}, c.Capacity),
		connected: atomic.NewBool(false),
		dropped:   atomic.NewUint64(0),
	}
	if c.OpenOnCreate {
		if err := q.Open(ctx); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Name returns the endpoint name.
func (q *Queue) Name() string { return q.cfg.Name }

// Open connects to the broker and subscribes to the downstream topic.
func (q *Queue) Open(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("mqtt queue %s is closed: %w", q.cfg.Name, errs.ErrUnavailable)
	}
	if q.client != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(context.Background())
	backlog := queue.NewBacklog(q.cfg.Capacity)
	inbox := make(chan inbound, q.cfg.Capacity)
	done := make(chan struct{})
	go q.forward(runCtx, inbox, backlog, done)
	stop := func() {
		cancel()
		<-done
		backlog.Close()
	}

	handler := q.handleIncomingMessage(inbox, backlog)
	client := q.newClient(q.createMqttOptions(handler))

	q.logger.Info().Msg("Attempting to connect to MQTT broker...")
	if err := q.waitToken(ctx, client.Connect()); err != nil {
		stop()
		return fmt.Errorf("failed to connect to MQTT broker %s: %v: %w", q.cfg.BrokerURL, err, errs.ErrUnavailable)
	}
	if err := q.waitToken(ctx, client.Subscribe(q.downTopic, q.cfg.QoS, handler)); err != nil {
		client.Disconnect(250)
		stop()
		return fmt.Errorf("failed to subscribe to MQTT topic %s: %v: %w", q.downTopic, err, errs.ErrUnavailable)
	}
	q.connected.Store(true)
	q.logger.Info().Str("topic", q.downTopic).Msg("Successfully subscribed to MQTT topic.")

	q.client = client
	q.backlog = backlog
	q.cancel = cancel
	q.done = done
	return nil
}

// Close unsubscribes, disconnects and wakes blocked receivers.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	if q.client == nil {
		return nil
	}
	q.logger.Info().Msg("Stopping MqttQueue...")
	q.cancel()
	if q.client.IsConnected() {
		if token := q.client.Unsubscribe(q.downTopic); token.WaitTimeout(2*time.Second) && token.Error() != nil {
			q.logger.Warn().Err(token.Error()).Str("topic", q.downTopic).Msg("Failed to unsubscribe from MQTT topic.")
		}
		q.client.Disconnect(250)
		q.logger.Info().Msg("Paho MQTT client disconnected.")
	}
	<-q.done
	q.backlog.Close()
	return nil
}

// Send publishes msg and waits for the broker to acknowledge it.
func (q *Queue) Send(ctx context.Context, msg *message.Message) error {
	client, _, err := q.state()
	if err != nil {
		return err
	}
	if q.cfg.Blocking {
		select {
		case q.inflight <- struct{}{}:
		case <-ctx.Done():
			return ctx.Err()
		}
	} else {
		select {
		case q.inflight <- struct{}{}:
		default:
			return fmt.Errorf("%d publishes in flight on %s: %w", cap(q.inflight), q.upTopic, errs.ErrResourceExhausted)
		}
	}
	defer func() { <-q.inflight }()

	if err := q.waitToken(ctx, client.Publish(q.upTopic, q.cfg.QoS, false, q.codec.Encode(msg))); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("publish to %s: %v: %w", q.upTopic, err, errs.ErrUnavailable)
	}
	return nil
}

// Receive waits for the next buffered message.
func (q *Queue) Receive(ctx context.Context) (*message.Message, error) {
	_, backlog, err := q.state()
	if err != nil {
		return nil, err
	}
	entry, err := backlog.Pop(ctx)
	if err != nil {
		return nil, err
	}
	return q.codec.DecodeEntry(entry)
}

// ReceivingMessageCount returns the number of buffered messages.
func (q *Queue) ReceivingMessageCount(_ context.Context) (int, error) {
	_, backlog, err := q.state()
	if err != nil {
		return 0, err
	}
	return backlog.Len(), nil
}

// EmptyDownStream discards the buffered messages.
func (q *Queue) EmptyDownStream(_ context.Context) error {
	_, backlog, err := q.state()
	if err != nil {
		return err
	}
	if n := backlog.Drain(); n > 0 {
		q.logger.Debug().Int("dropped", n).Msg("Discarded stale messages.")
	}
	return nil
}

// Dropped returns how many inbound messages were dropped because the inbox
// was full.
func (q *Queue) Dropped() uint64 { return q.dropped.Load() }

// IsConnected returns the connection status of the underlying Paho client.
func (q *Queue) IsConnected() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.client != nil && q.client.IsConnected()
}

func (q *Queue) state() (mqtt.Client, *queue.Backlog, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, nil, fmt.Errorf("mqtt queue %s is closed: %w", q.cfg.Name, errs.ErrUnavailable)
	}
	if q.client == nil {
		return nil, nil, fmt.Errorf("mqtt queue %s is not open: %w", q.cfg.Name, errs.ErrFailedPrecondition)
	}
	return q.client, q.backlog, nil
}

// waitToken waits for token, ctx or the connect timeout, whichever is first.
func (q *Queue) waitToken(ctx context.Context, token mqtt.Token) error {
	timer := time.NewTimer(q.cfg.ConnectTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("no reply within %s: %w", q.cfg.ConnectTimeout, errs.ErrDeadlineExceeded)
	}
}

// handleIncomingMessage queues each message for the forwarder without
// blocking, since Paho runs ordered handlers on its own delivery goroutine.
func (q *Queue) handleIncomingMessage(inbox chan<- inbound, backlog *queue.Backlog) mqtt.MessageHandler {
	return func(_ mqtt.Client, msg mqtt.Message) {
		q.logger.Debug().Str("topic", msg.Topic()).Msg("Received MQTT message")
		payload := make([]byte, len(msg.Payload()))
		copy(payload, msg.Payload())
		select {
		case inbox <- inbound{raw: payload, gen: backlog.Generation()}:
		default:
			q.dropped.Inc()
			q.logger.Warn().Str("topic", msg.Topic()).Msg("Inbox full, dropping MQTT message.")
		}
	}
}

// forward moves inbox entries into the backlog until ctx ends. Entries that
// arrived before a drain are discarded by the backlog.
func (q *Queue) forward(ctx context.Context, inbox <-chan inbound, backlog *queue.Backlog, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case in := <-inbox:
			if err := backlog.PushSince(ctx, in.gen, queue.Entry{Raw: in.raw}); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// createMqttOptions assembles the Paho client options from the config.
func (q *Queue) createMqttOptions(handler mqtt.MessageHandler) *mqtt.ClientOptions {
	cfg := q.cfg
	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientIDPrefix + uuid.NewString()[:8])
	opts.SetUsername(cfg.Username)
	opts.SetPassword(cfg.Password)
	opts.SetKeepAlive(cfg.KeepAlive)
	opts.SetConnectTimeout(cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(cfg.ReconnectWaitMax)
	opts.SetOrderMatters(true)

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		// The first subscription is made by Open; later connects are reconnects.
		if !q.connected.Load() {
			return
		}
		q.logger.Info().Str("broker", cfg.BrokerURL).Msg("Paho client reconnected to MQTT broker.")
		token := client.Subscribe(q.downTopic, cfg.QoS, handler)
		go func() {
			if token.WaitTimeout(5*time.Second) && token.Error() != nil {
				q.logger.Error().Err(token.Error()).Str("topic", q.downTopic).Msg("Failed to resubscribe to MQTT topic.")
			}
		}()
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		q.logger.Error().Err(err).Msg("Paho client lost MQTT connection.")
	})

	if strings.HasPrefix(strings.ToLower(cfg.BrokerURL), "tls://") {
		tlsConfig, err := newTLSConfig(cfg)
		if err != nil {
			q.logger.Error().Err(err).Msg("Failed to create TLS config, proceeding without it.")
		} else {
			opts.SetTLSConfig(tlsConfig)
			q.logger.Info().Msg("TLS configured for MQTT client.")
		}
	}
	return opts
}
