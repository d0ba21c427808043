// Package natsqueue implements queue.MessageQueue on core NATS subjects. An
// endpoint named "motion" publishes on "motion.up" and subscribes to
// "motion.down"; its peer does the opposite.
//
// NATS delivers one subscription's messages in order, so order is FIFO between
// one sender and one receiver. Delivery is at most once: messages published
// while no receiver is subscribed are lost. EmptyDownStream replaces the
// subscription, so messages the client still holds for it are dropped too.
package natsqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// PriorityHeader is the message header carrying queue.NormalPriority.
const PriorityHeader = "Priority"

// flushTimeout bounds a flush when the caller's context has no deadline.
const flushTimeout = 10 * time.Second

// Queue is a NATS subject pair.
type Queue struct {
	cfg         *Config
	codec       queue.Codec
	upSubject   string
	downSubject string
	logger      zerolog.Logger

	mu      sync.Mutex
	conn    *nats.Conn
	sub     *nats.Subscription
	backlog *queue.Backlog
	runCtx  context.Context
	cancel  context.CancelFunc
	closed  bool
}

var _ queue.MessageQueue = (*Queue)(nil)

// New creates a queue for cfg, connecting when cfg.OpenOnCreate is set.
func New(ctx context.Context, cfg *Config, logger zerolog.Logger) (*Queue, error) {
	if cfg == nil || cfg.Name == "" {
		return nil, fmt.Errorf("nats queue needs a name: %w", errs.ErrInvalidArgument)
	}
	c := *cfg
	c.Config = c.Config.WithDefaults()
	if c.ConnectRetries <= 0 {
		c.ConnectRetries = 1
	}
	if c.ReconnectWait <= 0 {
		c.ReconnectWait = 2 * time.Second
	}
	up, down := c.Subjects()
	q := &Queue{
		cfg:         &c,
		codec:       queue.NewCodec(nil),
		upSubject:   up,
		downSubject: down,
		logger:      logger.With().Str("component", "NatsQueue").Str("queue", c.Name).Logger(),
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

// Open connects, retrying with backoff, and subscribes to the downstream
// subject.
func (q *Queue) Open(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("nats queue %s is closed: %w", q.cfg.Name, errs.ErrUnavailable)
	}
	if q.conn != nil {
		return nil
	}

	opts := nats.GetDefaultOptions()
	opts.Url = q.cfg.URL
	opts.Name = "rservice-" + q.cfg.Name
	opts.ReconnectWait = q.cfg.ReconnectWait
	opts.MaxReconnect = -1
	opts.DisconnectedErrCB = func(_ *nats.Conn, err error) {
		if err != nil {
			q.logger.Warn().Err(err).Msg("Disconnected from NATS server.")
		}
	}
	opts.ReconnectedCB = func(nc *nats.Conn) {
		q.logger.Info().Str("url", nc.ConnectedUrl()).Msg("Reconnected to NATS server.")
	}

	var conn *nats.Conn
	retrier := retry.NewRetrier(q.cfg.ConnectRetries, 100*time.Millisecond, opts.ReconnectWait)
	err := retrier.RunContext(ctx, func(_ context.Context) error {
		var err error
		conn, err = opts.Connect()
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to connect to nats at %s: %v: %w", q.cfg.URL, err, errs.ErrUnavailable)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	backlog := queue.NewBacklog(q.cfg.Capacity)
	sub, err := q.subscribe(ctx, runCtx, conn, backlog)
	if err != nil {
		cancel()
		backlog.Close()
		conn.Close()
		return fmt.Errorf("failed to subscribe to %s: %v: %w", q.downSubject, err, errs.ErrUnavailable)
	}

	q.conn = conn
	q.sub = sub
	q.backlog = backlog
	q.runCtx = runCtx
	q.cancel = cancel
	q.logger.Info().Str("url", q.cfg.URL).Str("up", q.upSubject).Str("down", q.downSubject).Msg("Successfully connected to NATS.")
	return nil
}

// Close unsubscribes and closes the connection. Blocked receivers return
// errs.ErrUnavailable.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	if q.conn == nil {
		return nil
	}
	q.logger.Info().Msg("Closing NATS connection...")
	q.cancel()
	var err error
	if q.sub != nil && q.conn.IsConnected() {
		err = multierr.Append(err, q.sub.Unsubscribe())
	}
	q.conn.Close()
	q.backlog.Close()
	return err
}

// Send publishes msg and flushes it to the server.
func (q *Queue) Send(ctx context.Context, msg *message.Message) error {
	conn, _, err := q.state()
	if err != nil {
		return err
	}
	out := nats.NewMsg(q.upSubject)
	out.Data = q.codec.Encode(msg)
	out.Header.Set(PriorityHeader, strconv.Itoa(queue.NormalPriority))
	if err := conn.PublishMsg(out); err != nil {
		if errors.Is(err, nats.ErrReconnectBufExceeded) {
			return fmt.Errorf("publish to %s: %v: %w", q.upSubject, err, errs.ErrResourceExhausted)
		}
		return fmt.Errorf("publish to %s: %v: %w", q.upSubject, err, errs.ErrUnavailable)
	}
	if err := flush(ctx, conn); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("flush %s: %v: %w", q.upSubject, err, errs.ErrUnavailable)
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

// ReceivingMessageCount returns the buffered messages plus those the client
// holds but has not yet handed to the subscription.
func (q *Queue) ReceivingMessageCount(_ context.Context) (int, error) {
	_, backlog, err := q.state()
	if err != nil {
		return 0, err
	}
	q.mu.Lock()
	sub := q.sub
	q.mu.Unlock()
	if sub == nil {
		return backlog.Len(), nil
	}
	pending, _, err := sub.Pending()
	if err != nil {
		pending = 0
	}
	return backlog.Len() + pending, nil
}

// EmptyDownStream discards the buffered messages and the ones the client
// holds for the subscription, then subscribes afresh.
func (q *Queue) EmptyDownStream(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("nats queue %s is closed: %w", q.cfg.Name, errs.ErrUnavailable)
	}
	if q.conn == nil {
		return fmt.Errorf("nats queue %s is not open: %w", q.cfg.Name, errs.ErrFailedPrecondition)
	}

	if q.sub != nil {
		if err := q.sub.Unsubscribe(); err != nil {
			q.logger.Warn().Err(err).Str("subject", q.downSubject).Msg("Failed to unsubscribe before drain.")
		}
		q.sub = nil
	}
	if n := q.backlog.Drain(); n > 0 {
		q.logger.Debug().Int("dropped", n).Msg("Discarded stale messages.")
	}
	sub, err := q.subscribe(ctx, q.runCtx, q.conn, q.backlog)
	if err != nil {
		return fmt.Errorf("failed to resubscribe to %s: %v: %w", q.downSubject, err, errs.ErrUnavailable)
	}
	q.sub = sub
	return nil
}

// subscribe binds a subscription to the backlog's current generation, so
// whatever it delivers after a later drain is discarded.
func (q *Queue) subscribe(ctx, runCtx context.Context, conn *nats.Conn, backlog *queue.Backlog) (*nats.Subscription, error) {
	gen := backlog.Generation()
	sub, err := conn.Subscribe(q.downSubject, func(msg *nats.Msg) {
		payload := make([]byte, len(msg.Data))
		copy(payload, msg.Data)
		if err := backlog.PushSince(runCtx, gen, queue.Entry{Raw: payload}); err != nil {
			q.logger.Warn().Str("subject", msg.Subject).Msg("Queue is shutting down, dropping NATS message.")
		}
	})
	if err != nil {
		return nil, err
	}
	// Make sure the server registered the interest before returning.
	if err := flush(ctx, conn); err != nil {
		_ = sub.Unsubscribe()
		return nil, err
	}
	return sub, nil
}

func (q *Queue) state() (*nats.Conn, *queue.Backlog, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, nil, fmt.Errorf("nats queue %s is closed: %w", q.cfg.Name, errs.ErrUnavailable)
	}
	if q.conn == nil {
		return nil, nil, fmt.Errorf("nats queue %s is not open: %w", q.cfg.Name, errs.ErrFailedPrecondition)
	}
	return q.conn, q.backlog, nil
}

// flush waits for the server to process everything published so far.
func flush(ctx context.Context, conn *nats.Conn) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, flushTimeout)
		defer cancel()
	}
	return conn.FlushWithContext(ctx)
}
