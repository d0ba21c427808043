// Package pubsubqueue implements queue.MessageQueue on Google Cloud Pub/Sub.
// An endpoint named "motion" publishes to the topic "motion-up" and consumes
// "motion-down" through the subscription "motion-down-sub"; its peer does the
// opposite.
//
// Messages carry the endpoint name as ordering key so one sender's messages
// are delivered in order. Send is safe for concurrent producers. Received
// messages are acknowledged once they are buffered locally. Messages published
// before the last EmptyDownStream are acknowledged and discarded.
package pubsubqueue

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
	"go.uber.org/multierr"
)

// PriorityAttribute is the message attribute carrying queue.NormalPriority.
const PriorityAttribute = "priority"

// Queue is a topic/subscription pair.
type Queue struct {
	cfg    *Config
	client *pubsub.Client
	codec  queue.Codec
	logger zerolog.Logger

	upTopicID, downTopicID, subID string
	drainedAt                     *atomic.Time

	mu        sync.Mutex
	topic     *pubsub.Topic
	sub       *pubsub.Subscription
	backlog   *queue.Backlog
	cancel    context.CancelFunc
	done      chan struct{}
	closed    bool
	lastError error
}

var _ queue.MessageQueue = (*Queue)(nil)

// New creates a queue on client. The client stays owned by the caller. The
// topics and subscription are checked, and created when cfg.CreateResources is
// set, on Open, or here when cfg.OpenOnCreate is set.
func New(ctx context.Context, cfg *Config, client *pubsub.Client, logger zerolog.Logger) (*Queue, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client cannot be nil for queue: %w", errs.ErrInvalidArgument)
	}
	if cfg == nil || cfg.Name == "" {
		return nil, fmt.Errorf("pubsub queue needs a name: %w", errs.ErrInvalidArgument)
	}
	c := *cfg
	c.Config = c.Config.WithDefaults()
	if c.NumGoroutines <= 0 {
		c.NumGoroutines = 1
	}
	if c.ExistsTimeout <= 0 {
		c.ExistsTimeout = 15 * time.Second
	}
	if c.StopTimeout <= 0 {
		c.StopTimeout = 30 * time.Second
	}
	up, down, sub := c.Names()
	q := &Queue{
		cfg:         &c,
		client:      client,
		codec:       queue.NewCodec(nil),
		logger:      logger.With().Str("component", "PubsubQueue").Str("queue", c.Name).Logger(),
		upTopicID:   up,
		downTopicID: down,
		subID:       sub,
		drainedAt:   atomic.NewTime(time.Time{}),
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

// Open resolves the topic and subscription and starts receiving.
func (q *Queue) Open(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("pubsub queue %s is closed: %w", q.cfg.Name, errs.ErrUnavailable)
	}
	if q.backlog != nil {
		return nil
	}

	topic, err := q.ensureTopic(ctx, q.upTopicID)
	if err != nil {
		return err
	}
	downTopic, err := q.ensureTopic(ctx, q.downTopicID)
	if err != nil {
		topic.Stop()
		return err
	}
	downTopic.Stop()
	sub, err := q.ensureSubscription(ctx, downTopic)
	if err != nil {
		topic.Stop()
		return err
	}

	topic.EnableMessageOrdering = true
	topic.PublishSettings.CountThreshold = 1
	topic.PublishSettings.Timeout = 10 * time.Second
	topic.PublishSettings.FlowControlSettings = pubsub.FlowControlSettings{
		MaxOutstandingMessages: q.cfg.Capacity,
		LimitExceededBehavior:  pubsub.FlowControlBlock,
	}
	if !q.cfg.Blocking {
		topic.PublishSettings.FlowControlSettings.LimitExceededBehavior = pubsub.FlowControlSignalError
	}
	sub.ReceiveSettings.MaxOutstandingMessages = q.cfg.Capacity
	sub.ReceiveSettings.NumGoroutines = q.cfg.NumGoroutines

	receiveCtx, cancel := context.WithCancel(context.Background())
	q.topic = topic
	q.sub = sub
	q.backlog = queue.NewBacklog(q.cfg.Capacity)
	q.cancel = cancel
	q.done = make(chan struct{})
	go q.receive(receiveCtx, sub, q.backlog, q.done)

	q.logger.Info().Str("topic_id", q.upTopicID).Str("subscription_id", q.subID).Msg("Pub/Sub queue opened.")
	return nil
}

func (q *Queue) ensureTopic(ctx context.Context, id string) (*pubsub.Topic, error) {
	topic := q.client.Topic(id)
	existsCtx, cancel := context.WithTimeout(ctx, q.cfg.ExistsTimeout)
	defer cancel()
	exists, err := topic.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for topic %s: %v: %w", id, err, errs.ErrUnavailable)
	}
	if exists {
		return topic, nil
	}
	if !q.cfg.CreateResources {
		return nil, fmt.Errorf("pubsub topic %s does not exist: %w", id, errs.ErrNotFound)
	}
	topic, err = q.client.CreateTopic(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to create topic %s: %v: %w", id, err, errs.ErrUnavailable)
	}
	q.logger.Info().Str("topic_id", id).Msg("Created topic.")
	return topic, nil
}

func (q *Queue) ensureSubscription(ctx context.Context, topic *pubsub.Topic) (*pubsub.Subscription, error) {
	sub := q.client.Subscription(q.subID)
	existsCtx, cancel := context.WithTimeout(ctx, q.cfg.ExistsTimeout)
	defer cancel()
	exists, err := sub.Exists(existsCtx)
	if err != nil {
		return nil, fmt.Errorf("failed to check for subscription %s: %v: %w", q.subID, err, errs.ErrUnavailable)
	}
	if exists {
		return sub, nil
	}
	if !q.cfg.CreateResources {
		return nil, fmt.Errorf("subscription %s does not exist: %w", q.subID, errs.ErrNotFound)
	}
	sub, err = q.client.CreateSubscription(ctx, q.subID, pubsub.SubscriptionConfig{
		Topic:                 topic,
		EnableMessageOrdering: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create subscription %s: %v: %w", q.subID, err, errs.ErrUnavailable)
	}
	q.logger.Info().Str("subscription_id", q.subID).Msg("Created subscription.")
	return sub, nil
}

// receive pulls until ctx is cancelled. A message is acked once it is in the
// backlog, or once it is found to predate the last drain, and nacked when the
// queue shuts down first.
func (q *Queue) receive(ctx context.Context, sub *pubsub.Subscription, backlog *queue.Backlog, done chan struct{}) {
	defer close(done)
	defer q.logger.Info().Msg("Pub/Sub Receive goroutine stopped.")

	err := sub.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		gen := backlog.Generation()
		if msg.PublishTime.Before(q.drainedAt.Load()) {
			msg.Ack()
			q.logger.Debug().Str("msg_id", msg.ID).Msg("Discarding message published before the last drain.")
			return
		}
		payload := make([]byte, len(msg.Data))
		copy(payload, msg.Data)
		if err := backlog.PushSince(ctx, gen, queue.Entry{Raw: payload}); err != nil {
			msg.Nack()
			q.logger.Warn().Str("msg_id", msg.ID).Msg("Queue stopping, Nacking message.")
			return
		}
		msg.Ack()
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		q.logger.Error().Err(err).Msg("Pub/Sub Receive call exited with error")
		q.mu.Lock()
		q.lastError = err
		q.mu.Unlock()
		backlog.Seal()
	}
}

// Close stops receiving and publishing. Blocked receivers return
// errs.ErrUnavailable.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	topic, backlog, cancel, done := q.topic, q.backlog, q.cancel, q.done
	q.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
		select {
		case <-done:
		case <-time.After(q.cfg.StopTimeout):
			q.logger.Error().Msg("Timeout waiting for Pub/Sub Receive goroutine to stop.")
			err = multierr.Append(err, fmt.Errorf("pubsub receive did not stop within %s: %w", q.cfg.StopTimeout, errs.ErrDeadlineExceeded))
		}
	}
	if topic != nil {
		topic.Stop()
	}
	if backlog != nil {
		backlog.Close()
	}
	q.logger.Info().Msg("Pub/Sub queue closed.")
	return err
}

// Send publishes msg and waits for the server to confirm it.
func (q *Queue) Send(ctx context.Context, msg *message.Message) error {
	topic, _, err := q.state()
	if err != nil {
		return err
	}
	res := topic.Publish(ctx, &pubsub.Message{
		Data:        q.codec.Encode(msg),
		OrderingKey: q.cfg.Name,
		Attributes:  map[string]string{PriorityAttribute: strconv.Itoa(queue.NormalPriority)},
	})
	if _, err := res.Get(ctx); err != nil {
		if errors.Is(err, pubsub.ErrFlowControllerMaxOutstandingMessages) {
			return fmt.Errorf("topic %s: %v: %w", q.upTopicID, err, errs.ErrResourceExhausted)
		}
		// A failed publish pauses the ordering key until resumed.
		topic.ResumePublish(q.cfg.Name)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return fmt.Errorf("publish to %s: %v: %w", q.upTopicID, err, errs.ErrUnavailable)
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

// ReceivingMessageCount returns the number of messages pulled and buffered
// locally. Messages still held by the server are not counted.
func (q *Queue) ReceivingMessageCount(_ context.Context) (int, error) {
	_, backlog, err := q.state()
	if err != nil {
		return 0, err
	}
	return backlog.Len(), nil
}

// EmptyDownStream discards the local buffer and seeks the subscription to
// now, acknowledging everything the server still holds. A failed seek is
// returned as errs.ErrUnavailable.
func (q *Queue) EmptyDownStream(ctx context.Context) error {
	_, backlog, err := q.state()
	if err != nil {
		return err
	}
	q.mu.Lock()
	sub := q.sub
	q.mu.Unlock()

	now := time.Now()
	q.drainedAt.Store(now)
	if n := backlog.Drain(); n > 0 {
		q.logger.Debug().Int("dropped", n).Msg("Discarded stale messages.")
	}
	if err := sub.SeekToTime(ctx, now); err != nil {
		return fmt.Errorf("failed to seek subscription %s to now: %v: %w", q.subID, err, errs.ErrUnavailable)
	}
	return nil
}

// LastError returns the error that ended receiving, if any.
func (q *Queue) LastError() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lastError
}

func (q *Queue) state() (*pubsub.Topic, *queue.Backlog, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, nil, fmt.Errorf("pubsub queue %s is closed: %w", q.cfg.Name, errs.ErrUnavailable)
	}
	if q.backlog == nil {
		return nil, nil, fmt.Errorf("pubsub queue %s is not open: %w", q.cfg.Name, errs.ErrFailedPrecondition)
	}
	return q.topic, q.backlog, nil
}
