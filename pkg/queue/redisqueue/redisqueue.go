// Package redisqueue implements queue.MessageQueue on a pair of Redis lists,
// one per direction. Send appends with RPUSH and Receive pops with BLPOP, so
// order is FIFO between one sender and one receiver.
//
// Send is safe for concurrent producers; each RPUSH is atomic. The MaxBacklog
// check is a separate LLEN and may be overshot by concurrent producers.
package redisqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/flowchartsman/retry"
	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// blockTimeout is the BLPOP timeout; Redis accepts whole seconds only.
const blockTimeout = time.Second

// Queue is a Redis list pair.
type Queue struct {
	cfg     *Config
	codec   queue.Codec
	upKey   string
	downKey string
	logger  zerolog.Logger

	mu     sync.RWMutex
	client *redis.Client
	closed bool
}

var _ queue.MessageQueue = (*Queue)(nil)

// New creates a queue for cfg, connecting when cfg.OpenOnCreate is set.
func New(ctx context.Context, cfg *Config, logger zerolog.Logger) (*Queue, error) {
	if cfg == nil || cfg.Name == "" {
		return nil, fmt.Errorf("redis queue needs a name: %w", errs.ErrInvalidArgument)
	}
	c := *cfg
	c.Config = c.Config.WithDefaults()
	if c.ConnectRetries <= 0 {
		c.ConnectRetries = 1
	}
	up, down := c.Keys()
	q := &Queue{
		cfg:     &c,
		codec:   queue.NewCodec(nil),
		upKey:   up,
		downKey: down,
		logger:  logger.With().Str("component", "RedisQueue").Str("queue", c.Name).Logger(),
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

// Open connects and pings the server, retrying with backoff.
func (q *Queue) Open(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("redis queue %s is closed: %w", q.cfg.Name, errs.ErrUnavailable)
	}
	if q.client != nil {
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:                  q.cfg.Addr,
		Password:              q.cfg.Password,
		DB:                    q.cfg.DB,
		ContextTimeoutEnabled: true,
	})
	retrier := retry.NewRetrier(q.cfg.ConnectRetries, 100*time.Millisecond, 2*time.Second)
	err := retrier.RunContext(ctx, func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	if err != nil {
		_ = rdb.Close()
		return fmt.Errorf("failed to connect to redis at %s: %v: %w", q.cfg.Addr, err, errs.ErrUnavailable)
	}
	q.client = rdb
	q.logger.Info().Str("redis_address", q.cfg.Addr).Str("up", q.upKey).Str("down", q.downKey).Msg("Successfully connected to Redis.")
	return nil
}

// Close closes the client. Blocked receivers return errs.ErrUnavailable.
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
	q.logger.Info().Msg("Closing Redis client connection...")
	err := q.client.Close()
	q.client = nil
	return err
}

// Send appends msg to the upstream list.
func (q *Queue) Send(ctx context.Context, msg *message.Message) error {
	rdb, err := q.conn()
	if err != nil {
		return err
	}
	if q.cfg.MaxBacklog > 0 {
		if err := q.waitForRoom(ctx, rdb); err != nil {
			return err
		}
	}
	if err := rdb.RPush(ctx, q.upKey, q.codec.Encode(msg)).Err(); err != nil {
		return q.translate("rpush", err)
	}
	return nil
}

func (q *Queue) waitForRoom(ctx context.Context, rdb *redis.Client) error {
	for {
		n, err := rdb.LLen(ctx, q.upKey).Result()
		if err != nil {
			return q.translate("llen", err)
		}
		if int(n) < q.cfg.MaxBacklog {
			return nil
		}
		if !q.cfg.Blocking {
			return fmt.Errorf("list %s holds %d entries: %w", q.upKey, n, errs.ErrResourceExhausted)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(q.cfg.PollInterval):
		}
	}
}

// Receive pops the next downstream entry, waiting until one arrives.
func (q *Queue) Receive(ctx context.Context) (*message.Message, error) {
	for {
		rdb, err := q.conn()
		if err != nil {
			return nil, err
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := rdb.BLPop(ctx, blockTimeout, q.downKey).Result()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, q.translate("blpop", err)
		}
		// BLPOP replies with the key followed by the value.
		return q.codec.Decode([]byte(res[1]))
	}
}

// ReceivingMessageCount returns the downstream list length.
func (q *Queue) ReceivingMessageCount(ctx context.Context) (int, error) {
	rdb, err := q.conn()
	if err != nil {
		return 0, err
	}
	n, err := rdb.LLen(ctx, q.downKey).Result()
	if err != nil {
		return 0, q.translate("llen", err)
	}
	return int(n), nil
}

// EmptyDownStream deletes the downstream list.
func (q *Queue) EmptyDownStream(ctx context.Context) error {
	rdb, err := q.conn()
	if err != nil {
		return err
	}
	if err := rdb.Del(ctx, q.downKey).Err(); err != nil {
		return q.translate("del", err)
	}
	return nil
}

func (q *Queue) conn() (*redis.Client, error) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return nil, fmt.Errorf("redis queue %s is closed: %w", q.cfg.Name, errs.ErrUnavailable)
	}
	if q.client == nil {
		return nil, fmt.Errorf("redis queue %s is not open: %w", q.cfg.Name, errs.ErrFailedPrecondition)
	}
	return q.client, nil
}

func (q *Queue) translate(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	q.logger.Error().Err(err).Str("op", op).Msg("Redis command failed.")
	return fmt.Errorf("redis %s: %v: %w", op, err, errs.ErrUnavailable)
}
