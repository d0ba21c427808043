//go:build linux

// Package posixmq implements queue.MessageQueue on a pair of POSIX message
// queues. An endpoint named "motion" sends to "/motion-up" and receives from
// "/motion-down"; its peer does the opposite. Every message is enqueued at
// queue.NormalPriority, so the kernel delivers them in FIFO order.
//
// The queues live in the kernel and outlast the process unless
// UnlinkOnClose is set. Send is safe for concurrent producers.
package posixmq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/protocol"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

// Queue is a POSIX message queue pair.
type Queue struct {
	cfg      Config
	codec    queue.Codec
	upName   string
	downName string
	logger   zerolog.Logger

	// Descriptors are used under the read lock and replaced under the write
	// lock, so Close never pulls one from under a blocked call.
	mu       sync.RWMutex
	up       int
	down     int
	downSize int
	opened   bool
	closed   bool
}

var _ queue.MessageQueue = (*Queue)(nil)

// New creates the endpoint for cfg, opening the queues when cfg.OpenOnCreate
// is set. A nil proto sends bare messages.
func New(cfg *Config, proto protocol.Protocol, logger zerolog.Logger) (*Queue, error) {
	if cfg == nil || cfg.Name == "" {
		return nil, fmt.Errorf("posix queue needs a name: %w", errs.ErrInvalidArgument)
	}
	if strings.Contains(cfg.Name, "/") {
		return nil, fmt.Errorf("posix queue name %q must not contain a slash: %w", cfg.Name, errs.ErrInvalidArgument)
	}
	c := cfg.withDefaults()
	up, down := c.Names()
	q := &Queue{
		cfg:      c,
		codec:    queue.NewCodec(proto),
		upName:   up,
		downName: down,
		up:       -1,
		down:     -1,
		logger:   logger.With().Str("component", "PosixQueue").Str("queue", c.Name).Logger(),
	}
	if c.OpenOnCreate {
		if err := q.Open(context.Background()); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Name returns the endpoint name.
func (q *Queue) Name() string { return q.cfg.Name }

// Open opens both queues, creating them when missing.
func (q *Queue) Open(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("posix queue %s is closed: %w", q.cfg.Name, errs.ErrUnavailable)
	}
	if q.opened {
		return nil
	}

	attr := &mqAttr{MaxMsg: q.cfg.MaxMessages, MsgSize: q.cfg.MessageSize}
	up, err := mqOpen(q.upName, unix.O_WRONLY|unix.O_CREAT|unix.O_CLOEXEC, q.cfg.Perm, attr)
	if err != nil {
		return fmt.Errorf("failed to open %s: %v: %w", q.upName, err, openErrorKind(err))
	}
	down, err := mqOpen(q.downName, unix.O_RDONLY|unix.O_CREAT|unix.O_CLOEXEC, q.cfg.Perm, attr)
	if err != nil {
		_ = unix.Close(up)
		return fmt.Errorf("failed to open %s: %v: %w", q.downName, err, openErrorKind(err))
	}
	got, err := mqGetAttr(down)
	if err != nil {
		_ = unix.Close(up)
		_ = unix.Close(down)
		return fmt.Errorf("failed to read attributes of %s: %v: %w", q.downName, err, errs.ErrUnavailable)
	}

	q.up, q.down, q.downSize = up, down, got.MsgSize
	q.opened = true
	q.logger.Info().Str("up", q.upName).Str("down", q.downName).Int("max_messages", got.MaxMsg).Msg("Posix queues opened.")
	return nil
}

// Close closes both descriptors and unlinks the queues when configured to.
// Blocked callers return errs.ErrUnavailable within one poll interval.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil
	}
	q.closed = true
	if !q.opened {
		return nil
	}

	var err error
	err = multierr.Append(err, unix.Close(q.up))
	err = multierr.Append(err, unix.Close(q.down))
	q.up, q.down = -1, -1
	if q.cfg.UnlinkOnClose {
		for _, name := range []string{q.upName, q.downName} {
			if uerr := mqUnlink(name); uerr != nil && !errors.Is(uerr, unix.ENOENT) {
				err = multierr.Append(err, fmt.Errorf("unlink %s: %w", name, uerr))
			}
		}
	}
	q.logger.Info().Msg("Posix queues closed.")
	return err
}

// Send enqueues msg at queue.NormalPriority. On a full queue it waits for
// room under the blocking policy and fails with errs.ErrResourceExhausted
// otherwise.
func (q *Queue) Send(ctx context.Context, msg *message.Message) error {
	raw := q.codec.Encode(msg)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		deadline := time.Now()
		if q.cfg.Blocking {
			deadline = q.pollDeadline(ctx)
		}
		err := q.withDescriptors(func(up, _ int) error {
			return mqTimedSend(up, raw, queue.NormalPriority, deadline)
		})
		switch {
		case err == nil:
			return nil
		case errors.Is(err, unix.ETIMEDOUT) || errors.Is(err, unix.EINTR):
			if !q.cfg.Blocking {
				return fmt.Errorf("posix queue %s is full: %w", q.upName, errs.ErrResourceExhausted)
			}
		case errors.Is(err, unix.EMSGSIZE):
			return fmt.Errorf("message of %d bytes does not fit %s: %w", len(raw), q.upName, errs.ErrInvalidArgument)
		case isState(err):
			return err
		default:
			return fmt.Errorf("failed to send to %s: %v: %w", q.upName, err, errs.ErrUnavailable)
		}
	}
}

// Receive waits for the next downstream message.
func (q *Queue) Receive(ctx context.Context) (*message.Message, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var raw []byte
		err := q.withDescriptors(func(_, down int) error {
			buf := make([]byte, q.downSize)
			n, err := mqTimedReceive(down, buf, q.pollDeadline(ctx))
			raw = buf[:n]
			return err
		})
		switch {
		case err == nil:
			return q.codec.Decode(raw)
		case errors.Is(err, unix.ETIMEDOUT) || errors.Is(err, unix.EINTR):
		case isState(err):
			return nil, err
		default:
			return nil, fmt.Errorf("failed to receive from %s: %v: %w", q.downName, err, errs.ErrUnavailable)
		}
	}
}

// ReceivingMessageCount returns the current size of the downstream queue.
func (q *Queue) ReceivingMessageCount(_ context.Context) (int, error) {
	var count int
	err := q.withDescriptors(func(_, down int) error {
		attr, err := mqGetAttr(down)
		count = attr.CurMsgs
		return err
	})
	if err != nil && !isState(err) {
		return 0, fmt.Errorf("failed to read attributes of %s: %v: %w", q.downName, err, errs.ErrUnavailable)
	}
	return count, err
}

// EmptyDownStream receives without waiting until the downstream queue is
// empty.
func (q *Queue) EmptyDownStream(_ context.Context) error {
	dropped := 0
	err := q.withDescriptors(func(_, down int) error {
		buf := make([]byte, q.downSize)
		for {
			_, err := mqTimedReceive(down, buf, time.Unix(0, 0))
			switch {
			case err == nil:
				dropped++
			case errors.Is(err, unix.ETIMEDOUT):
				return nil
			case errors.Is(err, unix.EINTR):
			default:
				return err
			}
		}
	})
	if err != nil && !isState(err) {
		return fmt.Errorf("failed to drain %s: %v: %w", q.downName, err, errs.ErrUnavailable)
	}
	if dropped > 0 {
		q.logger.Debug().Int("dropped", dropped).Msg("Discarded stale messages.")
	}
	return err
}

// withDescriptors runs fn with both descriptors held open.
func (q *Queue) withDescriptors(fn func(up, down int) error) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return fmt.Errorf("posix queue %s is closed: %w", q.cfg.Name, errs.ErrUnavailable)
	}
	if !q.opened {
		return fmt.Errorf("posix queue %s is not open: %w", q.cfg.Name, errs.ErrFailedPrecondition)
	}
	return fn(q.up, q.down)
}

// pollDeadline bounds one blocking call so Close and ctx are noticed.
func (q *Queue) pollDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(q.cfg.PollInterval)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		return d
	}
	return deadline
}

func isState(err error) bool {
	return errors.Is(err, errs.ErrUnavailable) || errors.Is(err, errs.ErrFailedPrecondition)
}

func openErrorKind(err error) error {
	switch {
	case errors.Is(err, unix.EACCES):
		return errs.ErrPermissionDenied
	case errors.Is(err, unix.EINVAL), errors.Is(err, unix.ENAMETOOLONG):
		return errs.ErrInvalidArgument
	case errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE), errors.Is(err, unix.ENOSPC), errors.Is(err, unix.ENOMEM):
		return errs.ErrResourceExhausted
	}
	return errs.ErrUnavailable
}
