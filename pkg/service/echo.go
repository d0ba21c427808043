package service

import (
	"context"
	"errors"

	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/illmade-knight/go-rservice/pkg/worker"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// EchoService answers every Request with a Response carrying the same id and
// items, addressed back to the sender. Other message types are ignored.
type EchoService struct {
	*Service
	logger  zerolog.Logger
	replied *atomic.Uint64
	dropped *atomic.Uint64
}

// NewEchoService creates an idle echo service on thread and q.
func NewEchoService(thread worker.Thread, q queue.MessageQueue, logger zerolog.Logger) (*EchoService, error) {
	e := &EchoService{
		logger:  logger.With().Str("component", "EchoService").Logger(),
		replied: atomic.NewUint64(0),
		dropped: atomic.NewUint64(0),
	}
	svc, err := New(thread, q, e, logger)
	if err != nil {
		return nil, err
	}
	e.Service = svc
	return e, nil
}

// Work receives one message and replies to it if it is a request.
func (e *EchoService) Work(ctx context.Context) error {
	msg, err := e.ReceiveMessage(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil:
		return nil
	case errors.Is(err, errs.ErrDataLoss):
		e.dropped.Inc()
		e.logger.Warn().Err(err).Msg("Discarding undecodable message.")
		return nil
	case errors.Is(err, errs.ErrUnavailable):
		e.logger.Info().Err(err).Msg("Queue closed, echo service going idle.")
		return worker.ErrDone
	default:
		return err
	}

	if msg.Type() != message.TypeRequest {
		e.logger.Debug().Stringer("type", msg.Type()).Msg("Ignoring non-request message.")
		return nil
	}

	reply := msg.Clone()
	reply.SetType(message.TypeResponse)
	reply.SetSource(msg.Destination())
	reply.SetDestination(msg.Source())
	if err := e.SendMessage(ctx, reply); err != nil {
		return err
	}
	e.replied.Inc()
	return nil
}

// Replied returns how many responses were sent.
func (e *EchoService) Replied() uint64 { return e.replied.Load() }

// Dropped returns how many undecodable messages were discarded.
func (e *EchoService) Dropped() uint64 { return e.dropped.Load() }
