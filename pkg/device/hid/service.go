package hid

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/illmade-knight/go-rservice/pkg/device"
	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/illmade-knight/go-rservice/pkg/service"
	"github.com/illmade-knight/go-rservice/pkg/worker"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// StateDevice is a device that can report all of its values at once.
type StateDevice interface {
	device.Device
	Snapshot() map[string]int32
}

// Service publishes the state of an input device as broadcast Event
// messages, one per completed report.
type Service struct {
	*service.Service
	dev       StateDevice
	logger    zerolog.Logger
	published *atomic.Uint64
}

// NewService creates an idle HID service reading dev and publishing on q.
func NewService(thread worker.Thread, q queue.MessageQueue, dev StateDevice, logger zerolog.Logger) (*Service, error) {
	if dev == nil {
		return nil, fmt.Errorf("hid service needs a device: %w", errs.ErrInvalidArgument)
	}
	s := &Service{
		dev:       dev,
		logger:    logger.With().Str("component", "HIDService").Logger(),
		published: atomic.NewUint64(0),
	}
	svc, err := service.New(thread, q, s, logger)
	if err != nil {
		return nil, err
	}
	s.Service = svc
	return s, nil
}

// Work waits for the next device update and publishes it.
func (s *Service) Work(ctx context.Context) error {
	if err := s.dev.WaitUpdated(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}

	msg := s.eventMessage(s.dev.Snapshot())
	if err := s.SendMessage(ctx, msg); err != nil {
		switch {
		case ctx.Err() != nil:
			return nil
		case errors.Is(err, errs.ErrUnavailable):
			s.logger.Info().Err(err).Msg("Queue closed, HID service going idle.")
			return worker.ErrDone
		default:
			return err
		}
	}
	s.published.Inc()
	if err := s.dev.Set(KeyKeyUpdated, 0); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to clear key update flag.")
	}
	return nil
}

// Published returns how many state events were sent.
func (s *Service) Published() uint64 { return s.published.Load() }

func (s *Service) eventMessage(state map[string]int32) *message.Message {
	msg := message.New()
	msg.SetType(message.TypeEvent)
	msg.SetSource(s.MessageQueueName())
	msg.SetBroadcasting(true)

	keys := make([]string, 0, len(state))
	for k := range state {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := msg.SetInt(k, state[k]); err != nil {
			s.logger.Warn().Err(err).Str("key", k).Msg("Skipping HID value that cannot be carried in a message.")
		}
	}
	return msg
}
