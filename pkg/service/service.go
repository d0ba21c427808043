// Package service binds a worker thread to a message queue and defines the
// lifecycle every concrete service shares: start from a clean backlog, run
// the work step until stopped, stop with a bounded wait.
package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/illmade-knight/go-rservice/pkg/worker"
	"github.com/rs/zerolog"
)

// Worker is the per-service domain logic, invoked once per loop iteration.
// Implementations usually block in ReceiveMessage and must return when ctx
// is cancelled.
type Worker interface {
	Work(ctx context.Context) error
}

// WorkerFunc adapts a function to the Worker interface.
type WorkerFunc func(ctx context.Context) error

// Work calls f.
func (f WorkerFunc) Work(ctx context.Context) error { return f(ctx) }

// Service composes a thread and a queue supplied by the caller. It never
// creates, opens or closes either of them.
type Service struct {
	thread worker.Thread
	queue  queue.MessageQueue
	worker Worker
	logger zerolog.Logger

	// mu serializes Start and Stop.
	mu sync.Mutex
}

// New creates an idle service.
func New(thread worker.Thread, q queue.MessageQueue, w Worker, logger zerolog.Logger) (*Service, error) {
	if thread == nil || q == nil || w == nil {
		return nil, fmt.Errorf("service needs a thread, a queue and a worker: %w", errs.ErrInvalidArgument)
	}
	return &Service{
		thread: thread,
		queue:  q,
		worker: w,
		logger: logger.With().Str("component", "Service").Str("queue", q.Name()).Logger(),
	}, nil
}

// Start stops a running worker, discards the stale downstream backlog and
// starts the worker loop. With oneShot set the work step runs exactly once.
func (s *Service) Start(ctx context.Context, oneShot bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.thread.Stop(); err != nil {
		return fmt.Errorf("stop running worker: %w", err)
	}
	if err := s.queue.EmptyDownStream(ctx); err != nil {
		return fmt.Errorf("empty downstream of %s: %w", s.queue.Name(), err)
	}
	s.thread.SetWork(s.worker.Work)
	if err := s.thread.Start(oneShot); err != nil {
		return fmt.Errorf("start worker: %w", err)
	}
	s.logger.Info().Bool("one_shot", oneShot).Msg("Service started.")
	return nil
}

// Stop asks the worker to finish and waits for it. Stopping an idle service
// is a no-op.
func (s *Service) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasRunning := s.thread.IsRunning()
	if err := s.thread.Stop(); err != nil {
		return fmt.Errorf("stop worker: %w", err)
	}
	if wasRunning {
		s.logger.Info().Msg("Service stopped.")
	}
	return nil
}

// State returns the state of the bound thread.
func (s *Service) State() worker.State { return s.thread.State() }

// SendMessage hands msg to the queue.
func (s *Service) SendMessage(ctx context.Context, msg *message.Message) error {
	if err := s.queue.Send(ctx, msg); err != nil {
		return err
	}
	s.logger.Debug().Object("message", msg).Msg("Message sent.")
	return nil
}

// ReceiveMessage waits for the next downstream message.
func (s *Service) ReceiveMessage(ctx context.Context) (*message.Message, error) {
	msg, err := s.queue.Receive(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Object("message", msg).Msg("Message received.")
	return msg, nil
}

// MessageQueueName returns the name of the bound queue.
func (s *Service) MessageQueueName() string { return s.queue.Name() }

// Queue returns the bound queue.
func (s *Service) Queue() queue.MessageQueue { return s.queue }
