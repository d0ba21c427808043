// Package pipequeue implements queue.MessageQueue as in-process endpoint
// pairs. Two queues opened with the same name on one Registry form a pipe:
// the service side sends upstream and receives downstream, its Peer does the
// opposite.
//
// Send is safe for concurrent producers. Receive is meant for one consumer
// per endpoint. Closing either end closes the pipe for both.
package pipequeue

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/protocol"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/rs/zerolog"
)

// pipe holds the two directions of a named endpoint pair.
type pipe struct {
	up   *queue.Backlog
	down *queue.Backlog
}

// Registry hands out pipes by name.
type Registry struct {
	mu    sync.Mutex
	pipes map[string]*pipe
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{pipes: make(map[string]*pipe)}
}

// Names returns the names of the open pipes, sorted.
func (r *Registry) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.pipes))
	for name := range r.pipes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (r *Registry) acquire(name string, capacity int) *pipe {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.pipes[name]
	if !ok || p.up.IsClosed() {
		p = &pipe{up: queue.NewBacklog(capacity), down: queue.NewBacklog(capacity)}
		r.pipes[name] = p
	}
	return p
}

func (r *Registry) release(name string, p *pipe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.pipes[name] == p {
		delete(r.pipes, name)
	}
	p.up.Close()
	p.down.Close()
}

// Queue is one end of a pipe.
type Queue struct {
	reg    *Registry
	cfg    queue.Config
	codec  queue.Codec
	peer   bool
	logger zerolog.Logger

	mu     sync.RWMutex
	pipe   *pipe
	closed bool
}

var _ queue.MessageQueue = (*Queue)(nil)

// New creates the service-side endpoint named cfg.Name. The endpoint is
// opened immediately when cfg.OpenOnCreate is set.
func New(reg *Registry, cfg queue.Config, proto protocol.Protocol, logger zerolog.Logger) (*Queue, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("pipe queue needs a name: %w", errs.ErrInvalidArgument)
	}
	q := newQueue(reg, cfg.WithDefaults(), queue.NewCodec(proto), false, logger)
	if cfg.OpenOnCreate {
		if err := q.Open(context.Background()); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func newQueue(reg *Registry, cfg queue.Config, codec queue.Codec, peer bool, logger zerolog.Logger) *Queue {
	side := "service"
	if peer {
		side = "peer"
	}
	return &Queue{
		reg:    reg,
		cfg:    cfg,
		codec:  codec,
		peer:   peer,
		logger: logger.With().Str("component", "PipeQueue").Str("queue", cfg.Name).Str("side", side).Logger(),
	}
}

// Peer returns the opposite end of the pipe. It is open when q is open.
func (q *Queue) Peer() *Queue {
	p := newQueue(q.reg, q.cfg, q.codec, !q.peer, q.logger)
	q.mu.RLock()
	p.pipe = q.pipe
	q.mu.RUnlock()
	return p
}

// Name returns the endpoint name.
func (q *Queue) Name() string { return q.cfg.Name }

// Open attaches the endpoint to its pipe, creating the pipe if needed.
func (q *Queue) Open(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.pipe != nil && !q.pipe.up.IsClosed() {
		return nil
	}
	q.pipe = q.reg.acquire(q.cfg.Name, q.cfg.Capacity)
	q.closed = false
	q.logger.Debug().Msg("Pipe endpoint opened.")
	return nil
}

// Close closes the pipe for both ends and wakes blocked callers.
func (q *Queue) Close() error {
	q.mu.Lock()
	p := q.pipe
	q.pipe = nil
	q.closed = true
	q.mu.Unlock()
	if p != nil {
		q.reg.release(q.cfg.Name, p)
		q.logger.Debug().Msg("Pipe endpoint closed.")
	}
	return nil
}

// Send encodes msg onto the outbound direction.
func (q *Queue) Send(ctx context.Context, msg *message.Message) error {
	out, _, err := q.directions()
	if err != nil {
		return err
	}
	entry := queue.Entry{Raw: q.codec.Encode(msg)}
	if q.cfg.Blocking {
		return out.Push(ctx, entry)
	}
	ok, err := out.Offer(entry)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pipe %s is full (%d entries): %w", q.cfg.Name, out.Cap(), errs.ErrResourceExhausted)
	}
	return nil
}

// Receive waits for the next inbound message.
func (q *Queue) Receive(ctx context.Context) (*message.Message, error) {
	_, in, err := q.directions()
	if err != nil {
		return nil, err
	}
	entry, err := in.Pop(ctx)
	if err != nil {
		return nil, err
	}
	return q.codec.DecodeEntry(entry)
}

// ReceivingMessageCount returns the inbound depth.
func (q *Queue) ReceivingMessageCount(_ context.Context) (int, error) {
	_, in, err := q.directions()
	if err != nil {
		return 0, err
	}
	return in.Len(), nil
}

// EmptyDownStream discards every inbound entry.
func (q *Queue) EmptyDownStream(_ context.Context) error {
	_, in, err := q.directions()
	if err != nil {
		return err
	}
	if n := in.Drain(); n > 0 {
		q.logger.Debug().Int("dropped", n).Msg("Discarded stale inbound messages.")
	}
	return nil
}

func (q *Queue) directions() (out, in *queue.Backlog, err error) {
	q.mu.RLock()
	p, closed := q.pipe, q.closed
	q.mu.RUnlock()
	if closed {
		return nil, nil, fmt.Errorf("pipe %s is closed: %w", q.cfg.Name, errs.ErrUnavailable)
	}
	if p == nil {
		return nil, nil, fmt.Errorf("pipe %s is not open: %w", q.cfg.Name, errs.ErrFailedPrecondition)
	}
	if q.peer {
		return p.down, p.up, nil
	}
	return p.up, p.down, nil
}
