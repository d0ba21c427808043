package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	gods "github.com/Workiva/go-datastructures/queue"
	"github.com/illmade-knight/go-rservice/pkg/errs"
	"go.uber.org/atomic"
)

// pollTimeout bounds a dequeue that lost a race for the last entry.
const pollTimeout = time.Millisecond

// Entry is one downstream record: the raw bytes as delivered by the
// transport, or the error the transport hit while producing it (for example a
// frame that failed its checksum).
type Entry struct {
	Raw []byte
	Err error
}

// Backlog is the bounded, FIFO downstream buffer of push-based transports.
//
// It is backed by a ring buffer; waiting is done on doorbell channels rather
// than by spinning on the buffer. Push and Offer are safe for concurrent
// producers. Pop is meant for a single consumer; Drain may run beside it.
//
// Every Drain starts a new generation. A producer that took its generation
// before a Drain has its entry discarded, even if it was waiting for room
// while the Drain ran.
type Backlog struct {
	rb *gods.RingBuffer
	// mu orders offers against Drain: producers share it, Drain holds it
	// exclusively while it advances the generation and empties the buffer.
	mu        sync.RWMutex
	gen       *atomic.Uint64
	itemBell  chan struct{}
	spaceBell chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
	sealed    chan struct{}
	sealOnce  sync.Once
}

// NewBacklog returns a backlog holding at least capacity entries. The ring
// buffer rounds the capacity up to a power of two.
func NewBacklog(capacity int) *Backlog {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Backlog{
		rb:        gods.NewRingBuffer(uint64(capacity)),
		gen:       atomic.NewUint64(0),
		itemBell:  make(chan struct{}, 1),
		spaceBell: make(chan struct{}, 1),
		closed:    make(chan struct{}),
		sealed:    make(chan struct{}),
	}
}

// Cap returns the effective capacity.
func (b *Backlog) Cap() int { return int(b.rb.Cap()) }

// Len returns the number of queued entries.
func (b *Backlog) Len() int { return int(b.rb.Len()) }

// Generation returns the current drain generation. Transports take it when
// a message arrives and hand it to PushSince.
func (b *Backlog) Generation() uint64 { return b.gen.Load() }

// Offer enqueues e without waiting. It returns false when the backlog is full
// and errs.ErrUnavailable once the backlog is closed.
func (b *Backlog) Offer(e Entry) (bool, error) {
	ok, _, err := b.offer(b.Generation(), e)
	return ok, err
}

// Push enqueues e, waiting for room until ctx ends or the backlog is closed.
func (b *Backlog) Push(ctx context.Context, e Entry) error {
	return b.PushSince(ctx, b.Generation(), e)
}

// PushSince is Push for an entry that arrived in generation gen. If the
// backlog has been drained since, e is discarded and PushSince returns nil.
func (b *Backlog) PushSince(ctx context.Context, gen uint64, e Entry) error {
	for {
		ok, stale, err := b.offer(gen, e)
		if err != nil {
			return err
		}
		if stale {
			// Hand the wakeup from Drain on to the next waiting producer.
			ring(b.spaceBell)
			return nil
		}
		if ok {
			// Pass a wakeup on to the next blocked producer while room remains.
			if b.rb.Len() < b.rb.Cap() {
				ring(b.spaceBell)
			}
			return nil
		}
		select {
		case <-b.spaceBell:
		case <-b.closed:
			return fmt.Errorf("backlog closed: %w", errs.ErrUnavailable)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *Backlog) offer(gen uint64, e Entry) (ok, stale bool, err error) {
	if b.isSealed() {
		return false, false, fmt.Errorf("backlog sealed: %w", errs.ErrUnavailable)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.gen.Load() != gen {
		return false, true, nil
	}
	ok, err = b.rb.Offer(e)
	if err != nil {
		return false, false, b.translate(err)
	}
	if ok {
		ring(b.itemBell)
	}
	return ok, false, nil
}

// Pop dequeues the oldest entry, waiting until one arrives, ctx ends or the
// backlog is closed. A sealed backlog still hands out what it holds and then
// fails with errs.ErrUnavailable.
func (b *Backlog) Pop(ctx context.Context) (Entry, error) {
	for {
		if b.rb.Len() > 0 {
			item, err := b.rb.Poll(pollTimeout)
			if errors.Is(err, gods.ErrTimeout) {
				// A concurrent Drain took it.
				continue
			}
			if err != nil {
				return Entry{}, b.translate(err)
			}
			ring(b.spaceBell)
			return item.(Entry), nil
		}
		select {
		case <-b.itemBell:
		case <-b.sealed:
			if b.rb.Len() > 0 {
				continue
			}
			return Entry{}, fmt.Errorf("backlog sealed: %w", errs.ErrUnavailable)
		case <-b.closed:
			return Entry{}, fmt.Errorf("backlog closed: %w", errs.ErrUnavailable)
		case <-ctx.Done():
			return Entry{}, ctx.Err()
		}
	}
}

// Drain discards every queued entry without inspecting it, starts a new
// generation and returns how many entries were dropped. Producers waiting
// for room are woken and discard their entries.
func (b *Backlog) Drain() int {
	b.mu.Lock()
	b.gen.Inc()
	n := 0
	for b.rb.Len() > 0 {
		_, err := b.rb.Poll(pollTimeout)
		if errors.Is(err, gods.ErrTimeout) {
			continue
		}
		if err != nil {
			break
		}
		n++
	}
	b.mu.Unlock()
	ring(b.spaceBell)
	return n
}

// Close wakes every waiter and makes further calls fail with
// errs.ErrUnavailable. It is idempotent.
func (b *Backlog) Close() {
	b.closeOnce.Do(func() {
		close(b.closed)
		b.rb.Dispose()
	})
}

// Seal marks the end of input: producers are refused, the consumer drains
// what is left and then sees errs.ErrUnavailable. It is idempotent.
func (b *Backlog) Seal() {
	b.sealOnce.Do(func() { close(b.sealed) })
}

func (b *Backlog) isSealed() bool {
	select {
	case <-b.sealed:
		return true
	default:
		return false
	}
}

// IsClosed reports whether Close was called.
func (b *Backlog) IsClosed() bool {
	select {
	case <-b.closed:
		return true
	default:
		return false
	}
}

func (b *Backlog) translate(err error) error {
	if errors.Is(err, gods.ErrDisposed) {
		return fmt.Errorf("backlog closed: %w", errs.ErrUnavailable)
	}
	return err
}

// ring signals a doorbell without blocking; one pending signal is enough to
// wake the single waiter.
func ring(bell chan struct{}) {
	select {
	case bell <- struct{}{}:
	default:
	}
}
