package queue

import (
	"context"

	"github.com/illmade-knight/go-rservice/pkg/message"
)

// ====================================================================================
// This file defines the transport contract shared by every concrete message
// queue. A queue is a named endpoint with an upstream (outgoing) side and a
// downstream (incoming) side.
// ====================================================================================

// MessageQueue sends and receives whole messages over one named transport endpoint.
//
// Receive is meant for exactly one consuming goroutine. Whether Send may be
// called from several goroutines at once is documented by each transport.
type MessageQueue interface {
	// Send serializes msg and hands it to the upstream side. A full transport
	// fails with errs.ErrResourceExhausted under the non-blocking policy and
	// waits for room (or ctx) under the blocking policy.
	Send(ctx context.Context, msg *message.Message) error
	// Receive blocks for the next downstream message. It fails with
	// errs.ErrDataLoss when the entry cannot be decoded, with
	// errs.ErrUnavailable once the queue is closed, and with ctx.Err() when
	// ctx ends first.
	Receive(ctx context.Context) (*message.Message, error)
	// ReceivingMessageCount reports the downstream backlog depth. It is meant
	// for diagnostics and backpressure decisions.
	ReceivingMessageCount(ctx context.Context) (int, error)
	// EmptyDownStream discards every queued downstream entry, undecodable
	// ones included.
	EmptyDownStream(ctx context.Context) error
	// Name returns the logical endpoint name.
	Name() string
	// Open connects the transport. It is idempotent.
	Open(ctx context.Context) error
	// Close releases the transport and wakes blocked receivers.
	Close() error
}
