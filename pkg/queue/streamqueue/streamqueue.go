// Package streamqueue implements queue.MessageQueue over a byte stream such as
// a serial line opened with go.bug.st/serial or a TCP connection. Messages are framed with a
// protocol.StreamProtocol so a receiver can find frame boundaries in
// concatenated or torn reads and resynchronize after line noise.
//
// A reader goroutine cuts incoming bytes into frames and buffers them. Send is
// safe for concurrent producers: writes are serialized so frames never
// interleave on the wire.
package streamqueue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/protocol"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

const (
	readChunk    = 4096
	closeTimeout = 5 * time.Second
)

// writeDeadliner is implemented by net.Conn and *os.File.
type writeDeadliner interface {
	SetWriteDeadline(t time.Time) error
}

// Queue frames messages over an io.ReadWriteCloser.
type Queue struct {
	rwc    io.ReadWriteCloser
	cfg    queue.Config
	out    queue.Codec
	in     queue.Codec
	framer *protocol.Framer
	logger zerolog.Logger

	writeMu sync.Mutex

	mu      sync.Mutex
	backlog *queue.Backlog
	cancel  context.CancelFunc
	done    chan struct{}
	closed  bool
}

var _ queue.MessageQueue = (*Queue)(nil)

// New wraps rwc. The reader goroutine starts on Open, or in New when
// cfg.OpenOnCreate is set. A nil proto selects protocol.NewChecked(0).
func New(rwc io.ReadWriteCloser, cfg queue.Config, proto protocol.StreamProtocol, logger zerolog.Logger) (*Queue, error) {
	if rwc == nil {
		return nil, fmt.Errorf("stream queue needs a stream: %w", errs.ErrInvalidArgument)
	}
	if proto == nil {
		proto = protocol.NewChecked(0)
	}
	cfg = cfg.WithDefaults()
	q := &Queue{
		rwc:    rwc,
		cfg:    cfg,
		out:    queue.NewCodec(proto),
		in:     queue.NewCodec(nil),
		framer: protocol.NewFramer(proto),
		logger: logger.With().Str("component", "StreamQueue").Str("queue", cfg.Name).Logger(),
	}
	if cfg.OpenOnCreate {
		if err := q.Open(context.Background()); err != nil {
			return nil, err
		}
	}
	return q, nil
}

// Dial connects to addr and wraps the connection.
func Dial(ctx context.Context, network, addr string, cfg queue.Config, proto protocol.StreamProtocol, logger zerolog.Logger) (*Queue, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("dial %s %s: %v: %w", network, addr, err, errs.ErrUnavailable)
	}
	q, err := New(conn, cfg, proto, logger)
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	return q, nil
}

// Name returns the endpoint name.
func (q *Queue) Name() string { return q.cfg.Name }

// Open starts the reader goroutine. It is idempotent.
func (q *Queue) Open(_ context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return fmt.Errorf("stream %s is closed: %w", q.cfg.Name, errs.ErrUnavailable)
	}
	if q.backlog != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	q.backlog = queue.NewBacklog(q.cfg.Capacity)
	q.cancel = cancel
	q.done = make(chan struct{})
	go q.readLoop(ctx, q.backlog, q.done)
	q.logger.Info().Msg("Stream queue opened.")
	return nil
}

// Close closes the stream, stops the reader and wakes blocked receivers.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	backlog, cancel, done := q.backlog, q.cancel, q.done
	q.mu.Unlock()

	var err error
	if cancel != nil {
		cancel()
	}
	err = multierr.Append(err, q.rwc.Close())
	if backlog != nil {
		backlog.Close()
	}
	if done != nil {
		select {
		case <-done:
		case <-time.After(closeTimeout):
			err = multierr.Append(err, fmt.Errorf("stream reader did not stop within %s: %w", closeTimeout, errs.ErrDeadlineExceeded))
		}
	}
	q.logger.Info().Msg("Stream queue closed.")
	return err
}

// Send frames msg and writes it in one call. A deadline on ctx is applied to
// the write when the stream supports write deadlines.
func (q *Queue) Send(ctx context.Context, msg *message.Message) error {
	if _, err := q.downstream(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	frame := q.out.Encode(msg)

	q.writeMu.Lock()
	defer q.writeMu.Unlock()
	if d, ok := q.rwc.(writeDeadliner); ok {
		if deadline, has := ctx.Deadline(); has {
			_ = d.SetWriteDeadline(deadline)
			defer func() { _ = d.SetWriteDeadline(time.Time{}) }()
		}
	}
	if _, err := q.rwc.Write(frame); err != nil {
		if errors.Is(err, os.ErrDeadlineExceeded) {
			return fmt.Errorf("write frame: %w", context.DeadlineExceeded)
		}
		return fmt.Errorf("write frame: %v: %w", err, errs.ErrUnavailable)
	}
	return nil
}

// Receive waits for the next frame. A frame that failed its check is
// reported as errs.ErrDataLoss and is not delivered again.
func (q *Queue) Receive(ctx context.Context) (*message.Message, error) {
	b, err := q.downstream()
	if err != nil {
		return nil, err
	}
	entry, err := b.Pop(ctx)
	if err != nil {
		return nil, err
	}
	return q.in.DecodeEntry(entry)
}

// ReceivingMessageCount returns the number of buffered frames.
func (q *Queue) ReceivingMessageCount(_ context.Context) (int, error) {
	b, err := q.downstream()
	if err != nil {
		return 0, err
	}
	return b.Len(), nil
}

// EmptyDownStream discards buffered frames, corrupt ones included, and the
// frames already read but not yet buffered. Bytes of a frame still being
// received are kept.
func (q *Queue) EmptyDownStream(_ context.Context) error {
	b, err := q.downstream()
	if err != nil {
		return err
	}
	if n := b.Drain(); n > 0 {
		q.logger.Debug().Int("dropped", n).Msg("Discarded stale frames.")
	}
	return nil
}

func (q *Queue) downstream() (*queue.Backlog, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, fmt.Errorf("stream %s is closed: %w", q.cfg.Name, errs.ErrUnavailable)
	}
	if q.backlog == nil {
		return nil, fmt.Errorf("stream %s is not open: %w", q.cfg.Name, errs.ErrFailedPrecondition)
	}
	return q.backlog, nil
}

// readLoop feeds the framer until the stream ends. On end of stream the
// backlog is sealed so receivers get what was buffered before ErrUnavailable.
func (q *Queue) readLoop(ctx context.Context, backlog *queue.Backlog, done chan struct{}) {
	defer close(done)
	defer backlog.Seal()

	buf := make([]byte, readChunk)
	for {
		n, err := q.rwc.Read(buf)
		if n > 0 {
			gen := backlog.Generation()
			q.framer.Fill(buf[:n])
			if !q.drainFramer(ctx, backlog, gen) {
				return
			}
		}
		if err != nil {
			if ctx.Err() == nil {
				if errors.Is(err, io.EOF) || portClosed(err) {
					q.logger.Info().Msg("Stream ended.")
				} else {
					q.logger.Warn().Err(err).Msg("Stream read failed.")
				}
			}
			return
		}
	}
}

// drainFramer moves every complete frame into the backlog. Frames completed
// by bytes read before a drain are discarded. It returns false when the
// backlog refused an entry because the queue is shutting down.
func (q *Queue) drainFramer(ctx context.Context, backlog *queue.Backlog, gen uint64) bool {
	for {
		payload, status := q.framer.Next()
		var entry queue.Entry
		switch status {
		case protocol.StatusIncomplete:
			return true
		case protocol.StatusCorrupt:
			q.logger.Warn().Int("discarded_bytes", q.framer.Discarded()).Msg("Dropped frame failing its check code.")
			entry = queue.Entry{Err: fmt.Errorf("stream %s: corrupt frame: %w", q.cfg.Name, errs.ErrDataLoss)}
		default:
			entry = queue.Entry{Raw: payload}
		}
		if err := backlog.PushSince(ctx, gen, entry); err != nil {
			return false
		}
	}
}
