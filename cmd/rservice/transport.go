package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/protocol"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/illmade-knight/go-rservice/pkg/queue/mqttqueue"
	"github.com/illmade-knight/go-rservice/pkg/queue/natsqueue"
	"github.com/illmade-knight/go-rservice/pkg/queue/pipequeue"
	"github.com/illmade-knight/go-rservice/pkg/queue/pubsubqueue"
	"github.com/illmade-knight/go-rservice/pkg/queue/redisqueue"
	"github.com/illmade-knight/go-rservice/pkg/queue/streamqueue"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// Transport names accepted on the command line.
const (
	TransportPipe    = "pipe"
	TransportRedis   = "redis"
	TransportNATS    = "nats"
	TransportMQTT    = "mqtt"
	TransportPubsub  = "pubsub"
	TransportSerial  = "serial"
	TransportPosixMQ = "posixmq"
)

// endpoint is a queue together with the resources opened for it. Closing
// the endpoint releases them after the queue.
type endpoint struct {
	queue.MessageQueue
	closers []func() error
}

func (e *endpoint) Close() error {
	err := e.MessageQueue.Close()
	for _, c := range e.closers {
		err = multierr.Append(err, c())
	}
	return err
}

// transports opens the endpoints of one process. Pipe endpoints share the
// process-wide registry, so the peer of a pipe is its other end.
type transports struct {
	cfg    *FileConfig
	logger zerolog.Logger
	pipes  *pipequeue.Registry
	opened map[string]*pipequeue.Queue
}

func newTransports(cfg *FileConfig, logger zerolog.Logger) *transports {
	return &transports{
		cfg:    cfg,
		logger: logger,
		pipes:  pipequeue.NewRegistry(),
		opened: make(map[string]*pipequeue.Queue),
	}
}

// open returns the service endpoint of kind, or its peer when peer is set.
func (t *transports) open(ctx context.Context, kind string, peer bool) (queue.MessageQueue, error) {
	switch kind {
	case TransportPipe:
		return t.openPipe(peer)
	case TransportRedis:
		cfg := t.cfg.Redis
		cfg.Peer = peer
		return asQueue(redisqueue.New(ctx, &cfg, t.logger))
	case TransportNATS:
		cfg := t.cfg.NATS
		cfg.Peer = peer
		return asQueue(natsqueue.New(ctx, &cfg, t.logger))
	case TransportMQTT:
		cfg := t.cfg.MQTT
		cfg.Peer = peer
		return asQueue(mqttqueue.New(ctx, &cfg, t.logger))
	case TransportPubsub:
		return t.openPubsub(ctx, peer)
	case TransportPosixMQ:
		return t.openPosixMQ(peer)
	case TransportSerial:
		if peer {
			return nil, fmt.Errorf("the serial transport has no local peer: %w", errs.ErrInvalidArgument)
		}
		return t.openSerial(ctx)
	default:
		return nil, fmt.Errorf("unknown transport %q: %w", kind, errs.ErrInvalidArgument)
	}
}

func (t *transports) openPipe(peer bool) (queue.MessageQueue, error) {
	name := t.cfg.Queue.Name
	q, ok := t.opened[name]
	if !ok {
		var err error
		if q, err = pipequeue.New(t.pipes, t.cfg.Queue, nil, t.logger); err != nil {
			return nil, err
		}
		t.opened[name] = q
	}
	if peer {
		return q.Peer(), nil
	}
	return q, nil
}

func (t *transports) openPubsub(ctx context.Context, peer bool) (queue.MessageQueue, error) {
	cfg := t.cfg.Pubsub
	cfg.Peer = peer
	client, err := pubsubqueue.NewClient(ctx, &cfg)
	if err != nil {
		return nil, err
	}
	q, err := pubsubqueue.New(ctx, &cfg, client, t.logger)
	if err != nil {
		_ = client.Close()
		return nil, err
	}
	return &endpoint{MessageQueue: q, closers: []func() error{client.Close}}, nil
}

func (t *transports) openSerial(ctx context.Context) (queue.MessageQueue, error) {
	sc := t.cfg.Serial
	proto := protocol.NewChecked(sc.MaxPayload)
	switch {
	case sc.Address != "":
		return asQueue(streamqueue.Dial(ctx, "tcp", strings.TrimPrefix(sc.Address, "tcp://"), t.cfg.Queue, proto, t.logger))
	case sc.Device != "":
		return asQueue(streamqueue.OpenSerial(sc.Device, sc.SerialConfig, t.cfg.Queue, proto, t.logger))
	default:
		return nil, fmt.Errorf("serial transport needs a device or an address: %w", errs.ErrInvalidArgument)
	}
}

// asQueue keeps a failed constructor from yielding a non-nil interface
// holding a nil pointer.
func asQueue[Q queue.MessageQueue](q Q, err error) (queue.MessageQueue, error) {
	if err != nil {
		return nil, err
	}
	return q, nil
}
