package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/microservice"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/illmade-knight/go-rservice/pkg/service"
	"github.com/illmade-knight/go-rservice/pkg/worker"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// EchoCommand runs an EchoService.
type EchoCommand struct {
	Transport string        `arg:"" optional:"" default:"pipe" enum:"pipe,redis,nats,mqtt,pubsub,posixmq,serial" help:"Transport: ${enum}."`
	Name      string        `default:"echo" help:"Service and queue name."`
	Ping      int           `help:"Send N requests from a peer endpoint, report the replies and exit."`
	Timeout   time.Duration `default:"5s" help:"Per-reply wait of the ping."`
}

// Run starts the service and blocks until ctx ends or the ping finishes.
func (c *EchoCommand) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.load(c.Name)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	tr := newTransports(cfg, logger)
	q, err := tr.open(ctx, c.Transport, false)
	if err != nil {
		return fmt.Errorf("open %s transport: %w", c.Transport, err)
	}
	defer func() {
		if err := q.Close(); err != nil {
			logger.Warn().Err(err).Msg("Error closing queue.")
		}
	}()

	echo, err := service.NewEchoService(worker.New(cfg.Worker, logger), q, logger)
	if err != nil {
		return err
	}
	server := microservice.NewBaseServer(logger, cfg.HTTPPort)
	server.RegisterQueue(q)
	if err := server.Start(); err != nil {
		return err
	}
	if err := echo.Start(ctx, false); err != nil {
		return multierr.Append(err, shutdownServer(server, cfg.ShutdownTimeout))
	}
	logger.Info().Str("transport", c.Transport).Str("queue", q.Name()).Msg("Echo service running.")

	var runErr error
	if c.Ping > 0 {
		runErr = c.runPing(ctx, tr, logger)
	} else {
		<-ctx.Done()
		logger.Info().Msg("Shutdown signal received.")
	}

	err = multierr.Combine(runErr, echo.Stop(), shutdownServer(server, cfg.ShutdownTimeout))
	logger.Info().Uint64("replied", echo.Replied()).Uint64("dropped", echo.Dropped()).Msg("Echo service stopped.")
	return err
}

func (c *EchoCommand) runPing(ctx context.Context, tr *transports, logger zerolog.Logger) error {
	peer, err := tr.open(ctx, c.Transport, true)
	if err != nil {
		return fmt.Errorf("open ping endpoint: %w", err)
	}
	defer func() { _ = peer.Close() }()
	return ping(ctx, peer, c.Ping, c.Timeout, logger)
}

// ping sends n requests through peer and checks that each is answered with a
// response carrying its id.
func ping(ctx context.Context, peer queue.MessageQueue, n int, timeout time.Duration, logger zerolog.Logger) error {
	for i := 1; i <= n; i++ {
		req := message.New()
		req.SetType(message.TypeRequest)
		req.SetSource("ping")
		req.SetDestination(peer.Name())
		req.SetID(int32(i))
		if err := req.SetInt("seq", int32(i)); err != nil {
			return err
		}

		start := time.Now()
		if err := peer.Send(ctx, req); err != nil {
			return fmt.Errorf("ping %d: send: %w", i, err)
		}
		replyCtx, cancel := context.WithTimeout(ctx, timeout)
		reply, err := peer.Receive(replyCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("ping %d: receive: %w", i, err)
		}
		if reply.Type() != message.TypeResponse || reply.ID() != int32(i) {
			return fmt.Errorf("ping %d: unexpected reply type %s id %d", i, reply.Type(), reply.ID())
		}
		logger.Info().Int("ping", i).Dur("rtt", time.Since(start)).Object("reply", reply).Msg("Ping answered.")
	}
	return nil
}

func shutdownServer(server *microservice.BaseServer, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
