package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/illmade-knight/go-rservice/pkg/device"
	"github.com/illmade-knight/go-rservice/pkg/device/hid"
	"github.com/illmade-knight/go-rservice/pkg/microservice"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/illmade-knight/go-rservice/pkg/worker"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"
)

// HIDCommand publishes input device state.
type HIDCommand struct {
	Device    string `arg:"" optional:"" help:"Kernel name of the input device, e.g. \"Logitech Gamepad F310\". Defaults to hid.name of the config."`
	Path      string `help:"Read this event node instead of looking the device up by name."`
	Transport string `default:"pipe" enum:"pipe,redis,nats,mqtt,pubsub,posixmq,serial" help:"Transport: ${enum}."`
	Name      string `default:"hid" help:"Service and queue name."`
	List      bool   `help:"List the input devices and exit."`
}

// Run starts the HID service and blocks until ctx ends.
func (c *HIDCommand) Run(ctx context.Context, g *Globals) error {
	cfg, err := g.load(c.Name)
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	if c.List {
		return listDevices()
	}
	devCfg := device.Config{hid.KeyHIDName: c.Device, hid.KeyDevicePath: c.Path}
	if c.Device == "" && c.Path == "" && cfg.HID.Name == "" {
		return fmt.Errorf("name a device or pass --path (see --list)")
	}

	dev := hid.NewDevice(cfg.HID, logger)
	if err := dev.ReConfig(devCfg); err != nil {
		return err
	}
	defer func() {
		if err := dev.DeConfig(); err != nil {
			logger.Warn().Err(err).Msg("Error releasing HID device.")
		}
	}()

	tr := newTransports(cfg, logger)
	q, err := tr.open(ctx, c.Transport, false)
	if err != nil {
		return fmt.Errorf("open %s transport: %w", c.Transport, err)
	}
	defer func() { _ = q.Close() }()

	svc, err := hid.NewService(worker.New(cfg.Worker, logger), q, dev, logger)
	if err != nil {
		return err
	}
	server := microservice.NewBaseServer(logger, cfg.HTTPPort)
	server.RegisterQueue(q)
	if err := server.Start(); err != nil {
		return err
	}

	// Nothing else reads a pipe, so log what the service publishes.
	monitorDone := make(chan struct{})
	if c.Transport == TransportPipe {
		peer, err := tr.open(ctx, TransportPipe, true)
		if err != nil {
			return multierr.Append(err, shutdownServer(server, cfg.ShutdownTimeout))
		}
		go monitor(ctx, peer, logger, monitorDone)
	} else {
		close(monitorDone)
	}

	if err := svc.Start(ctx, false); err != nil {
		return multierr.Append(err, shutdownServer(server, cfg.ShutdownTimeout))
	}
	logger.Info().Str("path", dev.Path()).Str("transport", c.Transport).Msg("HID service running.")

	<-ctx.Done()
	logger.Info().Msg("Shutdown signal received.")
	err = multierr.Combine(svc.Stop(), shutdownServer(server, cfg.ShutdownTimeout))
	<-monitorDone
	logger.Info().Uint64("published", svc.Published()).Msg("HID service stopped.")
	return err
}

func monitor(ctx context.Context, q queue.MessageQueue, logger zerolog.Logger, done chan struct{}) {
	defer close(done)
	for {
		msg, err := q.Receive(ctx)
		if err != nil {
			return
		}
		logger.Info().Object("event", msg).Msg("HID state")
	}
}

func listDevices() error {
	devices, err := hid.ListDevices()
	if err != nil {
		return err
	}
	nodes := make([]string, 0, len(devices))
	for node := range devices {
		nodes = append(nodes, node)
	}
	sort.Strings(nodes)
	for _, node := range nodes {
		fmt.Printf("%-20s %s\n", node, devices[node])
	}
	return nil
}
