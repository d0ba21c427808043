// Command rservice runs rservice middleware services: an echo service over
// any of the supported transports and a HID service publishing input device
// state.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
)

// CLI is the command line of rservice.
var CLI struct {
	Globals

	Echo EchoCommand `cmd:"" help:"Run an echo service that answers every request."`
	HID  HIDCommand  `cmd:"" name:"hid" help:"Publish the state of an input device."`
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	kongCtx := kong.Parse(
		&CLI,
		kong.Name("rservice"),
		kong.BindTo(ctx, (*context.Context)(nil)),
		kong.Bind(&CLI.Globals),
		kong.ConfigureHelp(kong.HelpOptions{
			Tree:    true,
			Compact: true,
		}),
		kong.Description(`message-oriented services over pluggable transports

Services exchange typed key/value messages over a named queue pair. The
transport is chosen per run: an in-process pipe, Redis lists, NATS subjects,
MQTT topics, Google Cloud Pub/Sub, POSIX message queues or a framed serial
line.`),
	)
	err := kongCtx.Run()
	kongCtx.FatalIfErrorf(err)
}
