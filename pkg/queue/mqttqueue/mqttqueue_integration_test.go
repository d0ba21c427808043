//go:build integration

package mqttqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/queue/mqttqueue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startMosquitto(t *testing.T, ctx context.Context) string {
	t.Helper()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "eclipse-mosquitto:2.0",
			ExposedPorts: []string{"1883/tcp"},
			Cmd:          []string{"mosquitto", "-c", "/mosquitto-no-auth.conf"},
			WaitingFor:   wait.ForListeningPort("1883/tcp"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = testcontainers.TerminateContainer(container)
	})
	endpoint, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	return "tcp://" + endpoint
}

func TestMqttQueue_Integration(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	t.Cleanup(cancel)
	broker := startMosquitto(t, ctx)

	cfg := mqttqueue.LoadConfigWithEnv("motion")
	cfg.BrokerURL = broker
	cfg.ClientIDPrefix = "integration-"
	svc, err := mqttqueue.New(ctx, cfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	peerCfg := *cfg
	peerCfg.Peer = true
	peer, err := mqttqueue.New(ctx, &peerCfg, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = peer.Close() })

	t.Run("peer to service keeps order", func(t *testing.T) {
		for i := int32(1); i <= 5; i++ {
			require.NoError(t, peer.Send(ctx, request(i)))
		}
		for i := int32(1); i <= 5; i++ {
			got, err := svc.Receive(ctx)
			require.NoError(t, err)
			assert.Equal(t, i, got.ID())
		}
	})

	t.Run("service to peer", func(t *testing.T) {
		reply := request(42)
		reply.SetType(message.TypeResponse)
		require.NoError(t, svc.Send(ctx, reply))

		got, err := peer.Receive(ctx)
		require.NoError(t, err)
		assert.Equal(t, int32(42), got.ID())
		assert.Equal(t, message.TypeResponse, got.Type())
	})
}
