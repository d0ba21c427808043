package mqttqueue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/illmade-knight/go-rservice/pkg/queue/mqttqueue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(id int32) *message.Message {
	m := message.New()
	m.SetType(message.TypeRequest)
	m.SetID(id)
	return m
}

func newTestQueue(t *testing.T, cfg *mqttqueue.Config) (*mqttqueue.Queue, *mockMqttClient) {
	t.Helper()
	client := &mockMqttClient{}
	q, err := mqttqueue.NewWithClientFactory(context.Background(), cfg, client.factory, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = q.Close() })
	return q, client
}

func TestConfig_Topics(t *testing.T) {
	cfg := mqttqueue.LoadConfigWithEnv("motion")

	up, down := cfg.Topics()
	assert.Equal(t, "motion/up", up)
	assert.Equal(t, "motion/down", down)

	cfg.Peer = true
	up, down = cfg.Topics()
	assert.Equal(t, "motion/down", up)
	assert.Equal(t, "motion/up", down)
}

func TestLoadConfigWithEnv(t *testing.T) {
	t.Setenv(mqttqueue.MqttBrokerURL, "tls://broker:8883")
	t.Setenv(mqttqueue.MqttUsername, "user")
	t.Setenv(mqttqueue.MqttPassword, "secret")
	t.Setenv(mqttqueue.MqttSkipVerify, "true")
	t.Setenv(mqttqueue.MqttKeepAliveSeconds, "30")
	t.Setenv(mqttqueue.MqttConnectTimeoutSeconds, "bad")

	cfg := mqttqueue.LoadConfigWithEnv("motion")

	assert.Equal(t, "tls://broker:8883", cfg.BrokerURL)
	assert.Equal(t, "user", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
	assert.True(t, cfg.InsecureSkipVerify)
	assert.Equal(t, 30*time.Second, cfg.KeepAlive)
	assert.Equal(t, 10*time.Second, cfg.ConnectTimeout, "unparsable value keeps the default")
	assert.Equal(t, byte(1), cfg.QoS)
	assert.Equal(t, "motion", cfg.Name)
}

func TestMqttQueue_OpenAndReceive(t *testing.T) {
	// --- Arrange ---
	cfg := mqttqueue.LoadConfigWithEnv("motion")
	q, client := newTestQueue(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	// --- Act ---
	require.Equal(t, "motion/down", client.subscribedTopic)
	client.deliver("motion/down", queue.NewCodec(nil).Encode(request(7)))
	client.deliver("motion/down", []byte{0xff})

	// --- Assert ---
	n, err := q.ReceivingMessageCount(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	got, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(7), got.ID())
	assert.Equal(t, message.TypeRequest, got.Type())

	_, err = q.Receive(ctx)
	assert.ErrorIs(t, err, errs.ErrDataLoss)
	assert.True(t, q.IsConnected())
}

func TestMqttQueue_Send(t *testing.T) {
	cfg := mqttqueue.LoadConfigWithEnv("motion")
	cfg.Peer = true
	q, client := newTestQueue(t, cfg)

	require.NoError(t, q.Send(context.Background(), request(3)))

	require.Equal(t, 1, client.publishCount())
	sent := client.published[0]
	assert.Equal(t, "motion/down", sent.topic)
	assert.Equal(t, byte(1), sent.qos)
	decoded, err := queue.NewCodec(nil).Decode(sent.payload)
	require.NoError(t, err)
	assert.Equal(t, int32(3), decoded.ID())
}

func TestMqttQueue_NonBlockingSendInFlightLimit(t *testing.T) {
	// --- Arrange ---
	cfg := mqttqueue.LoadConfigWithEnv("busy")
	cfg.Capacity = 1
	cfg.Blocking = false
	q, client := newTestQueue(t, cfg)
	client.mu.Lock()
	client.holdPublish = true
	client.mu.Unlock()

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() { first <- q.Send(firstCtx, request(1)) }()
	require.Eventually(t, func() bool { return client.publishCount() == 1 }, time.Second, 5*time.Millisecond)

	// --- Act ---
	err := q.Send(context.Background(), request(2))

	// --- Assert ---
	assert.ErrorIs(t, err, errs.ErrResourceExhausted)
	cancelFirst()
	select {
	case err := <-first:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("pending send did not honour its context")
	}
}

func TestMqttQueue_BlockingSendHonoursContext(t *testing.T) {
	cfg := mqttqueue.LoadConfigWithEnv("slow")
	cfg.Capacity = 1
	q, client := newTestQueue(t, cfg)
	client.mu.Lock()
	client.holdPublish = true
	client.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	t.Cleanup(cancel)

	err := q.Send(ctx, request(1))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestMqttQueue_EmptyDownStream(t *testing.T) {
	cfg := mqttqueue.LoadConfigWithEnv("drain")
	q, client := newTestQueue(t, cfg)
	ctx := context.Background()
	for i := int32(0); i < 3; i++ {
		client.deliver("drain/down", queue.NewCodec(nil).Encode(request(i)))
	}

	require.NoError(t, q.EmptyDownStream(ctx))

	n, err := q.ReceivingMessageCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMqttQueue_FullBacklogDoesNotBlockDelivery(t *testing.T) {
	// --- Arrange ---
	cfg := mqttqueue.LoadConfigWithEnv("stalled")
	cfg.Capacity = 2
	q, client := newTestQueue(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	// --- Act ---
	delivered := make(chan struct{})
	go func() {
		defer close(delivered)
		for i := int32(0); i < 50; i++ {
			client.deliver("stalled/down", queue.NewCodec(nil).Encode(request(i)))
		}
	}()

	// --- Assert ---
	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("the message handler blocked on a full backlog")
	}
	assert.Positive(t, q.Dropped())

	require.NoError(t, q.EmptyDownStream(ctx))
	time.Sleep(50 * time.Millisecond)
	n, err := q.ReceivingMessageCount(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "messages queued before the drain must not reach the backlog")

	client.deliver("stalled/down", queue.NewCodec(nil).Encode(request(99)))
	got, err := q.Receive(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(99), got.ID())
}

func TestMqttQueue_ConnectFailure(t *testing.T) {
	cfg := mqttqueue.LoadConfigWithEnv("offline")
	client := &mockMqttClient{connectErr: errors.New("connection refused")}

	_, err := mqttqueue.NewWithClientFactory(context.Background(), cfg, client.factory, zerolog.Nop())

	assert.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestMqttQueue_SubscribeFailure(t *testing.T) {
	cfg := mqttqueue.LoadConfigWithEnv("denied")
	client := &mockMqttClient{subscribeErr: errors.New("not authorized")}

	_, err := mqttqueue.NewWithClientFactory(context.Background(), cfg, client.factory, zerolog.Nop())

	assert.ErrorIs(t, err, errs.ErrUnavailable)
	assert.True(t, client.disconnectCalled)
}

func TestMqttQueue_NotOpened(t *testing.T) {
	cfg := mqttqueue.LoadConfigWithEnv("lazy")
	cfg.OpenOnCreate = false
	q, _ := newTestQueue(t, cfg)

	_, err := q.ReceivingMessageCount(context.Background())
	assert.ErrorIs(t, err, errs.ErrFailedPrecondition)
	assert.ErrorIs(t, q.Send(context.Background(), request(1)), errs.ErrFailedPrecondition)
	assert.False(t, q.IsConnected())
}

func TestMqttQueue_Close(t *testing.T) {
	// --- Arrange ---
	cfg := mqttqueue.LoadConfigWithEnv("closing")
	q, client := newTestQueue(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	received := make(chan error, 1)
	go func() {
		_, err := q.Receive(ctx)
		received <- err
	}()
	time.Sleep(20 * time.Millisecond)

	// --- Act ---
	require.NoError(t, q.Close())

	// --- Assert ---
	select {
	case err := <-received:
		assert.ErrorIs(t, err, errs.ErrUnavailable)
	case <-time.After(time.Second):
		t.Fatal("Receive did not return after Close")
	}
	assert.True(t, client.disconnectCalled)
	assert.Equal(t, []string{"closing/down"}, client.unsubscribed)
	assert.ErrorIs(t, q.Send(ctx, request(1)), errs.ErrUnavailable)
	assert.ErrorIs(t, q.Open(ctx), errs.ErrUnavailable)
	assert.NoError(t, q.Close(), "Close is idempotent")
}

func TestNew_Validation(t *testing.T) {
	_, err := mqttqueue.New(context.Background(), &mqttqueue.Config{}, zerolog.Nop())
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)

	cfg := mqttqueue.LoadConfigWithEnv("x")
	cfg.BrokerURL = ""
	_, err = mqttqueue.New(context.Background(), cfg, zerolog.Nop())
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}
