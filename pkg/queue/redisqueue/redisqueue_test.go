package redisqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/queue/redisqueue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Keys(t *testing.T) {
	cfg := redisqueue.LoadConfigWithEnv("motion")

	up, down := cfg.Keys()
	assert.Equal(t, "rservice:motion:up", up)
	assert.Equal(t, "rservice:motion:down", down)

	cfg.Peer = true
	up, down = cfg.Keys()
	assert.Equal(t, "rservice:motion:down", up)
	assert.Equal(t, "rservice:motion:up", down)
}

func TestLoadConfigWithEnv(t *testing.T) {
	t.Setenv(redisqueue.RedisAddr, "redis.internal:6380")
	t.Setenv(redisqueue.RedisDB, "3")
	t.Setenv(redisqueue.RedisKeyPrefix, "")

	cfg := redisqueue.LoadConfigWithEnv("arm")

	assert.Equal(t, "redis.internal:6380", cfg.Addr)
	assert.Equal(t, 3, cfg.DB)
	assert.Empty(t, cfg.KeyPrefix)
	assert.Equal(t, 5, cfg.ConnectRetries)
	assert.True(t, cfg.OpenOnCreate)
}

func TestQueue_NotOpened(t *testing.T) {
	cfg := redisqueue.LoadConfigWithEnv("lazy")
	cfg.OpenOnCreate = false
	q, err := redisqueue.New(context.Background(), cfg, zerolog.Nop())
	require.NoError(t, err)

	_, err = q.ReceivingMessageCount(context.Background())
	assert.ErrorIs(t, err, errs.ErrFailedPrecondition)

	require.NoError(t, q.Close())
	err = q.Send(context.Background(), message.New())
	assert.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestQueue_OpenUnreachable(t *testing.T) {
	cfg := redisqueue.LoadConfigWithEnv("nowhere")
	cfg.Addr = "127.0.0.1:1"
	cfg.ConnectRetries = 1
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	_, err := redisqueue.New(ctx, cfg, zerolog.Nop())

	assert.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestNew_RequiresName(t *testing.T) {
	_, err := redisqueue.New(context.Background(), &redisqueue.Config{}, zerolog.Nop())
	assert.ErrorIs(t, err, errs.ErrInvalidArgument)
}
