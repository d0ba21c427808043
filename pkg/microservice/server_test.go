package microservice_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/illmade-knight/go-rservice/pkg/message"
	"github.com/illmade-knight/go-rservice/pkg/microservice"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/illmade-knight/go-rservice/pkg/queue/pipequeue"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBaseServer_Healthz(t *testing.T) {
	server := microservice.NewBaseServer(zerolog.Nop(), ":0")
	rec := httptest.NewRecorder()

	server.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestBaseServer_Queues(t *testing.T) {
	// --- Arrange ---
	ctx := context.Background()
	reg := pipequeue.NewRegistry()
	motion, err := pipequeue.New(reg, queue.NewDefaultConfig("motion"), nil, zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = motion.Close() })
	lazyCfg := queue.NewDefaultConfig("audio")
	lazyCfg.OpenOnCreate = false
	lazy, err := pipequeue.New(reg, lazyCfg, nil, zerolog.Nop())
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		require.NoError(t, motion.Peer().Send(ctx, message.New()))
	}
	server := microservice.NewBaseServer(zerolog.Nop(), ":0")
	server.RegisterQueue(motion)
	server.RegisterQueue(lazy)

	// --- Act ---
	rec := httptest.NewRecorder()
	server.Mux().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/queues", nil))

	// --- Assert ---
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var report []microservice.QueueStatus
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Len(t, report, 2)
	assert.Equal(t, "audio", report[0].Name)
	assert.NotEmpty(t, report[0].Error, "unopened queue reports its error")
	assert.Equal(t, microservice.QueueStatus{Name: "motion", Backlog: 2}, report[1])
}

func TestBaseServer_StartShutdown(t *testing.T) {
	server := microservice.NewBaseServer(zerolog.Nop(), "127.0.0.1:0")
	require.NoError(t, server.Start())
	port := server.GetHTTPPort()
	require.NotEqual(t, ":0", port)

	resp, err := http.Get("http://127.0.0.1" + port + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, "OK", string(body))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	assert.NoError(t, server.Shutdown(ctx))
}

func TestBaseConfig_Level(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, microservice.BaseConfig{LogLevel: "debug"}.Level())
	assert.Equal(t, zerolog.InfoLevel, microservice.BaseConfig{LogLevel: "loud"}.Level())
	assert.Equal(t, zerolog.InfoLevel, microservice.BaseConfig{}.Level())
}
