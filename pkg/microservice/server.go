// Package microservice provides the process-level plumbing shared by the
// rservice binaries: common configuration and a small diagnostics HTTP server.
package microservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/rs/zerolog"
)

// BaseConfig holds common configuration fields for all services.
type BaseConfig struct {
	LogLevel    string `yaml:"log_level"`
	HTTPPort    string `yaml:"http_port"`
	ServiceName string `yaml:"service_name"`
	// ShutdownTimeout bounds the graceful stop on SIGINT/SIGTERM.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Level returns the zerolog level named by LogLevel, defaulting to info.
func (c BaseConfig) Level() zerolog.Level {
	level, err := zerolog.ParseLevel(c.LogLevel)
	if err != nil || c.LogLevel == "" {
		return zerolog.InfoLevel
	}
	return level
}

// QueueStatus is one entry of the /queues report.
type QueueStatus struct {
	Name    string `json:"name"`
	Backlog int    `json:"backlog"`
	Error   string `json:"error,omitempty"`
}

// BaseServer serves /healthz and /queues on HTTPPort.
type BaseServer struct {
	Logger     zerolog.Logger
	HTTPPort   string
	httpServer *http.Server
	mux        *http.ServeMux
	actualAddr string
	mu         sync.RWMutex
	queues     map[string]queue.MessageQueue
}

// NewBaseServer creates and initializes a new BaseServer.
func NewBaseServer(logger zerolog.Logger, httpPort string) *BaseServer {
	mux := http.NewServeMux()
	s := &BaseServer{
		Logger:   logger.With().Str("component", "DiagnosticsServer").Logger(),
		HTTPPort: httpPort,
		mux:      mux,
		httpServer: &http.Server{
			Addr:              httpPort,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		queues: make(map[string]queue.MessageQueue),
	}
	mux.HandleFunc("/healthz", HealthzHandler)
	mux.HandleFunc("/queues", s.queuesHandler)
	return s
}

// RegisterQueue adds q to the /queues report, replacing any queue of the
// same name.
func (s *BaseServer) RegisterQueue(q queue.MessageQueue) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queues[q.Name()] = q
}

// Start initiates the HTTP server in a background goroutine.
func (s *BaseServer) Start() error {
	listener, err := net.Listen("tcp", s.HTTPPort)
	if err != nil {
		return fmt.Errorf("failed to listen on port %s: %w", s.HTTPPort, err)
	}

	s.mu.Lock()
	s.actualAddr = listener.Addr().String()
	s.mu.Unlock()

	s.Logger.Info().Str("address", s.actualAddr).Msg("HTTP server starting to listen")

	go func() {
		if err := s.httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.Logger.Error().Err(err).Msg("HTTP server failed")
		}
	}()
	return nil
}

// Shutdown gracefully stops the HTTP server, respecting the provided context's deadline.
func (s *BaseServer) Shutdown(ctx context.Context) error {
	s.Logger.Info().Msg("Shutting down HTTP server...")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.Logger.Error().Err(err).Msg("Error during HTTP server shutdown.")
		return err
	}
	s.Logger.Info().Msg("HTTP server stopped.")
	return nil
}

// GetHTTPPort returns the port the server is listening on, e.g. ":8080".
func (s *BaseServer) GetHTTPPort() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, port, err := net.SplitHostPort(s.actualAddr)
	if err != nil {
		return s.HTTPPort
	}
	return ":" + port
}

// Mux returns the underlying ServeMux.
func (s *BaseServer) Mux() *http.ServeMux {
	return s.mux
}

// Queues reports the backlog depth of every registered queue, sorted by name.
func (s *BaseServer) Queues(ctx context.Context) []QueueStatus {
	s.mu.RLock()
	queues := make([]queue.MessageQueue, 0, len(s.queues))
	for _, q := range s.queues {
		queues = append(queues, q)
	}
	s.mu.RUnlock()

	report := make([]QueueStatus, 0, len(queues))
	for _, q := range queues {
		st := QueueStatus{Name: q.Name()}
		n, err := q.ReceivingMessageCount(ctx)
		if err != nil {
			st.Error = err.Error()
		}
		st.Backlog = n
		report = append(report, st)
	}
	sort.Slice(report, func(i, j int) bool { return report[i].Name < report[j].Name })
	return report
}

func (s *BaseServer) queuesHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.Queues(ctx)); err != nil {
		s.Logger.Warn().Err(err).Msg("Failed to write queue report.")
	}
}

// HealthzHandler responds to health check probes.
func HealthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
