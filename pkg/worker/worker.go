// Package worker provides the execution unit bound to a service: a goroutine
// that repeatedly invokes an injected work function until it is told to stop.
package worker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// State is the lifecycle state of a Thread.
type State int32

const (
	StateIdle State = iota
	StateRunning
	// StateStopping is held while a stop request waits for the work
	// goroutine, and after a stop that timed out.
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "idle"
	}
}

// WorkFunc is one iteration of work. ctx is cancelled when the thread is
// asked to stop; long blocking calls inside the work should honour it.
type WorkFunc func(ctx context.Context) error

// ErrDone may be returned by a WorkFunc to end the loop; the thread then
// returns to idle on its own.
var ErrDone = errors.New("worker: done")

// Thread is the abstract execution unit a service is bound to.
type Thread interface {
	// SetWork binds the function run on the next Start.
	SetWork(work WorkFunc)
	// Start launches the work loop, or a single iteration when oneShot is set.
	// Starting a running thread stops it first; at most one work goroutine
	// exists at any time.
	Start(oneShot bool) error
	// Stop requests termination and waits, bounded, for the work goroutine
	// to return. An in-flight iteration is allowed to complete.
	Stop() error
	// State returns the current lifecycle state.
	State() State
	// IsRunning reports whether a work goroutine is active.
	IsRunning() bool
}

// Config holds the settings of a Routine.
type Config struct {
	// Name identifies the thread in logs.
	Name string `yaml:"name"`
	// StopTimeout bounds how long Stop waits for the work goroutine.
	StopTimeout time.Duration `yaml:"stop_timeout"`
	// ErrorBackoff is the pause after an iteration that returned an error.
	ErrorBackoff time.Duration `yaml:"error_backoff"`
}

// Env constants for overriding worker settings.
const (
	WorkerStopTimeout  = "WORKER_STOP_TIMEOUT"
	WorkerErrorBackoff = "WORKER_ERROR_BACKOFF"
)

// NewDefaultConfig returns a config with sensible defaults, allowing
// overrides from the environment.
func NewDefaultConfig(name string) Config {
	cfg := Config{
		Name:         name,
		StopTimeout:  5 * time.Second,
		ErrorBackoff: 100 * time.Millisecond,
	}
	if st := os.Getenv(WorkerStopTimeout); st != "" {
		if val, err := time.ParseDuration(st); err == nil && val > 0 {
			cfg.StopTimeout = val
		}
	}
	if eb := os.Getenv(WorkerErrorBackoff); eb != "" {
		if val, err := time.ParseDuration(eb); err == nil && val >= 0 {
			cfg.ErrorBackoff = val
		}
	}
	return cfg
}

// Routine is the goroutine backed Thread.
type Routine struct {
	cfg    Config
	logger zerolog.Logger

	mu     sync.Mutex
	work   WorkFunc
	cancel context.CancelFunc
	done   chan struct{}

	state      *atomic.Int32
	iterations *atomic.Uint64
}

var _ Thread = (*Routine)(nil)

// New creates an idle Routine.
func New(cfg Config, logger zerolog.Logger) *Routine {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 5 * time.Second
	}
	if cfg.ErrorBackoff < 0 {
		cfg.ErrorBackoff = 0
	}
	return &Routine{
		cfg:        cfg,
		logger:     logger.With().Str("component", "WorkerThread").Str("worker", cfg.Name).Logger(),
		state:      atomic.NewInt32(int32(StateIdle)),
		iterations: atomic.NewUint64(0),
	}
}

// SetWork binds work. A running loop keeps the function it was started with.
func (r *Routine) SetWork(work WorkFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.work = work
}

// Start launches the work loop.
func (r *Routine) Start(oneShot bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.work == nil {
		return fmt.Errorf("worker %s has no work bound: %w", r.cfg.Name, errs.ErrFailedPrecondition)
	}
	if err := r.stopLocked(); err != nil {
		return fmt.Errorf("restart worker %s: %w", r.cfg.Name, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	r.cancel = cancel
	r.done = done
	r.state.Store(int32(StateRunning))

	logger := r.logger.With().Str("run_id", uuid.NewString()).Bool("one_shot", oneShot).Logger()
	logger.Info().Msg("Worker thread starting.")
	go r.run(ctx, done, r.work, oneShot, logger)
	return nil
}

// Stop requests termination and waits up to StopTimeout.
func (r *Routine) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stopLocked()
}

// State returns the current lifecycle state.
func (r *Routine) State() State { return State(r.state.Load()) }

// IsRunning reports whether a work goroutine is active.
func (r *Routine) IsRunning() bool { return r.State() != StateIdle }

// Iterations returns the number of completed work invocations since creation.
func (r *Routine) Iterations() uint64 { return r.iterations.Load() }

// stopLocked must be called with mu held.
func (r *Routine) stopLocked() error {
	if r.done == nil {
		return nil
	}
	select {
	case <-r.done:
		r.reset()
		return nil
	default:
	}

	r.state.Store(int32(StateStopping))
	r.cancel()

	timer := time.NewTimer(r.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-r.done:
		r.reset()
		r.logger.Info().Msg("Worker thread stopped.")
		return nil
	case <-timer.C:
		r.logger.Error().Dur("stop_timeout", r.cfg.StopTimeout).Msg("Timeout waiting for worker thread to stop.")
		return fmt.Errorf("worker %s did not stop within %s: %w", r.cfg.Name, r.cfg.StopTimeout, errs.ErrDeadlineExceeded)
	}
}

func (r *Routine) reset() {
	r.done = nil
	r.cancel = nil
	r.state.Store(int32(StateIdle))
}

// run is the work loop. Cancellation is observed between iterations only.
func (r *Routine) run(ctx context.Context, done chan struct{}, work WorkFunc, oneShot bool, logger zerolog.Logger) {
	defer close(done)
	defer r.state.Store(int32(StateIdle))

	for {
		if ctx.Err() != nil {
			logger.Debug().Msg("Worker thread observed stop request.")
			return
		}

		err := r.invoke(ctx, work)
		r.iterations.Inc()

		switch {
		case oneShot:
			if err != nil && !errors.Is(err, ErrDone) {
				logger.Warn().Err(err).Msg("One-shot work returned an error.")
			}
			logger.Debug().Msg("One-shot work finished, worker thread going idle.")
			return
		case errors.Is(err, ErrDone):
			logger.Info().Msg("Work signalled completion, worker thread going idle.")
			return
		case err != nil && ctx.Err() == nil:
			logger.Warn().Err(err).Msg("Work iteration failed.")
			if !r.backoff(ctx) {
				return
			}
		}
	}
}

// invoke runs one iteration, turning a panic into an error so a faulty
// iteration does not take the process down.
func (r *Routine) invoke(ctx context.Context, work WorkFunc) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("work panicked: %v", p)
		}
	}()
	return work(ctx)
}

// backoff pauses after a failed iteration; it returns false when ctx ended.
func (r *Routine) backoff(ctx context.Context) bool {
	if r.cfg.ErrorBackoff == 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(r.cfg.ErrorBackoff)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
