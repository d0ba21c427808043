package device_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/illmade-knight/go-rservice/pkg/device"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestUpdated_SignalBeforeWait(t *testing.T) {
	u := device.NewUpdated()
	u.Signal()
	require.True(t, u.IsSet())

	err := u.Wait(context.Background())

	require.NoError(t, err)
	assert.False(t, u.IsSet(), "a successful wait consumes the flag")
}

func TestUpdated_WakesAllWaiters(t *testing.T) {
	// --- Arrange ---
	u := device.NewUpdated()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	t.Cleanup(cancel)

	const waiters = 3
	var started, finished sync.WaitGroup
	results := make(chan error, waiters)
	for i := 0; i < waiters; i++ {
		started.Add(1)
		finished.Add(1)
		go func() {
			defer finished.Done()
			started.Done()
			results <- u.Wait(ctx)
		}()
	}
	started.Wait()
	time.Sleep(20 * time.Millisecond)

	// --- Act ---
	// Each successful wait consumes the flag, so signal until all are served.
	for served := 0; served < waiters; {
		u.Signal()
		select {
		case err := <-results:
			require.NoError(t, err)
			served++
		case <-time.After(50 * time.Millisecond):
		}
	}

	// --- Assert ---
	finished.Wait()
}

func TestUpdated_WaitHonoursContext(t *testing.T) {
	defer goleak.VerifyNone(t)
	u := device.NewUpdated()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	err := u.Wait(ctx)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestUpdated_Reset(t *testing.T) {
	u := device.NewUpdated()
	u.Signal()
	u.Reset()
	assert.False(t, u.IsSet())
}
