package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/illmade-knight/go-rservice/pkg/errs"
	"github.com/illmade-knight/go-rservice/pkg/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBacklog_FIFO(t *testing.T) {
	// Arrange
	b := queue.NewBacklog(8)
	t.Cleanup(b.Close)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	// Act
	for i := 0; i < 5; i++ {
		require.NoError(t, b.Push(ctx, queue.Entry{Raw: []byte{byte(i)}}))
	}

	// Assert
	assert.Equal(t, 5, b.Len())
	for i := 0; i < 5; i++ {
		e, err := b.Pop(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte{byte(i)}, e.Raw)
	}
	assert.Zero(t, b.Len())
}

func TestBacklog_OfferWhenFull(t *testing.T) {
	b := queue.NewBacklog(2)
	t.Cleanup(b.Close)

	for i := 0; i < b.Cap(); i++ {
		ok, err := b.Offer(queue.Entry{Raw: []byte{1}})
		require.NoError(t, err)
		require.True(t, ok)
	}
	ok, err := b.Offer(queue.Entry{Raw: []byte{2}})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBacklog_PushWaitsForRoom(t *testing.T) {
	// Arrange
	b := queue.NewBacklog(2)
	t.Cleanup(b.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < b.Cap(); i++ {
		require.NoError(t, b.Push(ctx, queue.Entry{Raw: []byte{0}}))
	}

	// Act
	pushed := make(chan error, 1)
	go func() { pushed <- b.Push(ctx, queue.Entry{Raw: []byte{9}}) }()

	// Assert
	select {
	case <-pushed:
		t.Fatal("Push returned while the backlog was full")
	case <-time.After(50 * time.Millisecond):
	}
	_, err := b.Pop(ctx)
	require.NoError(t, err)
	require.NoError(t, <-pushed)
}

func TestBacklog_PopHonoursContext(t *testing.T) {
	b := queue.NewBacklog(4)
	t.Cleanup(b.Close)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := b.Pop(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBacklog_CloseWakesWaiters(t *testing.T) {
	b := queue.NewBacklog(4)

	popped := make(chan error, 1)
	go func() {
		_, err := b.Pop(context.Background())
		popped <- err
	}()

	time.Sleep(20 * time.Millisecond)
	b.Close()
	b.Close()

	select {
	case err := <-popped:
		assert.ErrorIs(t, err, errs.ErrUnavailable)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Close")
	}
	assert.True(t, b.IsClosed())

	_, err := b.Offer(queue.Entry{})
	assert.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestBacklog_DrainKeepsErrorEntries(t *testing.T) {
	b := queue.NewBacklog(8)
	t.Cleanup(b.Close)

	_, _ = b.Offer(queue.Entry{Raw: []byte{1}})
	_, _ = b.Offer(queue.Entry{Err: errs.ErrDataLoss})
	_, _ = b.Offer(queue.Entry{Raw: []byte{2}})

	assert.Equal(t, 3, b.Drain())
	assert.Zero(t, b.Len())
	assert.Zero(t, b.Drain())
}

func TestBacklog_SealDeliversRemainder(t *testing.T) {
	b := queue.NewBacklog(4)
	t.Cleanup(b.Close)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	require.NoError(t, b.Push(ctx, queue.Entry{Raw: []byte{1}}))
	b.Seal()
	b.Seal()

	e, err := b.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{1}, e.Raw)

	_, err = b.Pop(ctx)
	assert.ErrorIs(t, err, errs.ErrUnavailable)
	_, err = b.Offer(queue.Entry{Raw: []byte{2}})
	assert.ErrorIs(t, err, errs.ErrUnavailable)
}

func TestBacklog_DrainDiscardsWaitingProducers(t *testing.T) {
	// Arrange
	b := queue.NewBacklog(2)
	t.Cleanup(b.Close)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < b.Cap(); i++ {
		require.NoError(t, b.Push(ctx, queue.Entry{Raw: []byte{0}}))
	}
	const waiting = 5
	pushed := make(chan error, waiting)
	for i := 0; i < waiting; i++ {
		go func() { pushed <- b.Push(ctx, queue.Entry{Raw: []byte{1}}) }()
	}
	time.Sleep(20 * time.Millisecond)

	// Act
	dropped := b.Drain()

	// Assert
	assert.Equal(t, b.Cap(), dropped)
	for i := 0; i < waiting; i++ {
		select {
		case err := <-pushed:
			require.NoError(t, err)
		case <-ctx.Done():
			t.Fatal("a producer waiting for room was not released by Drain")
		}
	}
	assert.Zero(t, b.Len(), "entries held by waiting producers must not land after a drain")

	require.NoError(t, b.Push(ctx, queue.Entry{Raw: []byte{7}}))
	e, err := b.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte{7}, e.Raw)
}

func TestBacklog_PushSinceEarlierGeneration(t *testing.T) {
	b := queue.NewBacklog(4)
	t.Cleanup(b.Close)
	ctx := context.Background()

	gen := b.Generation()
	b.Drain()

	require.NoError(t, b.PushSince(ctx, gen, queue.Entry{Raw: []byte{1}}))
	assert.Zero(t, b.Len())
	require.NoError(t, b.PushSince(ctx, b.Generation(), queue.Entry{Raw: []byte{2}}))
	assert.Equal(t, 1, b.Len())
}

func TestBacklog_DrainBesidePop(t *testing.T) {
	b := queue.NewBacklog(4)
	t.Cleanup(b.Close)

	for i := 0; i < 200; i++ {
		require.NoError(t, b.Push(context.Background(), queue.Entry{Raw: []byte{byte(i)}}))
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		popped := make(chan struct{})
		go func() {
			defer close(popped)
			_, _ = b.Pop(ctx)
		}()
		b.Drain()
		select {
		case <-popped:
		case <-time.After(time.Second):
			cancel()
			t.Fatalf("Pop hung after racing Drain on iteration %d", i)
		}
		cancel()
		assert.Zero(t, b.Len())
	}
}
