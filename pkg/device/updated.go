package device

import (
	"context"
	"sync"
)

// Updated is a "value updated" flag shared between the goroutine that reads a
// device and the ones waiting for it. Signal sets the flag and wakes every
// waiter; a successful Wait consumes it.
type Updated struct {
	mu   sync.Mutex
	cond *sync.Cond
	set  bool
}

// NewUpdated returns a cleared flag.
func NewUpdated() *Updated {
	u := &Updated{}
	u.cond = sync.NewCond(&u.mu)
	return u
}

// Signal sets the flag and wakes all waiters.
func (u *Updated) Signal() {
	u.mu.Lock()
	u.set = true
	u.mu.Unlock()
	u.cond.Broadcast()
}

// Reset clears the flag without waking anyone.
func (u *Updated) Reset() {
	u.mu.Lock()
	u.set = false
	u.mu.Unlock()
}

// IsSet reports the flag without consuming it.
func (u *Updated) IsSet() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.set
}

// Wait blocks until the flag is set, then clears it. It returns ctx.Err()
// if ctx ends first.
func (u *Updated) Wait(ctx context.Context) error {
	// Wake the waiter when ctx ends; the lock orders the broadcast after the
	// waiter has parked in cond.Wait.
	stop := context.AfterFunc(ctx, func() {
		u.mu.Lock()
		defer u.mu.Unlock()
		u.cond.Broadcast()
	})
	defer stop()

	u.mu.Lock()
	defer u.mu.Unlock()
	for !u.set {
		if err := ctx.Err(); err != nil {
			return err
		}
		u.cond.Wait()
	}
	u.set = false
	return nil
}
