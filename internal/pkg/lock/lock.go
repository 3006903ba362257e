// Package lock provides per-player locking so that read-modify-write cycles
// on one player record never interleave, while different players proceed in
// parallel.
package lock

import (
	"context"
	"sync"
	"time"
)

// PlayerLock hands out one mutex per player id.
type PlayerLock struct {
	locks sync.Map // map[int64]*sync.Mutex
}

// NewPlayerLock creates a new PlayerLock.
func NewPlayerLock() *PlayerLock {
	return &PlayerLock{}
}

// get retrieves or creates the mutex for a player.
func (pl *PlayerLock) get(playerID int64) *sync.Mutex {
	if v, ok := pl.locks.Load(playerID); ok {
		return v.(*sync.Mutex)
	}
	// LoadOrStore settles the race when two goroutines create the same lock.
	actual, _ := pl.locks.LoadOrStore(playerID, &sync.Mutex{})
	return actual.(*sync.Mutex)
}

func (pl *PlayerLock) unlock(playerID int64) {
	if v, ok := pl.locks.Load(playerID); ok {
		v.(*sync.Mutex).Unlock()
	}
}

// lockWithTimeout waits up to timeout for the player's lock.
// Returns false if the lock was not acquired.
func (pl *PlayerLock) lockWithTimeout(ctx context.Context, playerID int64, timeout time.Duration) bool {
	mu := pl.get(playerID)
	if mu.TryLock() {
		return true
	}

	done := make(chan struct{})
	go func() {
		mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return true
	case <-timeoutCtx.Done():
		// The waiter still owns a pending Lock; release it once acquired.
		go func() {
			<-done
			mu.Unlock()
		}()
		return false
	}
}

// WithLockContext runs fn while holding the player's lock, giving up with
// ErrLockTimeout when the lock is not acquired within timeout.
func (pl *PlayerLock) WithLockContext(ctx context.Context, playerID int64, timeout time.Duration, fn func() error) error {
	if !pl.lockWithTimeout(ctx, playerID, timeout) {
		return ErrLockTimeout
	}
	defer pl.unlock(playerID)

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fn()
	}
}
