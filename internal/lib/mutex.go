package lib

import (
	"context"
	"errors"
	"time"
)

var ErrTimeout = errors.New("mutex lock timeout")

// Mutex is a channel based mutex that supports context cancellation, timeouts and
// non-blocking acquisition. Unlocking an unlocked Mutex is a no-op.
type Mutex struct {
	ch chan struct{}
}

func NewMutex() Mutex {
	return Mutex{ch: make(chan struct{}, 1)}
}

func (m Mutex) Lock() {
	m.ch <- struct{}{}
}

func (m Mutex) Unlock() {
	select {
	case <-m.ch:
	default:
	}
}

// TryLock acquires the lock only if it is free, reporting whether it succeeded
func (m Mutex) TryLock() bool {
	select {
	case m.ch <- struct{}{}:
		return true
	default:
		return false
	}
}

func (m Mutex) LockCtx(ctx context.Context) error {
	select {
	case m.ch <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m Mutex) LockTimeout(timeout time.Duration) error {
	if m.TryLock() {
		return nil
	}
	if timeout <= 0 {
		return ErrTimeout
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case m.ch <- struct{}{}:
		return nil
	case <-timer.C:
		return ErrTimeout
	}
}
