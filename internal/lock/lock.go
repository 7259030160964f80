// internal/lock/lock.go
package lock

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/semaphore"
)

// DefaultTimeout bounds every acquisition unless a caller picks another value.
const DefaultTimeout = time.Second

// ErrTimeout is returned when the lock could not be acquired in time.
var ErrTimeout = errors.New("lock: acquisition timed out")

// Mutex is a mutual-exclusion lock whose acquisition never blocks
// longer than its timeout. A stuck holder degrades callers to ErrTimeout
// instead of wedging them.
type Mutex struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

// New returns an unlocked Mutex. A non-positive timeout selects DefaultTimeout.
func New(timeout time.Duration) *Mutex {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Mutex{
		sem:     semaphore.NewWeighted(1),
		timeout: timeout,
	}
}

// Lock acquires the mutex or returns ErrTimeout.
func (m *Mutex) Lock() error {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if err := m.sem.Acquire(ctx, 1); err != nil {
		return ErrTimeout
	}
	return nil
}

// Unlock releases a mutex acquired by Lock.
func (m *Mutex) Unlock() {
	m.sem.Release(1)
}

// Do runs fn while holding the mutex.
func (m *Mutex) Do(fn func()) error {
	if err := m.Lock(); err != nil {
		return err
	}
	defer m.Unlock()

	fn()
	return nil
}
