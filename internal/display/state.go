// internal/display/state.go
package display

import (
	"time"

	"github.com/Stani56/Stanis-Clock-sub003/internal/lock"
	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
)

// State is the shared software mirror: the last intensity the host
// believes it wrote to every LED. The display path owns writes; the
// diagnosis layer only takes snapshots.
type State struct {
	mu     *lock.Mutex
	mirror matrix.Matrix
}

// NewState returns an all-off mirror guarded by a lock with the given
// acquisition timeout.
func NewState(timeout time.Duration) *State {
	return &State{mu: lock.New(timeout)}
}

// Snapshot copies the mirror. The lock is held only for the copy.
func (s *State) Snapshot() (matrix.Matrix, error) {
	var out matrix.Matrix
	err := s.mu.Do(func() {
		out = s.mirror
	})
	return out, err
}

// Set records that v was written to c.
func (s *State) Set(c matrix.Coord, v uint8) error {
	return s.mu.Do(func() {
		s.mirror.Set(c, v)
	})
}

// Update applies fn to the mirror under the lock.
func (s *State) Update(fn func(m *matrix.Matrix)) error {
	return s.mu.Do(func() {
		fn(&s.mirror)
	})
}

// Lock exposes the mirror lock to the display path so a frame update and
// an external hold can be tested deterministically.
func (s *State) Lock() error { return s.mu.Lock() }

// Unlock releases a lock taken with Lock.
func (s *State) Unlock() { s.mu.Unlock() }
