// internal/display/transition.go
package display

import "sync/atomic"

// TransitionStatus reports whether an animated transition is writing to
// the hardware right now.
type TransitionStatus interface {
	Active() bool
}

// Transition is a TransitionStatus driven by the display path.
type Transition struct {
	depth atomic.Int32
}

var _ TransitionStatus = (*Transition)(nil)

// Begin marks a transition as running. Calls nest.
func (t *Transition) Begin() { t.depth.Add(1) }

// End closes one Begin.
func (t *Transition) End() { t.depth.Add(-1) }

func (t *Transition) Active() bool { return t.depth.Load() > 0 }
