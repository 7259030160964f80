// internal/display/generator.go
package display

import (
	"time"

	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
)

// Generator produces the intended LED matrix for a point in time.
// Implementations must be pure.
type Generator interface {
	Intended(t time.Time) matrix.Matrix
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(t time.Time) matrix.Matrix

func (f GeneratorFunc) Intended(t time.Time) matrix.Matrix { return f(t) }

// Static shows the same frame at all times.
type Static struct {
	Frame matrix.Matrix
}

func (s Static) Intended(time.Time) matrix.Matrix { return s.Frame }

// FrameOf builds a frame with every listed LED at intensity v.
// Out-of-range coordinates are ignored.
func FrameOf(v uint8, lit ...matrix.Coord) matrix.Matrix {
	var m matrix.Matrix
	for _, c := range lit {
		if c.Valid() {
			m.Set(c, v)
		}
	}
	return m
}
