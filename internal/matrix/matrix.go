// internal/matrix/matrix.go
package matrix

import "fmt"

// Geometry of the LED matrix. Each driver chip owns exactly one row.
const (
	Rows  = 10 // driver chips
	Cols  = 16 // PWM channels per chip
	Total = Rows * Cols
)

// Coord addresses one LED. Row identifies the owning chip, Col its channel.
type Coord struct {
	Row int
	Col int
}

// Valid reports whether c lies inside the matrix.
func (c Coord) Valid() bool {
	return c.Row >= 0 && c.Row < Rows && c.Col >= 0 && c.Col < Cols
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// Matrix holds one PWM intensity per LED.
type Matrix [Rows][Cols]uint8

// At returns the intensity at c.
func (m Matrix) At(c Coord) uint8 {
	return m[c.Row][c.Col]
}

// Set stores v at c.
func (m *Matrix) Set(c Coord, v uint8) {
	m[c.Row][c.Col] = v
}

// Lit reports whether the LED at c is on at any intensity.
func (m Matrix) Lit(c Coord) bool {
	return m[c.Row][c.Col] > 0
}

// LitCount returns the number of LEDs that are on.
func (m Matrix) LitCount() int {
	n := 0
	for r := 0; r < Rows; r++ {
		for col := 0; col < Cols; col++ {
			if m[r][col] > 0 {
				n++
			}
		}
	}
	return n
}

// Each calls fn for every coordinate in row-major order.
func Each(fn func(c Coord)) {
	for r := 0; r < Rows; r++ {
		for col := 0; col < Cols; col++ {
			fn(Coord{Row: r, Col: col})
		}
	}
}
