// internal/validation/result.go
package validation

import (
	"slices"
	"time"

	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
)

// MismatchCap bounds the itemized mismatch records kept per level.
const MismatchCap = 50

// Mismatch is one LED whose sources of truth disagree.
// Hardware is zero for software-level records, which are taken before
// any hardware I/O.
type Mismatch struct {
	Coord    matrix.Coord
	Intended uint8
	Software uint8
	Hardware uint8
}

// MismatchSet counts every mismatch but itemizes at most MismatchCap.
type MismatchSet struct {
	items []Mismatch
	total int
}

// Add counts m and keeps it while below the cap.
func (s *MismatchSet) Add(m Mismatch) {
	s.total++
	if len(s.items) < MismatchCap {
		s.items = append(s.items, m)
	}
}

// Total is the true mismatch count.
func (s MismatchSet) Total() int { return s.total }

// Itemized is the number of kept records; never above MismatchCap or Total.
func (s MismatchSet) Itemized() int { return len(s.items) }

// Truncated reports whether records were dropped at the cap.
func (s MismatchSet) Truncated() bool { return s.total > len(s.items) }

// Items returns a copy of the kept records.
func (s MismatchSet) Items() []Mismatch { return slices.Clone(s.items) }

// BrightnessReading is one chip's global brightness readback.
type BrightnessReading struct {
	Value     uint8
	Available bool
}

// Result is the outcome of one validation pass. It is built once by the
// Comparator and handed around by value.
type Result struct {
	At      time.Time     // logical "now" shared by all levels
	Elapsed time.Duration // wall time of the pass

	// Skipped is set when the software mirror could not be locked in
	// time; nothing else in the result is meaningful.
	Skipped bool

	// Level 1: software mirror vs intended (lit/unlit).
	Software      MismatchSet
	SoftwareValid bool

	// Level 2: hardware readback vs software mirror.
	Hardware      MismatchSet
	ReadFailed    [matrix.Rows]bool
	ReadFailures  int
	HardwareValid bool

	// Level 3: fault flags and global brightness.
	FaultFlags         [matrix.Rows]uint16
	FaultyChips        int
	FaultsDetected     bool
	FlagReadFailures   int
	ExpectedBrightness uint8
	Brightness         [matrix.Rows]BrightnessReading
	BrightnessMismatch bool

	Valid bool
}

// SoftwareErrors is the level-1 mismatch count.
func (r Result) SoftwareErrors() int { return r.Software.Total() }

// HardwareMismatches is the level-2 mismatch count.
func (r Result) HardwareMismatches() int { return r.Hardware.Total() }

// AllChipsFailed reports whether no chip could be read back.
func (r Result) AllChipsFailed() bool { return r.ReadFailures >= matrix.Rows }

// FaultyChipList returns the chips with non-zero fault flags.
func (r Result) FaultyChipList() []int {
	var out []int
	for chip, f := range r.FaultFlags {
		if f != 0 {
			out = append(out, chip)
		}
	}
	return out
}

// AffectedRows is a bitmask of rows touched by any itemized mismatch,
// failed read or fault.
func (r Result) AffectedRows() uint16 {
	var mask uint16
	for _, m := range r.Hardware.items {
		mask |= 1 << uint(m.Coord.Row)
	}
	for _, m := range r.Software.items {
		mask |= 1 << uint(m.Coord.Row)
	}
	for chip := 0; chip < matrix.Rows; chip++ {
		if r.ReadFailed[chip] || r.FaultFlags[chip] != 0 {
			mask |= 1 << uint(chip)
		}
	}
	return mask
}
