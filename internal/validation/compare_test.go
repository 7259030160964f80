// internal/validation/compare_test.go
package validation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Stani56/Stanis-Clock-sub003/internal/display"
	"github.com/Stani56/Stanis-Clock-sub003/internal/driver/memory"
	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
)

// ---- fixtures ----

type countingPort struct {
	*memory.Bank
	chipReads int
}

func (p *countingPort) ReadChip(ctx context.Context, chip int) ([matrix.Cols]uint8, error) {
	p.chipReads++
	return p.Bank.ReadChip(ctx, chip)
}

type rig struct {
	bank  *memory.Bank
	state *display.State
	frame matrix.Matrix
	cmp   *Comparator
}

// newRig returns a matrix where intended, mirror and hardware agree.
func newRig(t *testing.T) *rig {
	t.Helper()

	frame := display.FrameOf(100,
		matrix.Coord{Row: 0, Col: 0},
		matrix.Coord{Row: 0, Col: 1},
		matrix.Coord{Row: 4, Col: 8},
		matrix.Coord{Row: 9, Col: 15},
	)
	bank := memory.NewBank(120)
	bank.Load(frame)

	state := display.NewState(20 * time.Millisecond)
	require.NoError(t, state.Update(func(m *matrix.Matrix) { *m = frame }))

	cmp, err := NewComparator(ComparatorConfig{
		Generator: display.Static{Frame: frame},
		State:     state,
		Port:      bank,
	})
	require.NoError(t, err)

	return &rig{bank: bank, state: state, frame: frame, cmp: cmp}
}

// ---- tests ----

func TestCompareAllSourcesAgree(t *testing.T) {
	r := newRig(t)

	res := r.cmp.Compare(context.Background())

	assert.True(t, res.Valid)
	assert.True(t, res.SoftwareValid)
	assert.True(t, res.HardwareValid)
	assert.False(t, res.Skipped)
	assert.Zero(t, res.HardwareMismatches())
	assert.Equal(t, uint8(120), res.ExpectedBrightness)
	assert.Equal(t, None, Classify(res))
}

func TestCompareToleranceBoundary(t *testing.T) {
	r := newRig(t)
	edge := matrix.Coord{Row: 0, Col: 0}      // mirror 100
	over := matrix.Coord{Row: 0, Col: 1}      // mirror 100
	lowEdge := matrix.Coord{Row: 4, Col: 8}   // mirror 100
	unlitOver := matrix.Coord{Row: 2, Col: 2} // mirror 0

	r.bank.Corrupt(edge, 100+Tolerance)
	r.bank.Corrupt(over, 100+Tolerance+1)
	r.bank.Corrupt(lowEdge, 100-Tolerance)
	r.bank.Corrupt(unlitOver, Tolerance+1)

	res := r.cmp.Compare(context.Background())

	require.Equal(t, 2, res.HardwareMismatches())
	items := res.Hardware.Items()
	assert.Equal(t, over, items[0].Coord)
	assert.Equal(t, uint8(100), items[0].Software)
	assert.Equal(t, uint8(103), items[0].Hardware)
	assert.Equal(t, uint8(100), items[0].Intended)
	assert.Equal(t, unlitOver, items[1].Coord)
	assert.False(t, res.Valid)
}

func TestCompareReadFailureExcludesChip(t *testing.T) {
	r := newRig(t)
	r.bank.Corrupt(matrix.Coord{Row: 3, Col: 3}, 200)
	r.bank.Disconnect(3, false)

	res := r.cmp.Compare(context.Background())

	assert.Equal(t, 1, res.ReadFailures)
	assert.True(t, res.ReadFailed[3])
	assert.Zero(t, res.HardwareMismatches())
	assert.False(t, res.HardwareValid)
	assert.False(t, res.Valid)
	// Offline chip's flags and brightness are unavailable, not faults.
	assert.Equal(t, 1, res.FlagReadFailures)
	assert.False(t, res.Brightness[3].Available)
	assert.False(t, res.BrightnessMismatch)
}

func TestCompareCapsItemizedMismatches(t *testing.T) {
	r := newRig(t)
	corrupted := 0
	matrix.Each(func(c matrix.Coord) {
		if corrupted < 60 && r.frame.At(c) == 0 {
			r.bank.Corrupt(c, 50)
			corrupted++
		}
	})

	res := r.cmp.Compare(context.Background())

	assert.Equal(t, 60, res.HardwareMismatches())
	assert.Equal(t, MismatchCap, res.Hardware.Itemized())
	assert.True(t, res.Hardware.Truncated())
	assert.LessOrEqual(t, res.Hardware.Itemized(), res.HardwareMismatches())
}

func TestCompareDetectsFaultFlags(t *testing.T) {
	r := newRig(t)
	r.bank.SetFaultFlags(7, 0x0040, false)

	res := r.cmp.Compare(context.Background())

	assert.True(t, res.FaultsDetected)
	assert.Equal(t, 1, res.FaultyChips)
	assert.Equal(t, uint16(0x0040), res.FaultFlags[7])
	assert.Equal(t, []int{7}, res.FaultyChipList())
	assert.Zero(t, res.HardwareMismatches())
	assert.False(t, res.Valid)
}

func TestCompareDetectsBrightnessDrift(t *testing.T) {
	r := newRig(t)
	r.bank.CorruptBrightness(5, 100, false)

	res := r.cmp.Compare(context.Background())

	assert.True(t, res.BrightnessMismatch)
	assert.Equal(t, BrightnessReading{Value: 100, Available: true}, res.Brightness[5])
	assert.Equal(t, uint8(120), res.ExpectedBrightness)
	assert.False(t, res.Valid)
	assert.Equal(t, GlobalBrightnessMismatch, Classify(res))
}

func TestCompareSoftwareOnlyError(t *testing.T) {
	r := newRig(t)
	wrong := []matrix.Coord{{Row: 1, Col: 0}, {Row: 1, Col: 1}, {Row: 1, Col: 2}}
	// Mirror and hardware agree with each other but not with intended.
	require.NoError(t, r.state.Update(func(m *matrix.Matrix) {
		for _, c := range wrong {
			m.Set(c, 80)
		}
	}))
	for _, c := range wrong {
		r.bank.Corrupt(c, 80)
	}

	res := r.cmp.Compare(context.Background())

	assert.Equal(t, 3, res.SoftwareErrors())
	assert.True(t, res.HardwareValid)
	assert.False(t, res.SoftwareValid)
	assert.Equal(t, SoftwareOnlyError, Classify(res))
}

func TestCompareSkipsWithoutHardwareIOOnLockTimeout(t *testing.T) {
	r := newRig(t)
	port := &countingPort{Bank: r.bank}
	cmp, err := NewComparator(ComparatorConfig{
		Generator: display.Static{Frame: r.frame},
		State:     r.state,
		Port:      port,
	})
	require.NoError(t, err)

	require.NoError(t, r.state.Lock())
	res := cmp.Compare(context.Background())
	r.state.Unlock()

	assert.True(t, res.Skipped)
	assert.False(t, res.Valid)
	assert.Zero(t, port.chipReads)
	assert.Equal(t, None, Classify(res))
}

func TestCompareUsesInjectedNow(t *testing.T) {
	r := newRig(t)
	at := time.Date(2024, 3, 1, 12, 5, 0, 0, time.UTC)
	var seen time.Time
	cmp, err := NewComparator(ComparatorConfig{
		Generator: display.GeneratorFunc(func(t time.Time) matrix.Matrix {
			seen = t
			return r.frame
		}),
		State: r.state,
		Port:  r.bank,
		Now:   func() time.Time { return at },
	})
	require.NoError(t, err)

	res := cmp.Compare(context.Background())

	assert.Equal(t, at, res.At)
	assert.Equal(t, at, seen)
}

func TestNewComparatorRequiresCollaborators(t *testing.T) {
	_, err := NewComparator(ComparatorConfig{})
	assert.Error(t, err)
}
