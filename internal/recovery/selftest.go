// internal/recovery/selftest.go
package recovery

import (
	"context"
	"fmt"

	"github.com/Stani56/Stanis-Clock-sub003/internal/display"
	"github.com/Stani56/Stanis-Clock-sub003/internal/driver"
	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
	"github.com/Stani56/Stanis-Clock-sub003/internal/validation"
)

// ProbeValue is written to the probe channel of each chip.
const ProbeValue = 0x55

// ProbeChannel is the channel exercised on every chip.
const ProbeChannel = 0

// ChipProbe is the self-test outcome for one chip.
type ChipProbe struct {
	Chip  int
	Wrote uint8
	Read  uint8
	Err   error
}

// OK reports whether the probe read back within tolerance.
func (p ChipProbe) OK() bool {
	if p.Err != nil {
		return false
	}
	d := int(p.Read) - int(p.Wrote)
	return d >= -validation.Tolerance && d <= validation.Tolerance
}

// SelfTestReport holds one probe per chip.
type SelfTestReport struct {
	Chips [matrix.Rows]ChipProbe
}

// Passed reports whether every chip passed.
func (r SelfTestReport) Passed() bool {
	return r.Failed() == 0
}

// Failed counts the chips that did not pass.
func (r SelfTestReport) Failed() int {
	n := 0
	for _, p := range r.Chips {
		if !p.OK() {
			n++
		}
	}
	return n
}

// SelfTest checks the readback path of every chip: write a probe value,
// read it back, then put the mirror value back. It is meant for start-up
// and operator diagnostics, not for the periodic loop.
func SelfTest(ctx context.Context, port driver.Port, state *display.State) (SelfTestReport, error) {
	var rep SelfTestReport

	mirror, err := state.Snapshot()
	if err != nil {
		return rep, fmt.Errorf("self-test: display state: %w", err)
	}

	for chip := 0; chip < matrix.Rows; chip++ {
		at := matrix.Coord{Row: chip, Col: ProbeChannel}
		probe := ChipProbe{Chip: chip, Wrote: ProbeValue}

		if err := port.Write(ctx, at, ProbeValue); err != nil {
			probe.Err = fmt.Errorf("probe write: %w", err)
			rep.Chips[chip] = probe
			continue
		}

		hw, err := port.ReadChip(ctx, chip)
		if err != nil {
			probe.Err = fmt.Errorf("probe read: %w", err)
		} else {
			probe.Read = hw[ProbeChannel]
		}

		if err := port.Write(ctx, at, mirror.At(at)); err != nil && probe.Err == nil {
			probe.Err = fmt.Errorf("probe restore: %w", err)
		}
		rep.Chips[chip] = probe
	}
	return rep, nil
}
