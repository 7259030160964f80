// internal/validation/compare.go
package validation

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Stani56/Stanis-Clock-sub003/internal/display"
	"github.com/Stani56/Stanis-Clock-sub003/internal/driver"
	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
)

// Tolerance is the largest hardware/software PWM difference that is not
// a mismatch. It absorbs write/read timing jitter.
const Tolerance = 2

// ComparatorConfig wires a Comparator.
type ComparatorConfig struct {
	Generator display.Generator
	State     *display.State
	Port      driver.Port
	Now       func() time.Time
	Logger    *slog.Logger
}

// Comparator runs the three-level cross-check. It never writes to its
// inputs.
type Comparator struct {
	gen   display.Generator
	state *display.State
	port  driver.Port
	now   func() time.Time
	log   *slog.Logger
}

// NewComparator validates cfg and returns a Comparator.
func NewComparator(cfg ComparatorConfig) (*Comparator, error) {
	if cfg.Generator == nil {
		return nil, errors.New("comparator: generator required")
	}
	if cfg.State == nil {
		return nil, errors.New("comparator: display state required")
	}
	if cfg.Port == nil {
		return nil, errors.New("comparator: driver port required")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Comparator{
		gen:   cfg.Generator,
		state: cfg.State,
		port:  cfg.Port,
		now:   cfg.Now,
		log:   cfg.Logger.With("component", "comparator"),
	}, nil
}

// Compare performs one pass. All three levels always run so one pass
// yields the full diagnostic picture; the only early exit is a mirror
// lock timeout, which skips the pass without touching the hardware.
func (c *Comparator) Compare(ctx context.Context) Result {
	began := time.Now()
	res := Result{At: c.now()}

	intended := c.gen.Intended(res.At)

	// The mirror lock is held only for the copy; all hardware I/O below
	// works on the snapshot.
	mirror, err := c.state.Snapshot()
	if err != nil {
		c.log.Warn("display state lock unavailable, skipping pass", "err", err)
		res.Skipped = true
		res.Elapsed = time.Since(began)
		return res
	}

	c.compareSoftware(&res, &intended, &mirror)
	c.compareHardware(ctx, &res, &intended, &mirror)
	c.checkFaults(ctx, &res)
	c.checkBrightness(ctx, &res)

	res.Valid = res.SoftwareValid &&
		res.HardwareValid &&
		!res.FaultsDetected &&
		!res.BrightnessMismatch
	res.Elapsed = time.Since(began)

	c.log.Debug("validation pass",
		"valid", res.Valid,
		"software_errors", res.SoftwareErrors(),
		"hardware_mismatches", res.HardwareMismatches(),
		"read_failures", res.ReadFailures,
		"faulty_chips", res.FaultyChips,
		"brightness_mismatch", res.BrightnessMismatch,
		"elapsed", res.Elapsed,
	)
	return res
}

// ------------------------------------------------------------
// LEVEL 1: software mirror vs intended
// ------------------------------------------------------------

func (c *Comparator) compareSoftware(res *Result, intended, mirror *matrix.Matrix) {
	matrix.Each(func(at matrix.Coord) {
		if intended.Lit(at) != mirror.Lit(at) {
			res.Software.Add(Mismatch{
				Coord:    at,
				Intended: intended.At(at),
				Software: mirror.At(at),
			})
		}
	})
	res.SoftwareValid = res.Software.Total() == 0
}

// ------------------------------------------------------------
// LEVEL 2: hardware readback vs software mirror
// ------------------------------------------------------------

func (c *Comparator) compareHardware(ctx context.Context, res *Result, intended, mirror *matrix.Matrix) {
	for chip := 0; chip < matrix.Rows; chip++ {
		hw, err := c.port.ReadChip(ctx, chip)
		if err != nil {
			// A failed chip is excluded, not counted as mismatched.
			res.ReadFailed[chip] = true
			res.ReadFailures++
			c.log.Debug("chip readback failed", "chip", chip, "err", err)
			continue
		}

		for col := 0; col < matrix.Cols; col++ {
			at := matrix.Coord{Row: chip, Col: col}
			sw := mirror.At(at)
			if absDiff(hw[col], sw) <= Tolerance {
				continue
			}
			res.Hardware.Add(Mismatch{
				Coord:    at,
				Intended: intended.At(at),
				Software: sw,
				Hardware: hw[col],
			})
		}
	}
	res.HardwareValid = res.Hardware.Total() == 0 && res.ReadFailures == 0
}

// ------------------------------------------------------------
// LEVEL 3: fault flags and global brightness
// ------------------------------------------------------------

func (c *Comparator) checkFaults(ctx context.Context, res *Result) {
	for chip := 0; chip < matrix.Rows; chip++ {
		flags, err := c.port.ReadFaultFlags(ctx, chip)
		if err != nil {
			res.FlagReadFailures++
			continue
		}
		if flags != 0 {
			res.FaultFlags[chip] = flags
			res.FaultyChips++
			res.FaultsDetected = true
		}
	}
}

func (c *Comparator) checkBrightness(ctx context.Context, res *Result) {
	res.ExpectedBrightness = c.port.ExpectedBrightness()

	for chip := 0; chip < matrix.Rows; chip++ {
		v, err := c.port.ReadGlobalBrightness(ctx, chip)
		if err != nil {
			// Unavailable readings never count as disagreement.
			continue
		}
		res.Brightness[chip] = BrightnessReading{Value: v, Available: true}
		if v != res.ExpectedBrightness {
			res.BrightnessMismatch = true
		}
	}
}

func absDiff(a, b uint8) uint8 {
	if a > b {
		return a - b
	}
	return b - a
}
