// internal/driver/port.go
package driver

import (
	"context"
	"errors"
	"fmt"

	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
)

// Port abstracts the driver chips behind the LED matrix.
// Every call blocks until the device answers or its own timeout expires;
// a timeout surfaces as an error for that chip only.
type Port interface {
	// ReadChip reads back the PWM value of every channel on one chip.
	ReadChip(ctx context.Context, chip int) ([matrix.Cols]uint8, error)

	// ReadFaultFlags returns the chip's fault-flag bits. Zero means no fault.
	ReadFaultFlags(ctx context.Context, chip int) (uint16, error)

	// ReadGlobalBrightness returns the chip's global brightness register.
	ReadGlobalBrightness(ctx context.Context, chip int) (uint8, error)

	// ExpectedBrightness is the last value passed to SetGlobalBrightness.
	ExpectedBrightness() uint8

	Write(ctx context.Context, c matrix.Coord, v uint8) error
	Reset(ctx context.Context, chip int) error
	Reinit(ctx context.Context, chip int) error
	ReinitAll(ctx context.Context) error
	SetGlobalBrightness(ctx context.Context, v uint8) error
}

// ErrChipRange is returned for a chip index outside the matrix.
var ErrChipRange = errors.New("driver: chip index out of range")

// CheckChip validates a chip index.
func CheckChip(chip int) error {
	if chip < 0 || chip >= matrix.Rows {
		return fmt.Errorf("%w: %d", ErrChipRange, chip)
	}
	return nil
}

// CheckCoord validates an LED coordinate.
func CheckCoord(c matrix.Coord) error {
	if !c.Valid() {
		return fmt.Errorf("%w: %s", ErrChipRange, c)
	}
	return nil
}
