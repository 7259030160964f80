// internal/driver/memory/bank.go
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Stani56/Stanis-Clock-sub003/internal/driver"
	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
)

// ErrNoAck is returned for a chip that does not answer on the bus.
var ErrNoAck = errors.New("memory bank: chip did not acknowledge")

// ErrWriteRejected is returned for a channel configured to fail writes.
var ErrWriteRejected = errors.New("memory bank: write rejected")

// Bank is an in-memory chip bank. It backs the simulate mode of the daemon
// and the package tests, and lets callers inject every failure the
// diagnosis layer reasons about.
type Bank struct {
	mu sync.Mutex

	pwm        matrix.Matrix
	brightness [matrix.Rows]uint8
	flags      [matrix.Rows]uint16
	expected   uint8

	offline        [matrix.Rows]bool
	revivable      [matrix.Rows]bool
	stickyFault    [matrix.Rows]bool
	stuck          map[matrix.Coord]bool
	rejectWrite    map[matrix.Coord]bool
	ignoreBright   [matrix.Rows]bool
	writes         int
	resets         [matrix.Rows]int
	reinits        [matrix.Rows]int
	reinitAllCalls int
}

var _ driver.Port = (*Bank)(nil)

// NewBank returns a bank with every LED off and global brightness b.
func NewBank(b uint8) *Bank {
	bank := &Bank{
		expected:    b,
		stuck:       make(map[matrix.Coord]bool),
		rejectWrite: make(map[matrix.Coord]bool),
	}
	for i := range bank.brightness {
		bank.brightness[i] = b
	}
	return bank
}

// ---- driver.Port ----

func (b *Bank) ReadChip(ctx context.Context, chip int) ([matrix.Cols]uint8, error) {
	var out [matrix.Cols]uint8
	if err := b.ready(ctx, chip); err != nil {
		return out, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.offline[chip] {
		return out, fmt.Errorf("read chip %d: %w", chip, ErrNoAck)
	}
	return b.pwm[chip], nil
}

func (b *Bank) ReadFaultFlags(ctx context.Context, chip int) (uint16, error) {
	if err := b.ready(ctx, chip); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.offline[chip] {
		return 0, fmt.Errorf("read flags chip %d: %w", chip, ErrNoAck)
	}
	return b.flags[chip], nil
}

func (b *Bank) ReadGlobalBrightness(ctx context.Context, chip int) (uint8, error) {
	if err := b.ready(ctx, chip); err != nil {
		return 0, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.offline[chip] {
		return 0, fmt.Errorf("read brightness chip %d: %w", chip, ErrNoAck)
	}
	return b.brightness[chip], nil
}

func (b *Bank) ExpectedBrightness() uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.expected
}

func (b *Bank) Write(ctx context.Context, c matrix.Coord, v uint8) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := driver.CheckCoord(c); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.writes++
	if b.offline[c.Row] {
		return fmt.Errorf("write %s: %w", c, ErrNoAck)
	}
	if b.rejectWrite[c] {
		return fmt.Errorf("write %s: %w", c, ErrWriteRejected)
	}
	if b.stuck[c] {
		return nil
	}
	b.pwm.Set(c, v)
	return nil
}

func (b *Bank) Reset(ctx context.Context, chip int) error {
	if err := b.ready(ctx, chip); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.resets[chip]++
	if b.offline[chip] {
		return fmt.Errorf("reset chip %d: %w", chip, ErrNoAck)
	}
	b.pwm[chip] = [matrix.Cols]uint8{}
	if !b.stickyFault[chip] {
		b.flags[chip] = 0
	}
	return nil
}

func (b *Bank) Reinit(ctx context.Context, chip int) error {
	if err := b.ready(ctx, chip); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reinits[chip]++
	b.reinitLocked(chip)
	if b.offline[chip] {
		return fmt.Errorf("reinit chip %d: %w", chip, ErrNoAck)
	}
	return nil
}

func (b *Bank) ReinitAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.reinitAllCalls++
	var failed int
	for chip := 0; chip < matrix.Rows; chip++ {
		b.reinitLocked(chip)
		if b.offline[chip] {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("reinit all: %d chips: %w", failed, ErrNoAck)
	}
	return nil
}

func (b *Bank) SetGlobalBrightness(ctx context.Context, v uint8) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expected = v
	var failed int
	for chip := 0; chip < matrix.Rows; chip++ {
		if b.offline[chip] {
			failed++
			continue
		}
		if b.ignoreBright[chip] {
			continue
		}
		b.brightness[chip] = v
	}
	if failed > 0 {
		return fmt.Errorf("set brightness: %d chips: %w", failed, ErrNoAck)
	}
	return nil
}

func (b *Bank) ready(ctx context.Context, chip int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return driver.CheckChip(chip)
}

// reinitLocked brings a revivable chip back onto the bus with its
// configuration restored. PWM registers keep their contents.
func (b *Bank) reinitLocked(chip int) {
	if b.offline[chip] && b.revivable[chip] {
		b.offline[chip] = false
		b.revivable[chip] = false
	}
	if !b.offline[chip] && !b.ignoreBright[chip] {
		b.brightness[chip] = b.expected
	}
}

// ---- fault injection ----

// Disconnect takes a chip off the bus. A revivable chip comes back on
// the next Reinit or ReinitAll.
func (b *Bank) Disconnect(chip int, revivable bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offline[chip] = true
	b.revivable[chip] = revivable
}

// Reconnect puts a chip back on the bus.
func (b *Bank) Reconnect(chip int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.offline[chip] = false
	b.revivable[chip] = false
}

// SetFaultFlags raises fault bits on a chip. A sticky fault survives Reset.
func (b *Bank) SetFaultFlags(chip int, bits uint16, sticky bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.flags[chip] = bits
	b.stickyFault[chip] = sticky
}

// Corrupt changes a hardware register behind the software's back.
func (b *Bank) Corrupt(c matrix.Coord, v uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pwm.Set(c, v)
}

// CorruptBrightness changes one chip's global brightness register.
// A sticky corruption ignores later brightness writes.
func (b *Bank) CorruptBrightness(chip int, v uint8, sticky bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.brightness[chip] = v
	b.ignoreBright[chip] = sticky
}

// Stick makes writes to c succeed without changing the register.
func (b *Bank) Stick(c matrix.Coord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.stuck[c] = true
}

// RejectWrites makes writes to c fail.
func (b *Bank) RejectWrites(c matrix.Coord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rejectWrite[c] = true
}

// Load copies m into the PWM registers without counting writes.
func (b *Bank) Load(m matrix.Matrix) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.pwm = m
}

// ---- inspection ----

// Hardware returns a copy of the PWM registers.
func (b *Bank) Hardware() matrix.Matrix {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.pwm
}

// Writes returns the number of Write calls received.
func (b *Bank) Writes() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writes
}

// Resets returns how often chip was reset.
func (b *Bank) Resets(chip int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resets[chip]
}

// Reinits returns how often chip was reinitialized on its own.
func (b *Bank) Reinits(chip int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reinits[chip]
}

// ReinitAllCalls returns how often ReinitAll ran.
func (b *Bank) ReinitAllCalls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reinitAllCalls
}
