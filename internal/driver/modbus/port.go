// internal/driver/modbus/port.go
package modbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goburrow/modbus"

	"github.com/Stani56/Stanis-Clock-sub003/internal/driver"
	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
)

// coilOn is the Modbus encoding of a set coil.
const coilOn uint16 = 0xFF00

// Layout describes where an I2C-to-Modbus gateway exposes each chip.
// Chip i answers as unit BaseUnitID+i.
type Layout struct {
	BaseUnitID        uint8
	PWMAddress        uint16 // holding registers, one per channel
	BrightnessAddress uint16 // holding register
	FaultAddress      uint16 // two input registers, high flag byte first
	ResetCoil         uint16
	ReinitCoil        uint16
}

// DefaultLayout is the gateway layout used when none is configured.
var DefaultLayout = Layout{
	BaseUnitID:        1,
	PWMAddress:        0,
	BrightnessAddress: 16,
	FaultAddress:      0,
	ResetCoil:         0,
	ReinitCoil:        1,
}

// Config is minimal transport config.
type Config struct {
	Endpoint   string
	Timeout    time.Duration
	Layout     Layout
	Brightness uint8 // expected global brightness until the first SetGlobalBrightness
}

// Port implements driver.Port over one Modbus TCP gateway connection.
// Requests are serialized because the slave id is switched per chip.
type Port struct {
	mu      sync.Mutex
	handler *modbus.TCPClientHandler
	client  modbus.Client
	layout  Layout

	expected atomic.Uint32
}

var _ driver.Port = (*Port)(nil)

// New connects to the gateway.
func New(cfg Config) (*Port, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("modbus port: endpoint required")
	}
	if int(cfg.Layout.BaseUnitID)+matrix.Rows-1 > 247 {
		return nil, fmt.Errorf("modbus port: base unit id %d leaves no room for %d chips", cfg.Layout.BaseUnitID, matrix.Rows)
	}

	h := modbus.NewTCPClientHandler(cfg.Endpoint)
	h.Timeout = cfg.Timeout

	if err := h.Connect(); err != nil {
		return nil, fmt.Errorf("modbus port: connect %s: %w", cfg.Endpoint, err)
	}

	p := &Port{
		handler: h,
		client:  modbus.NewClient(h),
		layout:  cfg.Layout,
	}
	p.expected.Store(uint32(cfg.Brightness))
	return p, nil
}

// Close closes the TCP connection.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler.Close()
}

// ---- driver.Port ----

func (p *Port) ReadChip(ctx context.Context, chip int) ([matrix.Cols]uint8, error) {
	var out [matrix.Cols]uint8

	raw, err := p.do(ctx, chip, func(c modbus.Client) ([]byte, error) {
		return c.ReadHoldingRegisters(p.layout.PWMAddress, matrix.Cols)
	})
	if err != nil {
		return out, fmt.Errorf("modbus port: read chip %d: %w", chip, err)
	}

	regs := unpackRegisters(raw)
	if len(regs) < matrix.Cols {
		return out, fmt.Errorf("modbus port: read chip %d: short payload (%d registers)", chip, len(regs))
	}
	for i := 0; i < matrix.Cols; i++ {
		out[i] = uint8(regs[i])
	}
	return out, nil
}

func (p *Port) ReadFaultFlags(ctx context.Context, chip int) (uint16, error) {
	raw, err := p.do(ctx, chip, func(c modbus.Client) ([]byte, error) {
		return c.ReadInputRegisters(p.layout.FaultAddress, 2)
	})
	if err != nil {
		return 0, fmt.Errorf("modbus port: read flags chip %d: %w", chip, err)
	}

	regs := unpackRegisters(raw)
	if len(regs) < 2 {
		return 0, fmt.Errorf("modbus port: read flags chip %d: short payload", chip)
	}
	return joinFlags(regs[0], regs[1]), nil
}

func (p *Port) ReadGlobalBrightness(ctx context.Context, chip int) (uint8, error) {
	raw, err := p.do(ctx, chip, func(c modbus.Client) ([]byte, error) {
		return c.ReadHoldingRegisters(p.layout.BrightnessAddress, 1)
	})
	if err != nil {
		return 0, fmt.Errorf("modbus port: read brightness chip %d: %w", chip, err)
	}

	regs := unpackRegisters(raw)
	if len(regs) < 1 {
		return 0, fmt.Errorf("modbus port: read brightness chip %d: short payload", chip)
	}
	return uint8(regs[0]), nil
}

func (p *Port) ExpectedBrightness() uint8 {
	return uint8(p.expected.Load())
}

func (p *Port) Write(ctx context.Context, c matrix.Coord, v uint8) error {
	if err := driver.CheckCoord(c); err != nil {
		return err
	}
	_, err := p.do(ctx, c.Row, func(cl modbus.Client) ([]byte, error) {
		return cl.WriteSingleRegister(p.layout.PWMAddress+uint16(c.Col), uint16(v))
	})
	if err != nil {
		return fmt.Errorf("modbus port: write %s: %w", c, err)
	}
	return nil
}

func (p *Port) Reset(ctx context.Context, chip int) error {
	_, err := p.do(ctx, chip, func(c modbus.Client) ([]byte, error) {
		return c.WriteSingleCoil(p.layout.ResetCoil, coilOn)
	})
	if err != nil {
		return fmt.Errorf("modbus port: reset chip %d: %w", chip, err)
	}
	return nil
}

func (p *Port) Reinit(ctx context.Context, chip int) error {
	_, err := p.do(ctx, chip, func(c modbus.Client) ([]byte, error) {
		return c.WriteSingleCoil(p.layout.ReinitCoil, coilOn)
	})
	if err != nil {
		return fmt.Errorf("modbus port: reinit chip %d: %w", chip, err)
	}
	return nil
}

// ReinitAll reinitializes every chip; the gateway has no broadcast unit.
func (p *Port) ReinitAll(ctx context.Context) error {
	var errs []error
	for chip := 0; chip < matrix.Rows; chip++ {
		if err := p.Reinit(ctx, chip); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// SetGlobalBrightness writes v to every chip. The expected value is
// updated even when some chips fail so that readback flags them.
func (p *Port) SetGlobalBrightness(ctx context.Context, v uint8) error {
	p.expected.Store(uint32(v))

	var errs []error
	for chip := 0; chip < matrix.Rows; chip++ {
		_, err := p.do(ctx, chip, func(c modbus.Client) ([]byte, error) {
			return c.WriteSingleRegister(p.layout.BrightnessAddress, uint16(v))
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("modbus port: set brightness chip %d: %w", chip, err))
		}
	}
	return errors.Join(errs...)
}

// ---- internal helpers ----

func (p *Port) do(ctx context.Context, chip int, fn func(modbus.Client) ([]byte, error)) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := driver.CheckChip(chip); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	p.handler.SlaveId = unitFor(p.layout, chip)
	return fn(p.client)
}

func unitFor(l Layout, chip int) byte {
	return l.BaseUnitID + byte(chip)
}

// joinFlags packs the two 8-bit fault registers into one bit set.
func joinFlags(hi, lo uint16) uint16 {
	return (hi&0xFF)<<8 | lo&0xFF
}

func unpackRegisters(data []byte) []uint16 {
	n := len(data) / 2
	out := make([]uint16, n)
	for i := 0; i < n; i++ {
		out[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return out
}
