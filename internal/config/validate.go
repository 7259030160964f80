// internal/config/validate.go
package config

import (
	"fmt"

	"github.com/Stani56/Stanis-Clock-sub003/internal/matrix"
	"github.com/Stani56/Stanis-Clock-sub003/internal/status"
)

// maxModbusUnitID is the highest addressable Modbus slave.
const maxModbusUnitID = 247

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config: nil")
	}

	// device_name sanity (ASCII only)
	for i := 0; i < len(cfg.Device.Name); i++ {
		if cfg.Device.Name[i] > 0x7F {
			return fmt.Errorf("device.name must contain ASCII characters only")
		}
	}

	// ------------------------------------------------------------
	// DRIVER
	// ------------------------------------------------------------

	d := cfg.Driver
	switch d.Mode {
	case "", DriverMemory:
	case DriverModbus:
		if d.Endpoint == "" {
			return fmt.Errorf("driver: mode %q requires endpoint", d.Mode)
		}
	default:
		return fmt.Errorf("driver: unknown mode %q", d.Mode)
	}
	if d.TimeoutMs < 0 {
		return fmt.Errorf("driver: timeout_ms must not be negative")
	}
	if d.Layout != nil && int(d.Layout.BaseUnitID)+matrix.Rows-1 > maxModbusUnitID {
		return fmt.Errorf(
			"driver: layout.base_unit_id %d leaves no room for %d chips",
			d.Layout.BaseUnitID,
			matrix.Rows,
		)
	}

	// ------------------------------------------------------------
	// DISPLAY
	// ------------------------------------------------------------

	for i, rc := range cfg.Display.Lit {
		c := matrix.Coord{Row: rc[0], Col: rc[1]}
		if !c.Valid() {
			return fmt.Errorf("display: lit[%d] %v outside %dx%d matrix", i, rc, matrix.Rows, matrix.Cols)
		}
	}
	if cfg.Display.RefreshMs < 0 || cfg.Display.LockMs < 0 {
		return fmt.Errorf("display: durations must not be negative")
	}

	// ------------------------------------------------------------
	// VALIDATION / RECOVERY TIMING
	// ------------------------------------------------------------

	v := cfg.Validation
	for name, ms := range map[string]int{
		"settle_ms":           v.SettleMs,
		"transition_defer_ms": v.DeferMs,
		"disabled_poll_ms":    v.DisabledPollMs,
		"startup_delay_ms":    v.StartupDelayMs,
		"restart_delay_ms":    v.RestartDelayMs,
		"on_demand_per_min":   v.OnDemandPerMin,
	} {
		if ms < 0 {
			return fmt.Errorf("validation: %s must not be negative", name)
		}
	}

	r := cfg.Recovery
	if r.Attempts < 0 || r.BackoffMs < 0 || r.BusSettleMs < 0 {
		return fmt.Errorf("recovery: values must not be negative")
	}

	// ------------------------------------------------------------
	// STATUS BLOCK (OPT-IN)
	// ------------------------------------------------------------

	if s := cfg.Status; s != nil {
		switch s.Transport {
		case "", TransportModbus, TransportIngest:
		default:
			return fmt.Errorf("status: unknown transport %q", s.Transport)
		}
		if s.Endpoint == "" {
			return fmt.Errorf("status: endpoint required")
		}
		if s.UnitID > 255 {
			return fmt.Errorf("status: unit_id %d out of range", s.UnitID)
		}
		// block must fit the 16-bit register space
		if int(s.Slot)*status.SlotsPerDevice+status.SlotsPerDevice > 1<<16 {
			return fmt.Errorf("status: slot %d beyond register space", s.Slot)
		}
		if s.TimeoutMs < 0 {
			return fmt.Errorf("status: timeout_ms must not be negative")
		}
	}

	// ------------------------------------------------------------
	// LOG
	// ------------------------------------------------------------

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: unknown level %q", cfg.Log.Level)
	}
	switch cfg.Log.Format {
	case "", "text", "json":
	default:
		return fmt.Errorf("log: unknown format %q", cfg.Log.Format)
	}

	return nil
}
