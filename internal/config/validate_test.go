// internal/config/validate_test.go
package config

import (
	"os"
	"path/filepath"
	"testing"
)

// helper to build a minimal valid config quickly
func base() *Config {
	return &Config{
		Device: DeviceConfig{Name: "CLOCK-01"},
		Driver: DriverConfig{Mode: DriverMemory},
		Display: DisplayConfig{
			Lit: [][2]int{{0, 0}, {9, 15}},
		},
	}
}

// ---- tests ----

func TestValidate_MinimalConfig(t *testing.T) {
	if err := Validate(base()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Rejects(t *testing.T) {
	cases := map[string]func(c *Config){
		"non-ascii device name": func(c *Config) { c.Device.Name = "Uhr-für-Küche" },
		"unknown driver mode":   func(c *Config) { c.Driver.Mode = "spi" },
		"modbus without endpoint": func(c *Config) {
			c.Driver.Mode = DriverModbus
		},
		"layout without room": func(c *Config) {
			c.Driver.Layout = &LayoutConfig{BaseUnitID: 240}
		},
		"lit row out of range": func(c *Config) { c.Display.Lit = [][2]int{{10, 0}} },
		"lit col out of range": func(c *Config) { c.Display.Lit = [][2]int{{0, 16}} },
		"negative settle":      func(c *Config) { c.Validation.SettleMs = -1 },
		"negative attempts":    func(c *Config) { c.Recovery.Attempts = -1 },
		"status without endpoint": func(c *Config) {
			c.Status = &StatusConfig{UnitID: 1}
		},
		"status unit id": func(c *Config) {
			c.Status = &StatusConfig{Endpoint: "127.0.0.1:502", UnitID: 256}
		},
		"status transport": func(c *Config) {
			c.Status = &StatusConfig{Endpoint: "127.0.0.1:502", Transport: "mqtt"}
		},
		"status slot beyond register space": func(c *Config) {
			c.Status = &StatusConfig{Endpoint: "127.0.0.1:502", Slot: 3277}
		},
		"log level":  func(c *Config) { c.Log.Level = "trace" },
		"log format": func(c *Config) { c.Log.Format = "xml" },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

func TestValidate_DoesNotMutate(t *testing.T) {
	cfg := base()
	cfg.Device.Name = "A-VERY-LONG-DEVICE-NAME"

	if err := Validate(cfg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Device.Name != "A-VERY-LONG-DEVICE-NAME" {
		t.Fatalf("Validate mutated device name: %q", cfg.Device.Name)
	}
	if cfg.Driver.TimeoutMs != 0 {
		t.Fatalf("Validate applied defaults")
	}
}

func TestNormalize_Defaults(t *testing.T) {
	cfg := base()
	cfg.Device.Name = "A-VERY-LONG-DEVICE-NAME"
	cfg.Driver.Mode = ""
	cfg.Status = &StatusConfig{Endpoint: "127.0.0.1:502"}
	cfg.Recovery.Attempts = 5

	Normalize(cfg)

	if cfg.Device.Name != "A-VERY-LONG-DEVI" {
		t.Fatalf("device name not truncated: %q", cfg.Device.Name)
	}
	if cfg.Driver.Mode != DriverMemory {
		t.Fatalf("driver mode: got=%q want=%q", cfg.Driver.Mode, DriverMemory)
	}
	if cfg.Display.LockMs != DefaultLockMs {
		t.Fatalf("lock timeout: got=%d want=%d", cfg.Display.LockMs, DefaultLockMs)
	}
	if cfg.Recovery.Attempts != 5 {
		t.Fatalf("explicit attempts overwritten: %d", cfg.Recovery.Attempts)
	}
	if cfg.Status.Transport != TransportModbus || cfg.Status.TimeoutMs != DefaultStatusTimeoutMs {
		t.Fatalf("status defaults not applied: %+v", *cfg.Status)
	}
	if cfg.Policy.Path != DefaultPolicyPath {
		t.Fatalf("policy path: got=%q", cfg.Policy.Path)
	}
}

func TestLoad_RejectsUnknownKeys(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.yaml")
	if err := os.WriteFile(good, []byte("device:\n  name: CLOCK-01\ndisplay:\n  lit: [[0, 1], [2, 3]]\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := Load(good)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cfg.Display.Lit) != 2 || cfg.Display.Lit[1] != [2]int{2, 3} {
		t.Fatalf("lit not parsed: %v", cfg.Display.Lit)
	}

	bad := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(bad, []byte("replicator:\n  units: []\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(bad); err == nil {
		t.Fatalf("expected unknown key error")
	}
}
