// internal/config/normalize.go
package config

import "github.com/Stani56/Stanis-Clock-sub003/internal/status"

// Defaults applied by Normalize to zero values.
const (
	DefaultDriverTimeoutMs = 1000
	DefaultBrightness      = 128
	DefaultIntensity       = 255
	DefaultRefreshMs       = 1000
	DefaultLockMs          = 1000
	DefaultSettleMs        = 50
	DefaultDeferMs         = 500
	DefaultDisabledPollMs  = 5000
	DefaultRestartDelayMs  = 5000
	DefaultOnDemandPerMin  = 6
	DefaultAttempts        = 3
	DefaultBackoffMs       = 100
	DefaultBusSettleMs     = 50
	DefaultStatusTimeoutMs = 2000
	DefaultPolicyPath      = "ledguard-policy.yaml"
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// Normalize device_name:
	// - ASCII already validated
	// - Truncate to max 16 characters
	if len(cfg.Device.Name) > status.DeviceNameMaxChars {
		cfg.Device.Name = cfg.Device.Name[:status.DeviceNameMaxChars]
	}

	d := &cfg.Driver
	if d.Mode == "" {
		d.Mode = DriverMemory
	}
	setDefault(&d.TimeoutMs, DefaultDriverTimeoutMs)
	if d.Brightness == 0 {
		d.Brightness = DefaultBrightness
	}

	if cfg.Display.Intensity == 0 {
		cfg.Display.Intensity = DefaultIntensity
	}
	setDefault(&cfg.Display.RefreshMs, DefaultRefreshMs)
	setDefault(&cfg.Display.LockMs, DefaultLockMs)

	v := &cfg.Validation
	setDefault(&v.SettleMs, DefaultSettleMs)
	setDefault(&v.DeferMs, DefaultDeferMs)
	setDefault(&v.DisabledPollMs, DefaultDisabledPollMs)
	setDefault(&v.RestartDelayMs, DefaultRestartDelayMs)
	setDefault(&v.OnDemandPerMin, DefaultOnDemandPerMin)

	r := &cfg.Recovery
	setDefault(&r.Attempts, DefaultAttempts)
	setDefault(&r.BackoffMs, DefaultBackoffMs)
	setDefault(&r.BusSettleMs, DefaultBusSettleMs)

	if cfg.Policy.Path == "" {
		cfg.Policy.Path = DefaultPolicyPath
	}

	if s := cfg.Status; s != nil {
		if s.Transport == "" {
			s.Transport = TransportModbus
		}
		setDefault(&s.TimeoutMs, DefaultStatusTimeoutMs)
	}

	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

func setDefault(v *int, def int) {
	if *v == 0 {
		*v = def
	}
}
