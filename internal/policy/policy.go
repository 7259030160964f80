// internal/policy/policy.go
package policy

import (
	"errors"
	"fmt"
	"time"

	"github.com/Stani56/Stanis-Clock-sub003/internal/validation"
)

// Version is the on-disk record version. Records with another version
// are treated as absent.
const Version = 1

// Interval bounds, in seconds.
const (
	MinIntervalSec = 10
	MaxIntervalSec = 65535
)

// ErrNotRestartable is returned for kinds that carry no restart flag.
var ErrNotRestartable = errors.New("policy: failure kind has no restart flag")

// RestartOn selects the failure kinds that may trigger a restart when
// they persist after recovery.
type RestartOn struct {
	HardwareFault      bool `yaml:"hardware_fault"`
	BusFailure         bool `yaml:"i2c_bus_failure"`
	SystematicMismatch bool `yaml:"systematic_mismatch"`
	PartialMismatch    bool `yaml:"partial_mismatch"`
	BrightnessMismatch bool `yaml:"grppwm_mismatch"`
}

// Policy is the operator-controlled validation configuration.
type Policy struct {
	Version               int       `yaml:"version"`
	Enabled               bool      `yaml:"enabled"`
	IntervalSec           uint32    `yaml:"interval_sec"`
	MaxRestartsPerSession uint32    `yaml:"max_restarts_per_session"`
	RestartOn             RestartOn `yaml:"restart_on"`
}

// Default returns the built-in policy: enabled, every five minutes,
// restart only on bus failure, at most three restarts per session.
func Default() Policy {
	return Policy{
		Version:               Version,
		Enabled:               true,
		IntervalSec:           300,
		MaxRestartsPerSession: 3,
		RestartOn: RestartOn{
			BusFailure: true,
		},
	}
}

// Interval is the validation period.
func (p Policy) Interval() time.Duration {
	return time.Duration(p.IntervalSec) * time.Second
}

// Restart reports whether a persisting failure of kind k may restart.
func (p Policy) Restart(k validation.Kind) bool {
	switch k {
	case validation.HardwareFault:
		return p.RestartOn.HardwareFault
	case validation.BusFailure:
		return p.RestartOn.BusFailure
	case validation.SystematicMismatch:
		return p.RestartOn.SystematicMismatch
	case validation.PartialMismatch:
		return p.RestartOn.PartialMismatch
	case validation.GlobalBrightnessMismatch:
		return p.RestartOn.BrightnessMismatch
	case validation.None, validation.SoftwareOnlyError:
		return false
	default:
		return false
	}
}

// withRestart returns p with the flag for k set to on.
func (p Policy) withRestart(k validation.Kind, on bool) (Policy, error) {
	switch k {
	case validation.HardwareFault:
		p.RestartOn.HardwareFault = on
	case validation.BusFailure:
		p.RestartOn.BusFailure = on
	case validation.SystematicMismatch:
		p.RestartOn.SystematicMismatch = on
	case validation.PartialMismatch:
		p.RestartOn.PartialMismatch = on
	case validation.GlobalBrightnessMismatch:
		p.RestartOn.BrightnessMismatch = on
	case validation.None, validation.SoftwareOnlyError:
		return p, fmt.Errorf("%w: %s", ErrNotRestartable, k)
	default:
		return p, fmt.Errorf("%w: %s", ErrNotRestartable, k)
	}
	return p, nil
}

// Validate checks the record. It does not mutate p.
func (p Policy) Validate() error {
	if p.Version != Version {
		return fmt.Errorf("policy: version %d, want %d", p.Version, Version)
	}
	if p.IntervalSec < MinIntervalSec || p.IntervalSec > MaxIntervalSec {
		return fmt.Errorf(
			"policy: interval_sec %d outside [%d, %d]",
			p.IntervalSec, MinIntervalSec, MaxIntervalSec,
		)
	}
	return nil
}
