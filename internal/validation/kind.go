// internal/validation/kind.go
package validation

import "fmt"

// Kind is the single failure classification of one validation pass.
// The set is closed; every switch over Kind lists all members.
type Kind uint8

// Kinds in strict precedence order, worst first after None.
const (
	None Kind = iota
	HardwareFault
	BusFailure
	SystematicMismatch
	PartialMismatch
	GlobalBrightnessMismatch
	SoftwareOnlyError

	kindCount
)

// Kinds returns every Kind, None first.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := None; k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Valid reports whether k is a member of the closed set.
func (k Kind) Valid() bool { return k < kindCount }

func (k Kind) String() string {
	switch k {
	case None:
		return "NONE"
	case HardwareFault:
		return "HARDWARE_FAULT"
	case BusFailure:
		return "I2C_BUS_FAILURE"
	case SystematicMismatch:
		return "SYSTEMATIC_MISMATCH"
	case PartialMismatch:
		return "PARTIAL_MISMATCH"
	case GlobalBrightnessMismatch:
		return "GRPPWM_MISMATCH"
	case SoftwareOnlyError:
		return "SOFTWARE_ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(k))
	}
}

// ParseKind is the inverse of String.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds() {
		if k.String() == s {
			return k, nil
		}
	}
	return None, fmt.Errorf("validation: unknown failure kind %q", s)
}
