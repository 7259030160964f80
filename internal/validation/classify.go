// internal/validation/classify.go
package validation

import "github.com/Stani56/Stanis-Clock-sub003/internal/matrix"

// SystematicPercent is the share of mismatched LEDs above which a
// mismatch is treated as systematic. The comparison is strict.
const SystematicPercent = 20

// Classify maps a result to exactly one Kind. Physical faults outrank
// bus loss, which outranks data divergence, which outranks cosmetic
// brightness drift and software-only errors.
func Classify(r Result) Kind {
	switch {
	case r.Valid:
		return None
	case r.FaultsDetected:
		return HardwareFault
	case r.AllChipsFailed():
		return BusFailure
	case r.HardwareMismatches()*100 > matrix.Total*SystematicPercent:
		return SystematicMismatch
	case r.HardwareMismatches() > 0:
		return PartialMismatch
	case r.BrightnessMismatch:
		return GlobalBrightnessMismatch
	case r.SoftwareErrors() > 0 && r.HardwareValid:
		return SoftwareOnlyError
	default:
		return None
	}
}
