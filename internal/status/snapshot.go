// internal/status/snapshot.go
package status

import "math"

// Snapshot represents exactly what the writer is allowed to deliver.
// It contains no logic and no memory of the past beyond current state.
type Snapshot struct {
	Health              uint16
	FailureKind         uint16
	HealthScore         uint16
	ConsecutiveFailures uint16
	RecoveryOutcome     uint16
	Mismatches          uint16
	ReadFailures        uint16
	FaultyChips         uint16
	FailuresLast24h     uint16
	SecondsInError      uint16
}

// Live returns the incrementally written slots, indexed by slot.
func (s Snapshot) Live() [LiveSlots]uint16 {
	var out [LiveSlots]uint16
	out[SlotHealthCode] = s.Health
	out[SlotFailureKind] = s.FailureKind
	out[SlotHealthScore] = s.HealthScore
	out[SlotConsecutiveFailures] = s.ConsecutiveFailures
	out[SlotRecoveryOutcome] = s.RecoveryOutcome
	out[SlotMismatches] = s.Mismatches
	out[SlotReadFailures] = s.ReadFailures
	out[SlotFaultyChips] = s.FaultyChips
	out[SlotFailuresLast24h] = s.FailuresLast24h
	out[SlotSecondsInError] = s.SecondsInError
	return out
}

// Clamp saturates a counter to a register value. Registers MUST NOT wrap.
func Clamp[T ~int | ~int64 | ~uint64 | ~uint32](v T) uint16 {
	if v < 0 {
		return 0
	}
	if uint64(v) > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(v)
}
