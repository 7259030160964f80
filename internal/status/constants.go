// internal/status/constants.go
package status

// Health status block layout constants.
// These values define the protocol and MUST NOT be configurable.

// ---- BLOCK GEOMETRY ----

// SlotsPerDevice is the fixed number of logical slots per device.
const SlotsPerDevice = 20

// ---- SLOT INDICES ----

// SlotHealthCode holds the device health state.
const SlotHealthCode = 0

// SlotFailureKind holds the failure kind of the last pass (0 = none).
const SlotFailureKind = 1

// SlotHealthScore holds the 0..100 health score.
const SlotHealthScore = 2

// SlotConsecutiveFailures holds the current failure streak.
const SlotConsecutiveFailures = 3

// SlotRecoveryOutcome holds the recovery outcome of the last pass.
const SlotRecoveryOutcome = 4

// SlotMismatches holds the hardware mismatch count of the last pass.
const SlotMismatches = 5

// SlotReadFailures holds the chip read failure count of the last pass.
const SlotReadFailures = 6

// SlotFaultyChips holds the faulted chip count of the last pass.
const SlotFaultyChips = 7

// SlotFailuresLast24h holds the rolling 24 h failure count.
const SlotFailuresLast24h = 8

// SlotSecondsInError holds the duration (in seconds) the matrix has been failing.
const SlotSecondsInError = 9

// LiveSlots is the number of slots rewritten incrementally.
const LiveSlots = SlotSecondsInError + 1

// ---- RESERVED RANGE ----

// Slot 10 is reserved for future use.
const SlotReserved = 10

// ---- DEVICE NAME ----

// SlotDeviceNameStart is the first slot used for the device name.
// Device name is always placed at the END of the status block.
const SlotDeviceNameStart = 11

// SlotDeviceNameSlots is the number of slots reserved for the device name.
const SlotDeviceNameSlots = 8

// SlotDeviceNameEnd is the last slot used for the device name (inclusive).
const SlotDeviceNameEnd = SlotDeviceNameStart + SlotDeviceNameSlots - 1

// ---- LIMITS ----

// DeviceNameMaxChars is the maximum number of ASCII characters stored for device name.
const DeviceNameMaxChars = 16

// ---- HEALTH CODES ----

// HealthUnknown represents an unknown or boot state.
const HealthUnknown uint16 = 0

// HealthOK represents a matrix that passed validation.
const HealthOK uint16 = 1

// HealthError represents a failed validation pass.
const HealthError uint16 = 2

// HealthStale represents a skipped pass (display state unavailable).
const HealthStale uint16 = 3

// HealthDisabled represents periodic validation switched off.
const HealthDisabled uint16 = 4
