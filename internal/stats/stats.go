// internal/stats/stats.go
package stats

import (
	"time"

	"github.com/Stani56/Stanis-Clock-sub003/internal/lock"
	"github.com/Stani56/Stanis-Clock-sub003/internal/validation"
)

// Window is the span of the rolling failure count.
const Window = 24 * time.Hour

// Statistics is a point-in-time copy of the counters.
type Statistics struct {
	// lifetime counters per failure kind
	HardwareFaults       uint64
	BusFailures          uint64
	SystematicMismatches uint64
	PartialMismatches    uint64
	BrightnessMismatches uint64
	SoftwareErrors       uint64

	RecoveryAttempts  uint64
	RecoverySuccesses uint64
	RecoveryFailures  uint64

	ConsecutiveFailures    uint64
	MaxConsecutiveFailures uint64
	FailuresLast24h        uint64
	LastFailure            time.Time

	AutomaticRestarts uint64
	LastRestart       time.Time

	TotalValidations  uint64
	FailedValidations uint64
}

// Count returns the lifetime counter for k. None has no counter.
func (s Statistics) Count(k validation.Kind) uint64 {
	switch k {
	case validation.None:
		return 0
	case validation.HardwareFault:
		return s.HardwareFaults
	case validation.BusFailure:
		return s.BusFailures
	case validation.SystematicMismatch:
		return s.SystematicMismatches
	case validation.PartialMismatch:
		return s.PartialMismatches
	case validation.GlobalBrightnessMismatch:
		return s.BrightnessMismatches
	case validation.SoftwareOnlyError:
		return s.SoftwareErrors
	default:
		return 0
	}
}

// Stats is the process-wide statistics singleton. Every method takes
// the lock for a short hold and returns lock.ErrTimeout if it cannot.
type Stats struct {
	mu  *lock.Mutex
	now func() time.Time

	s        Statistics
	failures []time.Time // timestamps inside Window, oldest first
}

// New returns zeroed statistics. A nil now selects time.Now.
func New(timeout time.Duration, now func() time.Time) *Stats {
	if now == nil {
		now = time.Now
	}
	return &Stats{mu: lock.New(timeout), now: now}
}

// Record counts one classified validation pass.
func (st *Stats) Record(k validation.Kind) error {
	return st.mu.Do(func() {
		now := st.now()
		st.s.TotalValidations++

		if k == validation.None {
			st.s.ConsecutiveFailures = 0
			st.prune(now)
			return
		}

		st.s.FailedValidations++
		st.s.ConsecutiveFailures++
		st.s.MaxConsecutiveFailures = max(st.s.MaxConsecutiveFailures, st.s.ConsecutiveFailures)
		st.s.LastFailure = now
		st.failures = append(st.failures, now)
		st.prune(now)

		switch k {
		case validation.None:
		case validation.HardwareFault:
			st.s.HardwareFaults++
		case validation.BusFailure:
			st.s.BusFailures++
		case validation.SystematicMismatch:
			st.s.SystematicMismatches++
		case validation.PartialMismatch:
			st.s.PartialMismatches++
		case validation.GlobalBrightnessMismatch:
			st.s.BrightnessMismatches++
		case validation.SoftwareOnlyError:
			st.s.SoftwareErrors++
		}
	})
}

// RecordRecoveryAttempt counts one recovery attempt.
func (st *Stats) RecordRecoveryAttempt() error {
	return st.mu.Do(func() {
		st.s.RecoveryAttempts++
	})
}

// RecordRecoveryOutcome counts the terminal outcome of one recovery.
func (st *Stats) RecordRecoveryOutcome(ok bool) error {
	return st.mu.Do(func() {
		if ok {
			st.s.RecoverySuccesses++
		} else {
			st.s.RecoveryFailures++
		}
	})
}

// RecordRestart counts a policy-gated restart.
func (st *Stats) RecordRestart() error {
	return st.mu.Do(func() {
		st.s.AutomaticRestarts++
		st.s.LastRestart = st.now()
	})
}

// Snapshot returns a copy with the rolling window brought up to date.
func (st *Stats) Snapshot() (Statistics, error) {
	var out Statistics
	err := st.mu.Do(func() {
		st.prune(st.now())
		out = st.s
	})
	return out, err
}

// Reset zeroes every counter. It is the only way counters go down,
// apart from the streak.
func (st *Stats) Reset() error {
	return st.mu.Do(func() {
		st.s = Statistics{}
		st.failures = nil
	})
}

// prune drops failures older than Window. Caller holds the lock.
func (st *Stats) prune(now time.Time) {
	cut := 0
	for cut < len(st.failures) && now.Sub(st.failures[cut]) >= Window {
		cut++
	}
	if cut > 0 {
		st.failures = append(st.failures[:0], st.failures[cut:]...)
	}
	st.s.FailuresLast24h = uint64(len(st.failures))
}
