// internal/report/pass.go
package report

import (
	"github.com/google/uuid"

	"github.com/Stani56/Stanis-Clock-sub003/internal/stats"
	"github.com/Stani56/Stanis-Clock-sub003/internal/validation"
)

// Trigger names the entry point that ran a pass.
type Trigger uint8

const (
	Periodic Trigger = iota
	OnDemand
)

func (t Trigger) String() string {
	switch t {
	case Periodic:
		return "periodic"
	case OnDemand:
		return "on_demand"
	default:
		return "unknown"
	}
}

// Outcome is the recovery outcome of a pass.
type Outcome uint8

const (
	NotAttempted Outcome = iota
	Recovered
	RecoveryFailed
)

func (o Outcome) String() string {
	switch o {
	case NotAttempted:
		return "not_attempted"
	case Recovered:
		return "recovered"
	case RecoveryFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Pass is everything known about one validation pass once it is over.
type Pass struct {
	ID       uuid.UUID
	Trigger  Trigger
	Result   validation.Result
	Kind     validation.Kind
	Recovery Outcome
	Stats    stats.Statistics
	Health   int

	// Restart is set when the pass scheduled a policy-gated restart.
	Restart bool
}

// Failed reports whether the pass classified a failure.
func (p Pass) Failed() bool { return p.Kind != validation.None }
