// internal/scheduler/state.go
package scheduler

// State is the position of the scheduler in its cycle.
type State uint32

const (
	Idle State = iota
	Sampling
	Classifying
	Recovering
	Reporting
	Sleeping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sampling:
		return "sampling"
	case Classifying:
		return "classifying"
	case Recovering:
		return "recovering"
	case Reporting:
		return "reporting"
	case Sleeping:
		return "sleeping"
	default:
		return "unknown"
	}
}
