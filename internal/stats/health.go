// internal/stats/health.go
package stats

// HealthScore derives a 0..100 score from the counters with a fixed
// linear penalty model. Very large counters clamp instead of wrapping.
func HealthScore(s Statistics) int {
	score := int64(100)

	if s.HardwareFaults > 0 {
		score -= 10
	}
	if s.BusFailures > 0 {
		score -= 10
	}
	if s.SystematicMismatches > 0 {
		score -= 5
	}
	score -= 2 * (clampCount(s.PartialMismatches) + clampCount(s.BrightnessMismatches))
	if s.SoftwareErrors > 0 {
		score -= 1
	}

	// recovery failure rate above 10%; f > a/10 is f*10 > a without overflow
	if s.RecoveryAttempts > 0 && s.RecoveryFailures > s.RecoveryAttempts/10 {
		score -= 20
	}

	score -= 5 * clampCount(s.ConsecutiveFailures)

	// overall failure rate above 5%
	if s.TotalValidations > 0 && s.FailedValidations > s.TotalValidations/20 {
		score -= 10
	}

	return int(min(max(score, 0), 100))
}

// clampCount caps a counter at a value that can be multiplied by a
// small penalty without overflowing int64.
func clampCount(n uint64) int64 {
	const limit = 1 << 32
	if n > limit {
		return limit
	}
	return int64(n)
}
