// internal/report/metrics.go
package report

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics exports pass outcomes as Prometheus metrics.
type Metrics struct {
	passes       *prometheus.CounterVec
	recoveries   *prometheus.CounterVec
	restarts     prometheus.Counter
	duration     prometheus.Histogram
	health       prometheus.Gauge
	streak       prometheus.Gauge
	mismatches   prometheus.Gauge
	readFailures prometheus.Gauge
	faultyChips  prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		passes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledguard_validation_passes_total",
			Help: "Validation passes by trigger and failure kind",
		}, []string{"trigger", "kind"}),
		recoveries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledguard_recoveries_total",
			Help: "Recovery runs by outcome",
		}, []string{"outcome"}),
		restarts: f.NewCounter(prometheus.CounterOpts{
			Name: "ledguard_restarts_scheduled_total",
			Help: "Policy-gated restarts scheduled",
		}),
		duration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "ledguard_validation_duration_seconds",
			Help:    "Validation pass duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		}),
		health: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledguard_health_score",
			Help: "Current health score (0-100)",
		}),
		streak: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledguard_consecutive_failures",
			Help: "Current consecutive failure streak",
		}),
		mismatches: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledguard_hardware_mismatches",
			Help: "Hardware mismatches in the last pass",
		}),
		readFailures: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledguard_chip_read_failures",
			Help: "Chips that failed readback in the last pass",
		}),
		faultyChips: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledguard_faulty_chips",
			Help: "Chips reporting fault flags in the last pass",
		}),
	}
}

func (m *Metrics) Report(_ context.Context, p Pass) error {
	kind := p.Kind.String()
	if p.Result.Skipped {
		kind = "SKIPPED"
	}
	m.passes.WithLabelValues(p.Trigger.String(), kind).Inc()
	if p.Recovery != NotAttempted {
		m.recoveries.WithLabelValues(p.Recovery.String()).Inc()
	}
	if p.Restart {
		m.restarts.Inc()
	}
	m.health.Set(float64(p.Health))
	m.streak.Set(float64(p.Stats.ConsecutiveFailures))

	if p.Result.Skipped {
		return nil
	}
	m.duration.Observe(p.Result.Elapsed.Seconds())
	m.mismatches.Set(float64(p.Result.HardwareMismatches()))
	m.readFailures.Set(float64(p.Result.ReadFailures))
	m.faultyChips.Set(float64(p.Result.FaultyChips))
	return nil
}
