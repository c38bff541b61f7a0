// Package rankcache maintains the precomputed ranking fields on
// establishment records and mirrors them into Redis for fast reads.
package rankcache

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricRankUpdateCyclesTotal    = "rank_update_cycles_total"
	MetricRankUpdateErrors         = "rank_update_errors_total"
	MetricRankUpdateCycleDuration  = "rank_update_cycle_duration_seconds"
	MetricRankLastCycleTimestamp   = "rank_last_cycle_timestamp"
	MetricRankLastCycleUpdateCount = "rank_last_cycle_update_count"
	MetricRankMirrorErrors         = "rank_mirror_errors_total"
)

// Metrics contains Prometheus metrics for rank cache updates.
// All operations are thread-safe.
type Metrics struct {
	cyclesTotal          prometheus.Counter
	updateErrors         prometheus.Counter
	cycleDuration        prometheus.Histogram
	lastCycleTimestamp   prometheus.Gauge
	lastCycleUpdateCount prometheus.Gauge
	mirrorErrors         prometheus.Counter
}

// NewMetrics creates a Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRankUpdateCyclesTotal,
			Help: "Total number of rank cache update cycles",
		}),
		updateErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRankUpdateErrors,
			Help: "Total number of per-establishment rank update failures",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricRankUpdateCycleDuration,
			Help:    "Histogram of rank cache update cycle duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 10.0, 30.0},
		}),
		lastCycleTimestamp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricRankLastCycleTimestamp,
			Help: "Unix timestamp of the last completed rank update cycle",
		}),
		lastCycleUpdateCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricRankLastCycleUpdateCount,
			Help: "Number of establishments updated in the last cycle",
		}),
		mirrorErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricRankMirrorErrors,
			Help: "Total number of Redis mirror write failures",
		}),
	}
}

// Register registers all metrics with the given registry.
// Returns an error if registration fails.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncCyclesTotal increments the cycle counter.
func (m *Metrics) IncCyclesTotal() {
	m.cyclesTotal.Inc()
}

// IncUpdateErrors increments the per-establishment failure counter.
func (m *Metrics) IncUpdateErrors() {
	m.updateErrors.Inc()
}

// ObserveCycleDuration records a cycle duration sample.
func (m *Metrics) ObserveCycleDuration(seconds float64) {
	m.cycleDuration.Observe(seconds)
}

// SetLastCycleTimestamp sets the last cycle timestamp gauge.
func (m *Metrics) SetLastCycleTimestamp(timestamp float64) {
	m.lastCycleTimestamp.Set(timestamp)
}

// SetLastCycleUpdateCount sets the last cycle update count gauge.
func (m *Metrics) SetLastCycleUpdateCount(count float64) {
	m.lastCycleUpdateCount.Set(count)
}

// IncMirrorErrors increments the Redis mirror failure counter.
func (m *Metrics) IncMirrorErrors() {
	m.mirrorErrors.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.cyclesTotal,
		m.updateErrors,
		m.cycleDuration,
		m.lastCycleTimestamp,
		m.lastCycleUpdateCount,
		m.mirrorErrors,
	}
}
