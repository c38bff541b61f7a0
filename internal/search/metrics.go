package search

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricSearchesTotal  = "search_requests_total"
	MetricSearchDuration = "search_duration_seconds"
	MetricSearchResults  = "search_result_count"
	MetricMirrorHits     = "search_rank_mirror_hits_total"
	MetricMirrorMisses   = "search_rank_mirror_misses_total"
)

// Metrics contains Prometheus metrics for the search service.
// All operations are thread-safe.
type Metrics struct {
	searchesTotal  prometheus.Counter
	searchDuration prometheus.Histogram
	resultCount    prometheus.Histogram
	mirrorHits     prometheus.Counter
	mirrorMisses   prometheus.Counter
}

// NewMetrics creates a Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		searchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricSearchesTotal,
			Help: "Total number of ranked search requests",
		}),
		searchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricSearchDuration,
			Help:    "Histogram of search request duration in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}),
		resultCount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    MetricSearchResults,
			Help:    "Histogram of matched establishments per search",
			Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500},
		}),
		mirrorHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricMirrorHits,
			Help: "Total candidates scored from the rank mirror",
		}),
		mirrorMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricMirrorMisses,
			Help: "Total candidates scored from the row cache after a mirror miss or failure",
		}),
	}
}

// Register registers all metrics with the given registry.
func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

// IncSearchesTotal increments the search request counter.
func (m *Metrics) IncSearchesTotal() {
	m.searchesTotal.Inc()
}

// ObserveSearchDuration records a search duration sample.
func (m *Metrics) ObserveSearchDuration(seconds float64) {
	m.searchDuration.Observe(seconds)
}

// ObserveResultCount records a matched-result-count sample.
func (m *Metrics) ObserveResultCount(count float64) {
	m.resultCount.Observe(count)
}

// IncMirrorHits increments the rank mirror hit counter.
func (m *Metrics) IncMirrorHits() {
	m.mirrorHits.Inc()
}

// IncMirrorMisses increments the rank mirror miss counter.
func (m *Metrics) IncMirrorMisses() {
	m.mirrorMisses.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.searchesTotal,
		m.searchDuration,
		m.resultCount,
		m.mirrorHits,
		m.mirrorMisses,
	}
}
