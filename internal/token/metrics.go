package token

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metric names as constants for consistency.
const (
	MetricTokensIssued     = "refresh_tokens_issued_total"
	MetricTokenRotations   = "refresh_token_rotations_total"
	MetricTokenRevocations = "refresh_token_revocations_total"
	MetricTokenReuseAlerts = "refresh_token_reuse_alerts_total"
)

// Metrics contains Prometheus metrics for the token rotation guard.
// All operations are thread-safe.
type Metrics struct {
	issued      prometheus.Counter
	rotations   prometheus.Counter
	revocations prometheus.Counter
	reuseAlerts prometheus.Counter
}

// NewMetrics creates a Metrics instance with all collectors initialized.
// The metrics are not registered; call Register to register them with a registry.
func NewMetrics() *Metrics {
	return &Metrics{
		issued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricTokensIssued,
			Help: "Total number of refresh tokens issued",
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricTokenRotations,
			Help: "Total number of successful refresh token rotations",
		}),
		revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricTokenRevocations,
			Help: "Total number of explicit full-user token revocations",
		}),
		reuseAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricTokenReuseAlerts,
			Help: "Total number of refresh token reuse security alerts",
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

// IncIssued increments the issued-token counter.
func (m *Metrics) IncIssued() {
	m.issued.Inc()
}

// IncRotations increments the rotation counter.
func (m *Metrics) IncRotations() {
	m.rotations.Inc()
}

// IncRevocations increments the explicit revocation counter.
func (m *Metrics) IncRevocations() {
	m.revocations.Inc()
}

// IncReuseAlerts increments the reuse alert counter.
func (m *Metrics) IncReuseAlerts() {
	m.reuseAlerts.Inc()
}

// Collectors returns all Prometheus collectors for testing.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.issued,
		m.rotations,
		m.revocations,
		m.reuseAlerts,
	}
}
