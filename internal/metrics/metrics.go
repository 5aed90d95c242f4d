// Package metrics exposes Prometheus instruments for the lookup service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Lookup outcomes.
const (
	PathFresh    = "fresh"
	PathRefresh  = "refresh"
	PathNotFound = "not_found"
	PathError    = "error"
)

// Metrics tracks name lookups, upstream calls, popular-name queries and
// breaker state. A nil *Metrics is valid and records nothing.
type Metrics struct {
	Lookups          *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec
	PopularQueries   *prometheus.CounterVec
	CircuitState     *prometheus.GaugeVec
}

// New creates a Metrics instance registered with reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Lookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "namechecker_lookups_total",
			Help: "Name lookups by resolver path",
		}, []string{"path"}),
		UpstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "namechecker_upstream_request_duration_seconds",
			Help:    "Duration of upstream API calls",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"service", "outcome"}),
		PopularQueries: f.NewCounterVec(prometheus.CounterOpts{
			Name: "namechecker_popular_queries_total",
			Help: "Popular-name queries by outcome",
		}, []string{"outcome"}),
		CircuitState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "namechecker_circuit_state",
			Help: "Circuit breaker state per upstream (0 closed, 1 open, 2 half-open)",
		}, []string{"service"}),
	}
}

// IncLookup records a lookup that took the given path.
func (m *Metrics) IncLookup(path string) {
	if m == nil {
		return
	}
	m.Lookups.WithLabelValues(path).Inc()
}

// ObserveUpstream records an upstream call started at start.
func (m *Metrics) ObserveUpstream(service string, start time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.UpstreamDuration.WithLabelValues(service, outcome).Observe(time.Since(start).Seconds())
}

// IncPopular records a popular-names query outcome.
func (m *Metrics) IncPopular(outcome string) {
	if m == nil {
		return
	}
	m.PopularQueries.WithLabelValues(outcome).Inc()
}

// SetCircuitState records the numeric breaker state for service.
func (m *Metrics) SetCircuitState(service string, state int) {
	if m == nil {
		return
	}
	m.CircuitState.WithLabelValues(service).Set(float64(state))
}
