// Package metrics is the ambient Prometheus registry every phase and
// outbound adapter reports against: a struct of pre-registered
// collectors built off a caller-supplied *prometheus.Registry, so unit
// tests get isolation via NewWithRegistry instead of fighting the global
// default registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds every collector the engine reports against. A nil
// *Metrics is valid everywhere it is used: every recording method below
// is a nil-safe no-op, so callers never need to nil-check before use.
type Metrics struct {
	httpRequestDuration *prometheus.HistogramVec
	phaseDuration       *prometheus.HistogramVec
	patternsDetected    *prometheus.CounterVec
	synergiesDetected   *prometheus.CounterVec
	suggestionsDrafted  prometheus.Counter
	runStatus           *prometheus.CounterVec
	adapterCalls        *prometheus.CounterVec
}

// New registers every collector against the global default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers every collector against reg, so tests can
// supply a fresh *prometheus.Registry and avoid cross-test collisions
// (mirrors gatewayMetrics.NewMetricsWithRegistry).
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "insightd_http_request_duration_seconds",
			Help:    "Ambient HTTP surface request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint", "status"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "insightd_phase_duration_seconds",
			Help:    "Daily analysis run phase duration in seconds.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"phase", "status"}),
		patternsDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightd_patterns_detected_total",
			Help: "Patterns persisted per detector family.",
		}, []string{"kind"}),
		synergiesDetected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightd_synergies_detected_total",
			Help: "Synergies persisted per type.",
		}, []string{"type"}),
		suggestionsDrafted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "insightd_suggestions_drafted_total",
			Help: "Draft suggestions inserted across all runs.",
		}),
		runStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightd_analysis_runs_total",
			Help: "Completed analysis runs by terminal status.",
		}, []string{"status"}),
		adapterCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "insightd_adapter_calls_total",
			Help: "Outbound suspension-point calls by adapter and outcome.",
		}, []string{"adapter", "outcome"}),
	}
	reg.MustRegister(
		m.httpRequestDuration, m.phaseDuration, m.patternsDetected,
		m.synergiesDetected, m.suggestionsDrafted, m.runStatus, m.adapterCalls,
	)
	return m
}

func (m *Metrics) ObserveHTTPRequest(method, endpoint, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequestDuration.WithLabelValues(method, endpoint, status).Observe(d.Seconds())
}

func (m *Metrics) ObservePhase(phase, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.phaseDuration.WithLabelValues(phase, status).Observe(d.Seconds())
}

func (m *Metrics) AddPatterns(kind string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.patternsDetected.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) AddSynergies(typ string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.synergiesDetected.WithLabelValues(typ).Add(float64(n))
}

func (m *Metrics) AddSuggestionsDrafted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.suggestionsDrafted.Add(float64(n))
}

func (m *Metrics) ObserveRunStatus(status string) {
	if m == nil {
		return
	}
	m.runStatus.WithLabelValues(status).Inc()
}

func (m *Metrics) ObserveAdapterCall(adapter, outcome string) {
	if m == nil {
		return
	}
	m.adapterCalls.WithLabelValues(adapter, outcome).Inc()
}
