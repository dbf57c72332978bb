// Package metrics exposes Prometheus instrumentation for the ingestion
// pipeline. All observation methods are nil-receiver safe so callers can
// run with metrics disabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the pipeline's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	fetchOutcomes    *prometheus.CounterVec
	blockedSessions  *prometheus.GaugeVec
	cycleDuration    *prometheus.HistogramVec
	recordsProcessed *prometheus.CounterVec
	recordsSkipped   *prometheus.CounterVec
	movementAlerts   *prometheus.CounterVec
	opportunities    *prometheus.CounterVec
}

// New creates a Metrics backed by a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		fetchOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strikebot",
			Name:      "fetch_outcomes_total",
			Help:      "Fetch attempts by source and outcome (success, soft_block, hard_error).",
		}, []string{"source", "outcome"}),
		blockedSessions: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "strikebot",
			Name:      "blocked_sessions",
			Help:      "Currently blocked sessions per source.",
		}, []string{"source"}),
		cycleDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "strikebot",
			Name:      "sync_cycle_duration_seconds",
			Help:      "Wall-clock duration of one sync cycle.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}, []string{"source"}),
		recordsProcessed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strikebot",
			Name:      "records_processed_total",
			Help:      "Snapshots successfully ingested per source.",
		}, []string{"source"}),
		recordsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strikebot",
			Name:      "records_skipped_total",
			Help:      "Records dropped by validation or fetch failure per source.",
		}, []string{"source"}),
		movementAlerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strikebot",
			Name:      "movement_alerts_total",
			Help:      "Movement alerts emitted by classification.",
		}, []string{"movement"}),
		opportunities: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "strikebot",
			Name:      "arbitrage_opportunities_total",
			Help:      "Arbitrage opportunities detected by combination type.",
		}, []string{"type"}),
	}
}

// Registry returns the backing registry for HTTP exposition.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveFetch(source, outcome string) {
	if m == nil {
		return
	}
	m.fetchOutcomes.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) SetBlockedSessions(source string, n int) {
	if m == nil {
		return
	}
	m.blockedSessions.WithLabelValues(source).Set(float64(n))
}

func (m *Metrics) ObserveCycle(source string, seconds float64) {
	if m == nil {
		return
	}
	m.cycleDuration.WithLabelValues(source).Observe(seconds)
}

func (m *Metrics) AddProcessed(source string, n int) {
	if m == nil {
		return
	}
	m.recordsProcessed.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) AddSkipped(source string, n int) {
	if m == nil {
		return
	}
	m.recordsSkipped.WithLabelValues(source).Add(float64(n))
}

func (m *Metrics) ObserveMovement(movement string) {
	if m == nil {
		return
	}
	m.movementAlerts.WithLabelValues(movement).Inc()
}

func (m *Metrics) ObserveOpportunity(typ string) {
	if m == nil {
		return
	}
	m.opportunities.WithLabelValues(typ).Inc()
}
