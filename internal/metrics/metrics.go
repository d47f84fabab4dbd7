// Package metrics holds the prometheus collectors the deal desk exports on /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dealdesk"

// Metrics records business events. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	transitions       *prometheus.CounterVec
	quoteCalculations *prometheus.CounterVec
	estimateDuration  prometheus.Histogram
	estimateResults   *prometheus.CounterVec
	priceImports      *prometheus.CounterVec
	eventsPublished   *prometheus.CounterVec
}

// New creates the collectors on a private registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deal_transitions_total",
			Help:      "Deal lifecycle actions attempted, by action and result",
		}, []string{"action", "result"}),
		quoteCalculations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_calculations_total",
			Help:      "Cost engine runs by kind (single, compare, quantities, deal_quote)",
		}, []string{"kind"}),
		estimateDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "estimate_duration_seconds",
			Help:      "Time taken to produce smart quote estimates",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2},
		}),
		estimateResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "estimates_total",
			Help:      "Estimate requests by outcome (found, empty, error)",
		}, []string{"outcome"}),
		priceImports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "price_record_imports_total",
			Help:      "Spreadsheet imports by result",
		}, []string{"result"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Realtime events handed to the websocket hub, by type",
		}, []string{"type"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.transitions,
		m.quoteCalculations,
		m.estimateDuration,
		m.estimateResults,
		m.priceImports,
		m.eventsPublished,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordTransition counts one attempted deal action. result is "ok" or an error kind.
func (m *Metrics) RecordTransition(action, result string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(action, result).Inc()
}

// RecordQuoteCalculation counts one engine run.
func (m *Metrics) RecordQuoteCalculation(kind string) {
	if m == nil {
		return
	}
	m.quoteCalculations.WithLabelValues(kind).Inc()
}

// ObserveEstimate records the duration and outcome of an estimate request.
func (m *Metrics) ObserveEstimate(started time.Time, outcome string) {
	if m == nil {
		return
	}
	m.estimateDuration.Observe(time.Since(started).Seconds())
	m.estimateResults.WithLabelValues(outcome).Inc()
}

// RecordImport counts one spreadsheet import attempt.
func (m *Metrics) RecordImport(result string) {
	if m == nil {
		return
	}
	m.priceImports.WithLabelValues(result).Inc()
}

// RecordEvent counts one published realtime event.
func (m *Metrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	m.eventsPublished.WithLabelValues(eventType).Inc()
}
