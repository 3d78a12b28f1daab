// Package metrics exposes chat engine counters to Prometheus. A nil
// *Metrics is a valid no-op recorder so tests and tools can skip wiring
// a registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the chat engine instruments.
type Metrics struct {
	requestsTotal        *prometheus.CounterVec
	latencySeconds       prometheus.Histogram
	activeRequests       prometheus.Gauge
	toughLoveActivations prometheus.Counter
	partialRetrievals    prometheus.Counter
	tokensTotal          *prometheus.CounterVec
}

// New creates and registers the chat metrics on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kindred",
			Subsystem: "chat",
			Name:      "requests_total",
			Help:      "Chat requests by terminal status.",
		}, []string{"status"}),
		latencySeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kindred",
			Subsystem: "chat",
			Name:      "latency_seconds",
			Help:      "End-to-end chat request latency.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		activeRequests: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "kindred",
			Subsystem: "chat",
			Name:      "active_requests",
			Help:      "Chat requests currently in flight.",
		}),
		toughLoveActivations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kindred",
			Subsystem: "chat",
			Name:      "tough_love_activations_total",
			Help:      "Replies generated in the direct-feedback register.",
		}),
		partialRetrievals: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kindred",
			Subsystem: "chat",
			Name:      "partial_retrievals_total",
			Help:      "Context builds that lost at least one source partition.",
		}),
		tokensTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kindred",
			Subsystem: "chat",
			Name:      "tokens_total",
			Help:      "Tokens consumed by completion calls.",
		}, []string{"kind"}),
	}

	reg.MustRegister(
		m.requestsTotal,
		m.latencySeconds,
		m.activeRequests,
		m.toughLoveActivations,
		m.partialRetrievals,
		m.tokensTotal,
	)
	return m
}

// RequestStarted marks a request in flight.
func (m *Metrics) RequestStarted() {
	if m == nil {
		return
	}
	m.activeRequests.Inc()
}

// RequestFinished records the terminal status and latency of a request.
func (m *Metrics) RequestFinished(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.activeRequests.Dec()
	m.requestsTotal.WithLabelValues(status).Inc()
	m.latencySeconds.Observe(elapsed.Seconds())
}

// ToughLoveActivated counts one direct-register reply.
func (m *Metrics) ToughLoveActivated() {
	if m == nil {
		return
	}
	m.toughLoveActivations.Inc()
}

// PartialRetrieval counts one degraded context build.
func (m *Metrics) PartialRetrieval() {
	if m == nil {
		return
	}
	m.partialRetrievals.Inc()
}

// Tokens records token usage for one completion call.
func (m *Metrics) Tokens(promptTokens, completionTokens int) {
	if m == nil {
		return
	}
	m.tokensTotal.WithLabelValues("prompt").Add(float64(promptTokens))
	m.tokensTotal.WithLabelValues("completion").Add(float64(completionTokens))
}
