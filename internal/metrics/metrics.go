// Package metrics exposes Prometheus collectors for negotiation runs. Every
// method is nil-safe so callers can run without instrumentation.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "negotiator"

// Collectors groups the counters and histograms recorded during runs.
type Collectors struct {
	registry         *prometheus.Registry
	runs             *prometheus.CounterVec
	events           *prometheus.CounterVec
	quotes           *prometheus.CounterVec
	responderCalls   *prometheus.CounterVec
	responderLatency *prometheus.HistogramVec
}

// New registers a fresh set of collectors on a private registry.
func New() *Collectors {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Negotiation runs by terminal outcome.",
		}, []string{"outcome"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events emitted to observers by type.",
		}, []string{"type"}),
		quotes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "quote_extractions_total",
			Help:      "Supplier replies by quote extraction result.",
		}, []string{"result"}),
		responderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responder_calls_total",
			Help:      "Responder invocations by persona and outcome.",
		}, []string{"persona", "outcome"}),
		responderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "responder_latency_seconds",
			Help:      "Responder invocation latency by persona.",
			Buckets:   []float64{0.05, 0.25, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"persona"}),
	}
	c.registry.MustRegister(c.runs, c.events, c.quotes, c.responderCalls, c.responderLatency)
	return c
}

// Handler serves the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and custom gatherers.
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

// ObserveRun records a finished run ("done" or "error").
func (c *Collectors) ObserveRun(outcome string) {
	if c == nil {
		return
	}
	c.runs.WithLabelValues(outcome).Inc()
}

// ObserveEvent records one emitted event.
func (c *Collectors) ObserveEvent(kind string) {
	if c == nil {
		return
	}
	c.events.WithLabelValues(kind).Inc()
}

// ObserveQuote records whether a supplier reply carried a readable quote.
func (c *Collectors) ObserveQuote(parsed bool) {
	if c == nil {
		return
	}
	result := "missing"
	if parsed {
		result = "parsed"
	}
	c.quotes.WithLabelValues(result).Inc()
}

// ObserveResponder records one responder call.
func (c *Collectors) ObserveResponder(persona string, elapsed time.Duration, err error) {
	if c == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.responderCalls.WithLabelValues(persona, outcome).Inc()
	c.responderLatency.WithLabelValues(persona).Observe(elapsed.Seconds())
}

// ResponderCalls exposes the responder call counter for assertions.
func (c *Collectors) ResponderCalls() *prometheus.CounterVec {
	if c == nil {
		return nil
	}
	return c.responderCalls
}
