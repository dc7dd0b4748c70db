// Package metrics exposes Prometheus collectors for the simulator: outbound
// sandbox calls, inbound routes, and consent operation outcomes.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/raidiam/priora-mock-tpp/shared/errs"
)

const namespace = "priora_tpp"

type Metrics struct {
	registry         *prometheus.Registry
	outboundRequests *prometheus.CounterVec
	outboundDuration *prometheus.HistogramVec
	inboundRequests  *prometheus.CounterVec
	operations       *prometheus.CounterVec
}

// New creates the collectors on a dedicated registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		outboundRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sandbox_requests_total",
			Help:      "Outbound requests to the banking sandbox by status code and method.",
		}, []string{"code", "method"}),
		outboundDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sandbox_request_duration_seconds",
			Help:      "Latency of outbound requests to the banking sandbox.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		inboundRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Inbound HTTP requests by status code and method.",
		}, []string{"code", "method"}),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consent_operations_total",
			Help:      "Consent operations by name and outcome.",
		}, []string{"operation", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.outboundRequests,
		m.outboundDuration,
		m.inboundRequests,
		m.operations,
	)
	return m
}

// InstrumentRoundTripper wraps an outbound transport.
func (m *Metrics) InstrumentRoundTripper(next http.RoundTripper) http.RoundTripper {
	return promhttp.InstrumentRoundTripperCounter(m.outboundRequests,
		promhttp.InstrumentRoundTripperDuration(m.outboundDuration, next))
}

// InstrumentHandler wraps the inbound route handler.
func (m *Metrics) InstrumentHandler(next http.Handler) http.Handler {
	return promhttp.InstrumentHandlerCounter(m.inboundRequests, next)
}

// ObserveOperation records the outcome of a consent operation. The outcome is
// "success" or the error kind.
func (m *Metrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "internal"
		if e, ok := errs.As(err); ok {
			outcome = string(e.Kind)
		}
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
