// Package metrics holds the service's Prometheus collectors. Collectors are
// registered on an injected registry so tests can use their own.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	registry *prometheus.Registry

	JobsDispatched       *prometheus.CounterVec
	DispatchFailures     *prometheus.CounterVec
	CompletionsProcessed *prometheus.CounterVec
	MalformedRecords     prometheus.Counter
	FindingsTotal        *prometheus.CounterVec
	DeliveriesTotal      *prometheus.CounterVec
	ConnectionsRemoved   prometheus.Counter
	ActiveSockets        prometheus.Gauge
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	RateLimitHits        *prometheus.CounterVec
}

// New registers every collector on reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,

		JobsDispatched: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vtd_jobs_dispatched_total",
			Help: "Analysis jobs started, by job kind",
		}, []string{"kind"}),
		DispatchFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vtd_dispatch_failures_total",
			Help: "Aborted dispatches, by the job kind that failed to start",
		}, []string{"kind"}),
		CompletionsProcessed: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vtd_completions_processed_total",
			Help: "Completion notifications handled, by api and job status",
		}, []string{"api", "status"}),
		MalformedRecords: f.NewCounter(prometheus.CounterOpts{
			Name: "vtd_malformed_records_total",
			Help: "Queued records that could not be decoded",
		}),
		FindingsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vtd_findings_total",
			Help: "Threat findings produced, by api and severity",
		}, []string{"api", "severity"}),
		DeliveriesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vtd_realtime_deliveries_total",
			Help: "Realtime deliveries attempted, by outcome",
		}, []string{"outcome"}),
		ConnectionsRemoved: f.NewCounter(prometheus.CounterOpts{
			Name: "vtd_connections_removed_total",
			Help: "Connections deregistered after a failed delivery",
		}),
		ActiveSockets: f.NewGauge(prometheus.GaugeOpts{
			Name: "vtd_websocket_active_connections",
			Help: "Websocket connections held by this process",
		}),
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vtd_http_requests_total",
			Help: "HTTP requests served, by method, route and status",
		}, []string{"method", "route", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vtd_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		RateLimitHits: f.NewCounterVec(prometheus.CounterOpts{
			Name: "vtd_rate_limit_hits_total",
			Help: "Requests rejected by a rate limit, by scope",
		}, []string{"scope"}),
	}
}

// Discard returns collectors bound to a private registry nobody scrapes.
func Discard() *Metrics {
	return New(prometheus.NewRegistry())
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveDelivery(ok bool) {
	outcome := "succeeded"
	if !ok {
		outcome = "failed"
	}
	m.DeliveriesTotal.WithLabelValues(outcome).Inc()
}
