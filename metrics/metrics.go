// Package metrics defines the Prometheus collectors exported by the service.
// Every recording method is safe to call on a nil *Collectors, which turns
// instrumentation off.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "zoraprofiles"

// Collectors groups the service's metrics.
type Collectors struct {
	fetches          *prometheus.CounterVec
	fetchErrors      *prometheus.CounterVec
	retries          *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
	upstreamDuration *prometheus.HistogramVec
	breakerOpen      prometheus.Gauge
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	identifiers      prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Collectors {
	f := promauto.With(reg)
	return &Collectors{
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_total",
			Help:      "Profile and coin lookups by kind and serving layer (cache, inflight, live).",
		}, []string{"kind", "source"}),
		fetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetch_errors_total",
			Help:      "Lookups that failed after all retries.",
		}, []string{"kind"}),
		retries: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_retries_total",
			Help:      "Upstream attempts that failed and were retried.",
		}, []string{"kind"}),
		upstreamRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upstream_requests_total",
			Help:      "HTTP requests sent to the upstream API by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		upstreamDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "upstream_request_duration_seconds",
			Help:      "Latency of upstream API requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		breakerOpen: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upstream_breaker_open",
			Help:      "1 while the upstream circuit breaker rejects requests.",
		}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by method and status code.",
		}, []string{"method", "code"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Latency of served HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		identifiers: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_identifiers",
			Help:      "Identifiers per aggregated request after de-duplication.",
			Buckets:   []float64{1, 2, 5, 10, 15, 20, 50},
		}),
	}
}

// ObserveFetch counts one lookup served by source.
func (c *Collectors) ObserveFetch(kind, source string) {
	if c == nil {
		return
	}
	c.fetches.WithLabelValues(kind, source).Inc()
}

// ObserveFetchError counts one lookup that failed for good.
func (c *Collectors) ObserveFetchError(kind string) {
	if c == nil {
		return
	}
	c.fetchErrors.WithLabelValues(kind).Inc()
}

// ObserveRetry counts one retried upstream attempt.
func (c *Collectors) ObserveRetry(kind string) {
	if c == nil {
		return
	}
	c.retries.WithLabelValues(kind).Inc()
}

// ObserveUpstream records an upstream request outcome and its latency.
func (c *Collectors) ObserveUpstream(endpoint, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.upstreamRequests.WithLabelValues(endpoint, outcome).Inc()
	c.upstreamDuration.WithLabelValues(endpoint).Observe(d.Seconds())
}

// SetBreakerOpen reports the circuit breaker state.
func (c *Collectors) SetBreakerOpen(open bool) {
	if c == nil {
		return
	}
	if open {
		c.breakerOpen.Set(1)
		return
	}
	c.breakerOpen.Set(0)
}

// ObserveHTTP records a served request.
func (c *Collectors) ObserveHTTP(method string, code int, d time.Duration) {
	if c == nil {
		return
	}
	c.httpRequests.WithLabelValues(method, strconv.Itoa(code)).Inc()
	c.httpDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveIdentifiers records how many identifiers one request resolved.
func (c *Collectors) ObserveIdentifiers(n int) {
	if c == nil {
		return
	}
	c.identifiers.Observe(float64(n))
}
