package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors exported on /metrics. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
	storeCalls   *prometheus.CounterVec
	storeLatency *prometheus.HistogramVec
	inquiries    *prometheus.CounterVec
	brokerUp     prometheus.Gauge
}

// New registers the collectors on a fresh registry
func New(serviceName string) *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	labels := prometheus.Labels{"service": serviceName}
	m := &Metrics{
		registry: registry,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "atelier_http_requests_total",
			Help:        "HTTP requests by route and status code.",
			ConstLabels: labels,
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "atelier_http_request_duration_seconds",
			Help:        "HTTP request latency by route.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"route"}),
		storeCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "atelier_store_calls_total",
			Help:        "Store calls by operation and outcome.",
			ConstLabels: labels,
		}, []string{"op", "outcome"}),
		storeLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "atelier_store_call_duration_seconds",
			Help:        "Store call latency by operation.",
			ConstLabels: labels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"op"}),
		inquiries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "atelier_inquiries_total",
			Help:        "Contact form submissions by result.",
			ConstLabels: labels,
		}, []string{"result"}),
		brokerUp: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "atelier_broker_up",
			Help:        "1 when the inquiry notification broker is connected.",
			ConstLabels: labels,
		}),
	}

	registry.MustRegister(m.httpRequests, m.httpDuration, m.storeCalls, m.storeLatency, m.inquiries, m.brokerUp)
	return m
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveHTTP records one finished request to a named route
func (m *Metrics) ObserveHTTP(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// ObserveStore records one store call; a non-nil err counts as an error outcome
func (m *Metrics) ObserveStore(op string, err error, elapsed time.Duration) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.storeCalls.WithLabelValues(op, outcome).Inc()
	m.storeLatency.WithLabelValues(op).Observe(elapsed.Seconds())
}

// Inquiry counts a contact form outcome: "stored", "invalid" or "failed".
func (m *Metrics) Inquiry(result string) {
	if m == nil {
		return
	}
	m.inquiries.WithLabelValues(result).Inc()
}

// BrokerUp records whether notifications can currently be published
func (m *Metrics) BrokerUp(up bool) {
	if m == nil {
		return
	}
	if up {
		m.brokerUp.Set(1)
	} else {
		m.brokerUp.Set(0)
	}
}
