package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus instruments for the reference authority.
type Metrics struct {
	apiRequests *prometheus.CounterVec
	apiDuration *prometheus.HistogramVec
	writes      *prometheus.CounterVec
	rateLimited *prometheus.CounterVec
	orderTotal  *prometheus.HistogramVec
}

// NewMetrics registers the instruments on reg, or on the default
// registerer when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	apiRequests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "po_authority_requests_total",
		Help: "Counts authority API requests by method, route and status.",
	}, []string{"method", "route", "status"})

	apiDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "po_authority_request_duration_seconds",
		Help:    "Authority API latency per method and route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route"})

	writes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "po_authority_writes_total",
		Help: "Order writes and transitions by operation and result.",
	}, []string{"operation", "result"})

	rateLimited := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "po_authority_rate_limited_total",
		Help: "Requests refused by the order limiter.",
	}, []string{"reason"})

	orderTotal := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "po_authority_order_total_amount",
		Help:    "Grand total of orders when they are sent.",
		Buckets: []float64{100, 1000, 5000, 10000, 50000, 100000},
	}, []string{"store"})

	reg.MustRegister(apiRequests, apiDuration, writes, rateLimited, orderTotal)

	return &Metrics{
		apiRequests: apiRequests,
		apiDuration: apiDuration,
		writes:      writes,
		rateLimited: rateLimited,
		orderTotal:  orderTotal,
	}
}

// ObserveAPIRequest records an API request and latency.
func (m *Metrics) ObserveAPIRequest(method, route, status string, duration time.Duration) {
	if m == nil {
		return
	}
	methodLabel := sanitizeLabel(method)
	routeLabel := sanitizeLabel(route)
	m.apiRequests.WithLabelValues(methodLabel, routeLabel, status).Inc()
	m.apiDuration.WithLabelValues(methodLabel, routeLabel).Observe(duration.Seconds())
}

// RecordWrite counts a create, update, autosave or transition outcome.
func (m *Metrics) RecordWrite(operation, result string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(sanitizeLabel(operation), sanitizeLabel(result)).Inc()
}

func (m *Metrics) RecordRateLimited(reason string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(sanitizeLabel(reason)).Inc()
}

func (m *Metrics) ObserveOrderTotal(store string, amount float64) {
	if m == nil {
		return
	}
	m.orderTotal.WithLabelValues(sanitizeLabel(store)).Observe(amount)
}

func sanitizeLabel(val string) string {
	if val == "" {
		return "unknown"
	}
	return val
}
