// Package metrics exposes the relay's Prometheus collectors on a dedicated
// registry.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	Registry = prometheus.NewRegistry()

	// InboundEvents counts inbound webhook calls by provider and outcome
	// (processed, not_mappable, subject_not_found, upstream_fetch_failed,
	// invalid_signature, unverified).
	InboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_inbound_events_total", Help: "Inbound webhook events by provider and outcome."},
		[]string{"provider", "outcome"},
	)

	// Deliveries counts delivery attempt outcomes by category and status.
	Deliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_deliveries_total", Help: "Delivery attempts by category and status."},
		[]string{"category", "status"},
	)

	// DeliveryLatency tracks outbound delivery latencies in milliseconds.
	DeliveryLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "relay_delivery_latency_ms", Help: "Outbound delivery latency in ms.", Buckets: []float64{10, 50, 100, 200, 500, 1000, 2000, 5000, 10000}},
		[]string{"category", "status"},
	)

	// EndpointsAutoDisabled counts endpoints disabled by the failure
	// threshold, per tenant.
	EndpointsAutoDisabled = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "relay_endpoints_auto_disabled_total", Help: "Endpoints auto-disabled after consecutive delivery failures."},
		[]string{"tenant_id"},
	)

	// HTTPRequests counts management/webhook API requests.
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
)

var regOnce sync.Once

// Register registers all collectors on the dedicated registry.
func Register() {
	regOnce.Do(func() {
		Registry.MustRegister(InboundEvents)
		Registry.MustRegister(Deliveries)
		Registry.MustRegister(DeliveryLatency)
		Registry.MustRegister(EndpointsAutoDisabled)
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Handler serves the registry for the /metrics route.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
