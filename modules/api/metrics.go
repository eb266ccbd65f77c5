package api

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the client's Prometheus instrumentation. A nil *Metrics is
// valid and records nothing, so instrumentation stays optional.
type Metrics struct {
	cacheHits      prometheus.Counter
	cacheMisses    prometheus.Counter
	coalescedWaits prometheus.Counter
	requests       *prometheus.CounterVec
}

// NewMetrics registers the client collectors on reg. Pass
// prometheus.DefaultRegisterer for the global registry, or a private
// registry in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "storeapi_cache_hits_total",
			Help: "GET requests answered from the response cache.",
		}),
		cacheMisses: factory.NewCounter(prometheus.CounterOpts{
			Name: "storeapi_cache_misses_total",
			Help: "GET requests that had to go to the network.",
		}),
		coalescedWaits: factory.NewCounter(prometheus.CounterOpts{
			Name: "storeapi_coalesced_waits_total",
			Help: "GET requests that joined an identical in-flight call.",
		}),
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "storeapi_requests_total",
			Help: "Completed HTTP requests by method and status class.",
		}, []string{"method", "class"}),
	}
}

func (m *Metrics) hit() {
	if m == nil {
		return
	}
	m.cacheHits.Inc()
}

func (m *Metrics) miss() {
	if m == nil {
		return
	}
	m.cacheMisses.Inc()
}

func (m *Metrics) coalesced() {
	if m == nil {
		return
	}
	m.coalescedWaits.Inc()
}

func (m *Metrics) request(method, class string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, class).Inc()
}

func statusClass(status int) string {
	switch {
	case status == 0:
		return "transport"
	case status < 300:
		return "2xx"
	case status < 400:
		return "3xx"
	case status < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
