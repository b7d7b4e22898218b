// Package metrics exposes Prometheus collectors on a side port, kept
// separate from the trading HTTP surface so a scrape never contends
// with request handling.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector groups the engine's counters and histograms. The engine
// increments OrdersPlaced and TradesExecuted; FillLatency is registered
// and exposed, but no code path observes into it.
type Collector struct {
	OrdersPlaced   *prometheus.CounterVec
	TradesExecuted prometheus.Counter
	FillLatency    prometheus.Histogram

	registry *prometheus.Registry
}

// New registers every collector against its own registry so tests can
// build throwaway instances without colliding with prometheus.
// DefaultRegisterer.
func New() *Collector {
	reg := prometheus.NewRegistry()
	c := &Collector{
		OrdersPlaced: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "matching_engine_orders_placed_total",
			Help: "Orders accepted by the matching engine, labeled by side.",
		}, []string{"side"}),
		TradesExecuted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "matching_engine_trades_executed_total",
			Help: "Fills executed across all stocks.",
		}),
		FillLatency: promauto.With(reg).NewHistogram(prometheus.HistogramOpts{
			Name:    "matching_engine_fill_latency_seconds",
			Help:    "Time from order acceptance to its first fill.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	c.registry = reg
	return c
}

// Handler serves this collector's registry in the Prometheus exposition
// format, meant to be mounted at /metrics on its own port.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
