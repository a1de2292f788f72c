package util

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	CatalogFetchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_fetches_total",
		Help: "Product sheet fetch-and-parse cycles by result",
	}, []string{"result"})

	CatalogFetchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "catalog_fetch_latency_seconds",
		Help:    "Latency of product sheet fetches",
		Buckets: prometheus.DefBuckets,
	})

	CatalogCacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_cache_hits_total",
		Help: "Product list reads served from the cache",
	})

	CatalogCacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "catalog_cache_misses_total",
		Help: "Product list reads that required a fetch",
	})

	CatalogProducts = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "catalog_products",
		Help: "Number of products in the cached catalog",
	})

	SessionActionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "session_actions_total",
		Help: "Cart and wishlist actions dispatched",
	}, []string{"type"})

	OrdersSubmittedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "orders_submitted_total",
		Help: "Orders accepted by the order sink",
	})

	OrdersFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "orders_failed_total",
		Help: "Order submissions that failed",
	}, []string{"reason"})

	OrderSinkLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "order_sink_latency_seconds",
		Help:    "Latency of order sink calls",
		Buckets: prometheus.DefBuckets,
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
)
