// Package observability provides the Prometheus metrics surface and the
// structured logger factory.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"statbucket/domain/normalize"
)

// Collector holds all Prometheus metrics for the application. Each instance
// owns its registry, so tests can build collectors freely.
type Collector struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec

	// Engine metrics
	EngineOperations *prometheus.CounterVec
	EngineDuration   *prometheus.HistogramVec

	// Store metrics
	StoreOperations *prometheus.CounterVec
	StoreDuration   *prometheus.HistogramVec
}

// NewCollector creates a metrics collector with the given namespace.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()

	httpRequests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	httpDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	engineOperations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "engine_operations_total",
			Help:      "Total number of stats engine operations",
		},
		[]string{"operation", "status"},
	)

	engineDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "engine_operation_duration_seconds",
			Help:      "Stats engine operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	storeOperations := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_operations_total",
			Help:      "Total number of store operations",
		},
		[]string{"operation", "table", "status"},
	)

	storeDuration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_operation_duration_seconds",
			Help:      "Store operation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation", "table"},
	)

	registry.MustRegister(
		httpRequests,
		httpDuration,
		engineOperations,
		engineDuration,
		storeOperations,
		storeDuration,
	)

	return &Collector{
		registry:         registry,
		HTTPRequests:     httpRequests,
		HTTPDuration:     httpDuration,
		EngineOperations: engineOperations,
		EngineDuration:   engineDuration,
		StoreOperations:  storeOperations,
		StoreDuration:    storeDuration,
	}
}

// ObserveOperation records one stats engine operation outcome. Satisfies the
// engine's Recorder interface.
func (c *Collector) ObserveOperation(operation string, err error, elapsed time.Duration) {
	c.EngineOperations.WithLabelValues(operation, statusLabel(err)).Inc()
	c.EngineDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// ObserveStore records one backing store call outcome.
func (c *Collector) ObserveStore(operation, table string, err error, elapsed time.Duration) {
	c.StoreOperations.WithLabelValues(operation, table, statusLabel(err)).Inc()
	c.StoreDuration.WithLabelValues(operation, table).Observe(elapsed.Seconds())
}

// ObserveRequest records one HTTP request outcome.
func (c *Collector) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// RegisterNormalizer exposes the key normalizer's cache counters. Call at
// most once per collector.
func (c *Collector) RegisterNormalizer(n *normalize.Normalizer) {
	c.registry.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "normalizer_cache_hits_total",
			Help: "Total number of normalizer cache hits",
		}, func() float64 {
			hits, _ := n.Metrics()
			return float64(hits)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Name: "normalizer_cache_misses_total",
			Help: "Total number of normalizer cache misses",
		}, func() float64 {
			_, misses := n.Metrics()
			return float64(misses)
		}),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "normalizer_cache_entries",
			Help: "Current number of cached normalizations",
		}, func() float64 {
			return float64(n.Len())
		}),
	)
}

// Handler serves the registry in Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the Prometheus registry for this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

func statusLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
