// Package observability holds the Prometheus collectors shared by the client and gateway.
package observability

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of gateway HTTP requests.",
		},
		[]string{"method", "route", "status"},
	)

	httpRequestDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of gateway HTTP requests in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~20s
		},
		[]string{"method", "route", "status"},
	)

	upstreamLatencySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wcs_upstream_latency_seconds",
			Help:    "Latency of WCS server calls in seconds.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 14),
		},
		[]string{"operation"},
	)

	upstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wcs_upstream_errors_total",
			Help: "Failed WCS server calls by operation and cause (status or transport).",
		},
		[]string{"operation", "cause"},
	)

	documentsParsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wcs_documents_parsed_total",
			Help: "Parsed WCS documents by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	coverageURLs = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wcs_getcoverage_urls_total",
			Help: "GetCoverage URL builds by outcome.",
		},
		[]string{"outcome"},
	)

	cacheResults = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wcs_document_cache_results_total",
			Help: "Document cache lookups by tier and outcome.",
		},
		[]string{"tier", "outcome"},
	)

	cacheOpErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wcs_document_cache_errors_total",
			Help: "Document cache backend errors by operation.",
		},
		[]string{"op"},
	)

	redisOpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wcs_redis_operation_duration_seconds",
			Help:    "Duration of Redis operations behind the document cache.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"op", "outcome"},
	)

	eventsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wcs_events_dropped_total",
			Help: "Diagnostic events dropped because the publish queue was full.",
		},
	)

	invalidations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wcs_invalidation_events_total",
			Help: "Processed cache invalidation events by outcome.",
		},
		[]string{"outcome"},
	)

	invalidationLag = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "wcs_invalidation_consumer_lag",
			Help: "Messages between the last processed invalidation event and the partition high-water mark.",
		},
		[]string{"partition"},
	)

	invalidatedDocuments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wcs_invalidated_documents_total",
			Help: "Cached documents dropped by invalidation events.",
		},
	)
)

func ObserveHTTP(method, route string, status int, durationSeconds float64) {
	st := strconv.Itoa(status)
	httpRequestsTotal.WithLabelValues(method, route, st).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route, st).Observe(durationSeconds)
}

func ObserveUpstreamLatency(operation string, durationSeconds float64) {
	upstreamLatencySeconds.WithLabelValues(operation).Observe(durationSeconds)
}

func IncUpstreamError(operation, cause string) {
	upstreamErrors.WithLabelValues(operation, cause).Inc()
}

func ObserveParse(kind string, err error) {
	documentsParsed.WithLabelValues(kind, outcome(err)).Inc()
}

func ObserveCoverageURL(err error) {
	coverageURLs.WithLabelValues(outcome(err)).Inc()
}

func IncCacheHit(tier string)  { cacheResults.WithLabelValues(tier, "hit").Inc() }
func IncCacheMiss(tier string) { cacheResults.WithLabelValues(tier, "miss").Inc() }

func IncCacheError(op string) { cacheOpErrors.WithLabelValues(op).Inc() }

// ObserveCacheOp records a Redis call and counts failures as cache errors.
func ObserveCacheOp(op string, err error, durationSeconds float64) {
	redisOpDuration.WithLabelValues(op, outcome(err)).Observe(durationSeconds)
	if err != nil {
		IncCacheError(op)
	}
}

func IncEventsDropped() { eventsDropped.Inc() }

// ObserveInvalidation records one processed invalidation event and the documents it dropped.
func ObserveInvalidation(dropped int, err error) {
	invalidations.WithLabelValues(outcome(err)).Inc()
	if dropped > 0 {
		invalidatedDocuments.Add(float64(dropped))
	}
}

func SetInvalidationLag(partition int32, lag int64) {
	invalidationLag.WithLabelValues(strconv.Itoa(int(partition))).Set(float64(max(lag, 0)))
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
