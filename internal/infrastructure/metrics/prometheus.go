// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "vidproxy"

var (
	// CacheOperationsTotal tracks variant KV operations.
	// Labels:
	//   - operation: get, set, delete, chunk_get, chunk_set
	//   - status: hit, miss, success, error, skipped
	CacheOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_operations_total",
			Help:      "Total number of variant KV operations",
		},
		[]string{"operation", "status"},
	)

	// SingleflightRequestsTotal tracks miss coalescing behavior.
	// Labels:
	//   - result: initiated (new execution), shared (reused result)
	SingleflightRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "singleflight_requests_total",
			Help:      "Total number of singleflight requests",
		},
		[]string{"result"},
	)

	// OriginFetchesTotal tracks upstream origin source fetches.
	// Labels:
	//   - source_type: r2, remote, fallback
	//   - status: ok, not_found, error
	OriginFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "origin_fetches_total",
			Help:      "Total number of origin source fetches",
		},
		[]string{"source_type", "status"},
	)

	// TransformRequestsTotal tracks upstream transformation requests.
	// Labels:
	//   - status: ok, error, retryable_error
	TransformRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transform_requests_total",
			Help:      "Total number of upstream transform requests",
		},
		[]string{"status"},
	)

	// TransformDuration observes upstream transform latency.
	TransformDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transform_duration_seconds",
			Help:      "Upstream transform request latency",
			Buckets:   prometheus.DefBuckets,
		},
	)

	// FailoverRetriesTotal counts 404-triggered source failovers.
	// Labels:
	//   - outcome: recovered, exhausted
	FailoverRetriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "failover_retries_total",
			Help:      "Total number of source failover retries",
		},
		[]string{"outcome"},
	)

	// PurgesTotal counts processed purge requests.
	// Labels:
	//   - kind: tag, key
	//   - status: success, error
	PurgesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "purges_total",
			Help:      "Total number of processed purge requests",
		},
		[]string{"kind", "status"},
	)

	// RangeRequestsTotal counts range request handling outcomes.
	// Labels:
	//   - outcome: partial, full_fallback
	RangeRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "range_requests_total",
			Help:      "Total number of range requests",
		},
		[]string{"outcome"},
	)
)

// Cache operation status constants.
const (
	CacheStatusHit     = "hit"
	CacheStatusMiss    = "miss"
	CacheStatusSuccess = "success"
	CacheStatusError   = "error"
	CacheStatusSkipped = "skipped"
)

// Cache operation type constants.
const (
	CacheOpGet      = "get"
	CacheOpSet      = "set"
	CacheOpDelete   = "delete"
	CacheOpChunkGet = "chunk_get"
	CacheOpChunkSet = "chunk_set"
)

// Singleflight result constants.
const (
	SingleflightInitiated = "initiated"
	SingleflightShared    = "shared"
)

// Origin fetch status constants.
const (
	OriginStatusOK       = "ok"
	OriginStatusNotFound = "not_found"
	OriginStatusError    = "error"
)

// Transform status constants.
const (
	TransformStatusOK             = "ok"
	TransformStatusError          = "error"
	TransformStatusRetryableError = "retryable_error"
)

// Failover outcome constants.
const (
	FailoverRecovered = "recovered"
	FailoverExhausted = "exhausted"
)

// Purge constants.
const (
	PurgeKindTag = "tag"
	PurgeKindKey = "key"
	PurgeSuccess = "success"
	PurgeError   = "error"
)

// Range outcome constants.
const (
	RangePartial      = "partial"
	RangeFullFallback = "full_fallback"
)
