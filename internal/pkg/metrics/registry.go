package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Database/Repository Metrics
var (
	// DBOperations tracks total database operations
	DBOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_db_operations_total",
			Help: "Total database operations by repository, operation, and status",
		},
		[]string{"repo", "operation", "status"},
	)

	// DBDuration tracks database operation latency
	DBDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "gateway_db_operation_duration_ms",
			Help:                            "Database operation duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBRowsAffected tracks rows affected by write operations
	DBRowsAffected = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "gateway_db_rows_affected",
			Help:                            "Number of rows affected by database write operations",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"repo", "operation"},
	)

	// DBErrors tracks database errors by type
	DBErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_db_errors_total",
			Help: "Total database errors by repository, operation, and error type",
		},
		[]string{"repo", "operation", "error_type"},
	)
)

// HTTP Metrics
var (
	HTTPRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_requests_total",
			Help: "Total HTTP requests by route, method, and status code",
		},
		[]string{"route", "method", "status"},
	)

	HTTPDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "gateway_http_request_duration_ms",
			Help:                            "HTTP request duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"route", "method"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "gateway_http_active_requests",
			Help: "Number of in-flight HTTP requests",
		},
	)

	HTTPRateLimited = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_http_rate_limited_total",
			Help: "Requests rejected by the rate limiter by route",
		},
		[]string{"route"},
	)
)

// Upstream (OAuth provider and account service) Metrics
var (
	UpstreamCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_upstream_calls_total",
			Help: "Total upstream HTTP calls by upstream, method, route and status code",
		},
		[]string{"upstream", "method", "route", "status"},
	)

	UpstreamDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:                            "gateway_upstream_duration_ms",
			Help:                            "Upstream HTTP call duration in milliseconds",
			NativeHistogramBucketFactor:     1.1,
			NativeHistogramMaxBucketNumber:  100,
			NativeHistogramMinResetDuration: 1 * time.Hour,
		},
		[]string{"upstream", "method", "route"},
	)

	UpstreamErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_upstream_errors_total",
			Help: "Upstream HTTP errors by upstream, route and error type",
		},
		[]string{"upstream", "route", "error_type"},
	)
)

// Linking Metrics
var (
	// LinkEvents counts primary link writes by platform and outcome (created, updated, failed)
	LinkEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_link_events_total",
			Help: "Platform link writes by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	// MetadataWrites counts auxiliary metadata upserts by platform, key and status
	MetadataWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_metadata_writes_total",
			Help: "Profile metadata upserts by platform, key and status",
		},
		[]string{"platform", "key", "status"},
	)

	// AnchorLogins counts anchor-provider resolutions by result
	AnchorLogins = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_anchor_logins_total",
			Help: "Anchor identity resolutions by result (first_time, returning, rejected, failed)",
		},
		[]string{"result"},
	)

	// Unlinks counts unlink requests by platform and status
	Unlinks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_unlinks_total",
			Help: "Unlink requests by platform and status",
		},
		[]string{"platform", "status"},
	)

	// CallbackOutcomes counts OAuth callbacks by platform and outcome
	CallbackOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_oauth_callbacks_total",
			Help: "OAuth callbacks by platform and outcome",
		},
		[]string{"platform", "outcome"},
	)

	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_hits_total",
			Help: "Total cache hits by cache name",
		},
		[]string{"cache_name"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gateway_cache_misses_total",
			Help: "Total cache misses by cache name",
		},
		[]string{"cache_name"},
	)
)
