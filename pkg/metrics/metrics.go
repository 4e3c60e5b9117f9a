package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Global collectors, registered with the default registry by promauto.

var (
	// OperationsTotal counts engine operations by name and outcome
	// ("ok", "not_found", or the error kind).
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vektor_operations_total",
			Help: "Total number of engine operations",
		},
		[]string{"op", "status"},
	)

	// OperationDuration measures engine operations, lock wait included.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "vektor_operation_duration_seconds",
			Help: "Duration of engine operations in seconds",
			// Point lookups take microseconds, a full compaction can take minutes.
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"op"},
	)

	// LockWait measures time spent blocked on the database lock.
	LockWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vektor_lock_wait_seconds",
			Help:    "Time spent waiting for the database lock",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
		[]string{"mode"},
	)

	// TombstonesSkipped counts search candidates dropped at hydration.
	TombstonesSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vektor_search_tombstones_skipped_total",
			Help: "Search candidates dropped because their record was deleted",
		},
	)

	// CompactionRecords counts records carried over by compaction.
	CompactionRecords = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "vektor_compaction_records_total",
			Help: "Records reinserted by compaction",
		},
	)

	// HttpRequestsTotal counts requests by method, path and status code.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "vektor_http_requests_total",
			Help: "Total number of HTTP requests processed",
		},
		[]string{"method", "path", "status"},
	)

	// HttpRequestDuration measures server response time.
	HttpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "vektor_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 60},
		},
		[]string{"method", "path"},
	)
)
