// internal/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HttpRequestsTotal counts handled HTTP requests.
	HttpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of http requests handled by the service.",
		},
		[]string{"path", "method", "code"},
	)

	// AdmissionsTotal counts gate outcomes by status (admitted, out_of_stock, ...).
	AdmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "seckill_admissions_total",
			Help: "Admission gate outcomes.",
		},
		[]string{"status"},
	)

	// AdmissionLatency observes the gate round trip.
	AdmissionLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "seckill_admission_duration_seconds",
			Help:    "Latency of the atomic admission script.",
			Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
		},
	)

	// OrdersProcessedTotal counts order processor outcomes.
	OrdersProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "order_processor_entries_total",
			Help: "Order intents handled by the processor, by result.",
		},
		[]string{"result", "source"},
	)

	// PendingRecoveredTotal counts entries recovered by the pending sweep.
	PendingRecoveredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "order_processor_pending_recovered_total",
			Help: "Unacknowledged entries reprocessed by the recovery sweep.",
		},
	)

	// LockAcquireTotal counts lock attempts by outcome.
	LockAcquireTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributed_lock_acquire_total",
			Help: "Distributed lock acquisition attempts.",
		},
		[]string{"backend", "result"},
	)

	// LockReleaseMismatchTotal counts releases attempted with a stale or foreign token.
	LockReleaseMismatchTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "distributed_lock_release_mismatch_total",
			Help: "Lock releases ignored because the holder token no longer matched.",
		},
		[]string{"backend"},
	)

	// CacheRequestsTotal counts cache reads by strategy and result.
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_requests_total",
			Help: "Cache reads by strategy and result (hit, miss, null, stale, timeout).",
		},
		[]string{"strategy", "result"},
	)

	// CacheLoadsTotal counts backing store loads triggered by the cache.
	CacheLoadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_loads_total",
			Help: "Backing store loads performed by the cache client.",
		},
		[]string{"namespace"},
	)

	// CacheRebuildsTotal counts asynchronous logical-expiry rebuilds by outcome.
	CacheRebuildsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_rebuilds_total",
			Help: "Asynchronous cache rebuilds by result (ok, failed, rejected).",
		},
		[]string{"result"},
	)
)
