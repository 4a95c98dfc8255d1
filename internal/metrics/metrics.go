package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const prefix = "partflow"

var (
	SyncRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_sync_runs_total",
			Help: "Total number of sync runs by mode and result",
		},
		[]string{"mode", "result"},
	)

	SyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_sync_duration_seconds",
			Help:    "Duration of sync runs in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	PendingRecords = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: prefix + "_pending_records",
			Help: "Records modified locally and not yet acknowledged by the remote",
		},
		[]string{"collection"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_store_operation_duration_seconds",
			Help:    "Duration of persistent store transactions in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)
)

// TrackStoreOperation returns a function that records the duration of a store operation.
func TrackStoreOperation(operation string) func(start time.Time) {
	return func(start time.Time) {
		StoreOperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

// RecordSync counts one sync run and observes its duration.
func RecordSync(mode, result string, start time.Time) {
	SyncRunsTotal.WithLabelValues(mode, result).Inc()
	SyncDuration.WithLabelValues(mode).Observe(time.Since(start).Seconds())
}
