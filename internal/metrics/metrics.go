// Package metrics exposes the pgbr core's Prometheus counters and
// histograms: one set per pipeline stage (filter group runs), plus the
// block-incremental and page-checksum domain counters.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OperationsTotal tracks backup/restore invocations by operation and
	// outcome (success/error).
	OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgbr_operations_total",
			Help: "Total backup/restore operations by operation and status",
		},
		[]string{"operation", "status"},
	)

	// OperationDuration tracks how long a full backup/restore pipeline run
	// takes, end to end.
	OperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgbr_operation_duration_seconds",
			Help:    "Backup/restore operation duration",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 300, 900},
		},
		[]string{"operation"},
	)

	// FilterBytes tracks bytes passed through a single named filter stage.
	FilterBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgbr_filter_bytes_total",
			Help: "Bytes processed by a filter stage",
		},
		[]string{"filter"},
	)

	// BlockMapHitRatio tracks the fraction of blocks a map build resolved
	// against a reference rather than writing fresh.
	BlockMapHitRatio = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pgbr_blockmap_hit_ratio",
			Help:    "Fraction of blocks resolved against a reference during a map build",
			Buckets: []float64{0, 0.1, 0.25, 0.5, 0.75, 0.9, 0.99, 1},
		},
		[]string{"stanza"},
	)

	// PageChecksumMismatches tracks pages failing validation during backup.
	PageChecksumMismatches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pgbr_page_checksum_mismatches_total",
			Help: "Pages failing checksum validation during backup",
		},
		[]string{"stanza"},
	)

	// QueueDepth tracks the number of pending file jobs in the work queue.
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgbr_queue_depth",
			Help: "Pending file jobs in the work queue",
		},
		[]string{"queue"},
	)
)

// RecordOperation records one backup/restore run's outcome and duration.
func RecordOperation(operation, status string, durationSeconds float64) {
	OperationsTotal.WithLabelValues(operation, status).Inc()
	OperationDuration.WithLabelValues(operation).Observe(durationSeconds)
}

// RecordFilterBytes adds to a filter stage's processed-byte counter.
func RecordFilterBytes(filterID string, n int) {
	FilterBytes.WithLabelValues(filterID).Add(float64(n))
}

// RecordBlockMapHitRatio records the hit ratio for one file's block map build.
func RecordBlockMapHitRatio(stanza string, ratio float64) {
	BlockMapHitRatio.WithLabelValues(stanza).Observe(ratio)
}

// RecordPageChecksumMismatches adds n mismatches found during one backup.
func RecordPageChecksumMismatches(stanza string, n int) {
	if n <= 0 {
		return
	}
	PageChecksumMismatches.WithLabelValues(stanza).Add(float64(n))
}

// SetQueueDepth sets the current pending-job gauge for a named queue.
func SetQueueDepth(queue string, depth int) {
	QueueDepth.WithLabelValues(queue).Set(float64(depth))
}
