package photo

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the photo pipeline
var (
	// timeclock_photo_queue_depth tracks captures waiting for a worker
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "timeclock",
			Subsystem: "photo",
			Name:      "queue_depth",
			Help:      "Number of captures waiting in the pipeline queue",
		},
	)

	// timeclock_photo_processed_total counts pipeline outcomes
	// Labels: status (uploaded, failed, dropped)
	ProcessedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "timeclock",
			Subsystem: "photo",
			Name:      "processed_total",
			Help:      "Total number of captures processed by terminal status",
		},
		[]string{"status"},
	)

	// timeclock_photo_upload_retries_total counts upload attempts beyond the first
	UploadRetriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "timeclock",
			Subsystem: "photo",
			Name:      "upload_retries_total",
			Help:      "Total number of photo upload retries",
		},
	)

	// timeclock_photo_upload_duration_seconds tracks successful upload latency
	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "timeclock",
			Subsystem: "photo",
			Name:      "upload_duration_seconds",
			Help:      "Duration of successful photo uploads in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		},
	)
)

// Status labels for ProcessedTotal
const (
	StatusUploaded = "uploaded"
	StatusFailed   = "failed"
	StatusDropped  = "dropped"
)

// recordProcessed records a capture reaching a terminal status
func recordProcessed(status string) {
	ProcessedTotal.WithLabelValues(status).Inc()
}

// recordRetry records one upload retry
func recordRetry() {
	UploadRetriesTotal.Inc()
}

// observeUpload records a successful upload's duration
func observeUpload(seconds float64) {
	UploadDuration.Observe(seconds)
}
