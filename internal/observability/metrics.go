// Package observability exposes the Prometheus collectors shared by the vitals pipeline.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	recordReads = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vitals_service",
		Subsystem: "reader",
		Name:      "reads_total",
		Help:      "Record reads grouped by record type and result (ok, skipped, quota, error).",
	}, []string{"record_type", "result"})

	quotaRetries = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vitals_service",
		Subsystem: "pipeline",
		Name:      "quota_retries_total",
		Help:      "Number of backoff waits scheduled after a quota rejection.",
	})

	fetchOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "vitals_service",
		Subsystem: "coordinator",
		Name:      "fetch_outcomes_total",
		Help:      "Fetch calls grouped by outcome.",
	}, []string{"outcome"})

	fetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "vitals_service",
		Subsystem: "coordinator",
		Name:      "fetch_duration_seconds",
		Help:      "Wall time of fetch cycles that ran the read sequence.",
		Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	snapshotGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "vitals_service",
		Subsystem: "coordinator",
		Name:      "last_snapshot_timestamp_seconds",
		Help:      "Unix timestamp of the most recent successful snapshot.",
	})

	recorderErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "vitals_service",
		Subsystem: "coordinator",
		Name:      "snapshot_record_errors_total",
		Help:      "Snapshots that could not be handed to the snapshot recorder.",
	})
)

func init() {
	prometheus.MustRegister(recordReads, quotaRetries, fetchOutcomes, fetchDuration, snapshotGauge, recorderErrors)
}

// RecordRead counts one read attempt for a record type.
func RecordRead(recordType, result string) {
	recordReads.WithLabelValues(recordType, result).Inc()
}

// RecordQuotaRetry counts a scheduled backoff wait.
func RecordQuotaRetry() {
	quotaRetries.Inc()
}

// RecordFetchOutcome counts a Fetch call by outcome.
func RecordFetchOutcome(outcome string) {
	fetchOutcomes.WithLabelValues(outcome).Inc()
}

// ObserveFetchDuration records the duration of an executed fetch cycle.
func ObserveFetchDuration(d time.Duration) {
	fetchDuration.Observe(d.Seconds())
}

// RecordSnapshot updates the snapshot watermark gauge.
func RecordSnapshot(ts time.Time) {
	if ts.IsZero() {
		return
	}
	snapshotGauge.Set(float64(ts.Unix()))
}

// RecordRecorderError counts a failed snapshot hand-off.
func RecordRecorderError() {
	recorderErrors.Inc()
}
