package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	recordsWritten = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "field_history",
		Subsystem: "store",
		Name:      "records_written_total",
		Help:      "Number of field history records persisted, labeled by entity type.",
	}, []string{"entity_type"})

	saves = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "field_history",
		Subsystem: "coordinator",
		Name:      "saves_total",
		Help:      "Number of tracked entity writes, labeled by entity type and outcome.",
	}, []string{"entity_type", "outcome"})

	publishFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "field_history",
		Subsystem: "publisher",
		Name:      "publish_failures_total",
		Help:      "Number of committed history records that could not be published.",
	})

	saveDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "field_history",
		Subsystem: "coordinator",
		Name:      "save_duration_seconds",
		Help:      "Time spent writing an entity together with its history batch.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"entity_type"})
)

const (
	OutcomeRecorded = "recorded"
	OutcomeNoop     = "noop"
	OutcomeFailed   = "failed"
)

func init() {
	prometheus.MustRegister(recordsWritten, saves, publishFailures, saveDuration)
}

// RecordSave counts one tracked write and the history records it produced.
func RecordSave(entityType, outcome string, records int, elapsed time.Duration) {
	saves.WithLabelValues(entityType, outcome).Inc()
	saveDuration.WithLabelValues(entityType).Observe(elapsed.Seconds())
	if records > 0 {
		recordsWritten.WithLabelValues(entityType).Add(float64(records))
	}
}

// RecordBackfill counts records synthesized by the backfill command.
func RecordBackfill(entityType string, records int) {
	if records <= 0 {
		return
	}
	recordsWritten.WithLabelValues(entityType).Add(float64(records))
}

// RecordPublishFailure counts a history record the publisher rejected.
func RecordPublishFailure() {
	publishFailures.Inc()
}
