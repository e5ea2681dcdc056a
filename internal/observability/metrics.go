// Package observability holds the Prometheus collectors of the activity service.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	mutationCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "park_activity",
		Subsystem: "records",
		Name:      "mutations_total",
		Help:      "Activity record mutation attempts by operation and outcome.",
	}, []string{"operation", "outcome"})

	mutationDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "park_activity",
		Subsystem: "records",
		Name:      "mutation_duration_seconds",
		Help:      "Time spent handling activity record mutations.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 12),
	}, []string{"operation"})

	persistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "park_activity",
		Subsystem: "records",
		Name:      "last_record_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity record write.",
	})

	publishFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "park_activity",
		Subsystem: "events",
		Name:      "publish_failures_total",
		Help:      "Activity events that could not be published, by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(mutationCounter, mutationDuration, persistGauge, publishFailures)
}

// OutcomeOK labels successful mutations.
const OutcomeOK = "ok"

// RecordMutation counts a mutation attempt and observes its duration.
func RecordMutation(operation, outcome string, elapsed time.Duration) {
	mutationCounter.WithLabelValues(operation, outcome).Inc()
	mutationDuration.WithLabelValues(operation).Observe(elapsed.Seconds())
}

// RecordPersisted updates the persistence watermark gauge.
func RecordPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	persistGauge.Set(float64(ts.Unix()))
}

// RecordPublishFailure counts an event that was not delivered.
func RecordPublishFailure(eventType string) {
	publishFailures.WithLabelValues(eventType).Inc()
}
