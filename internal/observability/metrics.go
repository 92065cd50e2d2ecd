// Package observability holds the Prometheus instruments of the activity core.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	activityRecordedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "user_activity",
		Subsystem: "recorder",
		Name:      "activities_recorded_total",
		Help:      "Number of recorded activities, labeled by type and whether a record was created or refreshed.",
	}, []string{"activity_type", "outcome"})

	activityRecordedGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "user_activity",
		Subsystem: "recorder",
		Name:      "last_activity_recorded_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity written to the store.",
	})

	pagesServedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "user_activity",
		Subsystem: "timeline",
		Name:      "pages_served_total",
		Help:      "Number of non-empty day pages served, labeled by activity type.",
	}, []string{"activity_type"})

	pageOutOfRangeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "user_activity",
		Subsystem: "timeline",
		Name:      "page_out_of_range_total",
		Help:      "Number of page requests past the last distinct day.",
	}, []string{"activity_type"})

	enrichmentFailureCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "user_activity",
		Subsystem: "timeline",
		Name:      "enrichment_failures_total",
		Help:      "Number of target lookups that failed for reasons other than not found.",
	})

	activitiesRemovedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "user_activity",
		Subsystem: "pruner",
		Name:      "activities_removed_total",
		Help:      "Number of activity records deleted, labeled by activity type.",
	}, []string{"activity_type"})
)

func init() {
	prometheus.MustRegister(
		activityRecordedCounter,
		activityRecordedGauge,
		pagesServedCounter,
		pageOutOfRangeCounter,
		enrichmentFailureCounter,
		activitiesRemovedCounter,
	)
}

// RecordActivityRecorded counts a successful recorder write and updates the watermark gauge.
func RecordActivityRecorded(activityType string, created bool, ts time.Time) {
	outcome := "refreshed"
	if created {
		outcome = "created"
	}
	activityRecordedCounter.WithLabelValues(activityType, outcome).Inc()
	if ts.IsZero() {
		return
	}
	activityRecordedGauge.Set(float64(ts.Unix()))
}

// RecordPageServed counts a day page returned to a caller.
func RecordPageServed(activityType string) {
	pagesServedCounter.WithLabelValues(activityType).Inc()
}

// RecordPageOutOfRange counts a rejected page index.
func RecordPageOutOfRange(activityType string) {
	pageOutOfRangeCounter.WithLabelValues(activityType).Inc()
}

// RecordEnrichmentFailure counts a target lookup that errored.
func RecordEnrichmentFailure() {
	enrichmentFailureCounter.Inc()
}

// RecordActivitiesRemoved counts deleted records.
func RecordActivitiesRemoved(activityType string, n int) {
	if n <= 0 {
		return
	}
	activitiesRemovedCounter.WithLabelValues(activityType).Add(float64(n))
}
