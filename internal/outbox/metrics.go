package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	deliveredCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "user_activity",
		Subsystem: "outbox",
		Name:      "events_delivered_total",
		Help:      "Activity events published to Kafka, labeled by event type.",
	}, []string{"event_type"})

	failedCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "user_activity",
		Subsystem: "outbox",
		Name:      "events_failed_total",
		Help:      "Activity events whose delivery failed, labeled by event type.",
	}, []string{"event_type"})

	batchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "user_activity",
		Subsystem: "outbox",
		Name:      "batch_duration_seconds",
		Help:      "Time spent claiming, delivering and marking one outbox batch.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})

	dlqCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "user_activity",
		Subsystem: "outbox",
		Name:      "events_dlq_total",
		Help:      "Activity events dead-lettered by the dispatcher, labeled by topic and event type.",
	}, []string{"topic", "event_type"})

	dlqOutcomeCounter = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "user_activity",
		Subsystem: "dlq",
		Name:      "entries_handled_total",
		Help:      "Dead-letter entries handled by the replay loop, labeled by event type and outcome.",
	}, []string{"event_type", "outcome"})

	dlqBacklogGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "user_activity",
		Subsystem: "dlq",
		Name:      "entries",
		Help:      "Dead-letter entries by state (pending, due, quarantined).",
	}, []string{"state"})
)

const (
	outcomeRequeued    = "requeued"
	outcomeRetry       = "retry_scheduled"
	outcomeQuarantined = "quarantined"
)

func init() {
	prometheus.MustRegister(deliveredCounter, failedCounter, batchDuration, dlqCounter, dlqOutcomeCounter, dlqBacklogGauge)
}

func countByEventType(counter *prometheus.CounterVec, messages []Message) {
	for _, msg := range messages {
		counter.WithLabelValues(msg.EventType).Inc()
	}
}

func recordDLQOutcome(entry dlqEntry, outcome string) {
	dlqOutcomeCounter.WithLabelValues(entry.EventType, outcome).Inc()
}

func observeBacklog(stats DLQStats) {
	dlqBacklogGauge.WithLabelValues("pending").Set(float64(stats.Pending))
	dlqBacklogGauge.WithLabelValues("due").Set(float64(stats.Due))
	dlqBacklogGauge.WithLabelValues("quarantined").Set(float64(stats.Quarantined))
}
