package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	PositionsReceived = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_positions_received_total",
		Help: "Positions handed to the processing pipeline",
	})
	PositionDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_position_decisions_total",
		Help: "Filter outcome per position (accept, repair, drop)",
	}, []string{"decision"})
	FilterRulesFired = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_filter_rules_fired_total",
		Help: "Filter rules that fired, by rule",
	}, []string{"rule"})
	DispatchDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_dispatch_drops_total",
		Help: "Positions dropped because a device shard queue was full",
	})

	DBWriteSuccess = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_db_write_success_total",
		Help: "Position rows written to the database",
	})
	DBWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_db_write_failures_total",
		Help: "Position rows that failed to write",
	})
	DBWriteLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracking_db_write_latency_seconds",
		Help:    "Latency of a position batch insert",
		Buckets: prometheus.DefBuckets,
	})
	ChannelDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_channel_drops_total",
		Help: "Items dropped because a sink channel was full",
	}, []string{"sink"})

	EventsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_events_detected_total",
		Help: "Events produced by detectors, by event type",
	}, []string{"type"})
	DetectorFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_detector_failures_total",
		Help: "Detector errors and panics, by detector",
	}, []string{"detector"})
	EventWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_event_write_failures_total",
		Help: "Events that could not be persisted",
	})

	NotificationsSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_notifications_sent_total",
		Help: "Notifications delivered, by notificator",
	}, []string{"notificator"})
	NotificationFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_notification_failures_total",
		Help: "Notification deliveries that failed, by notificator",
	}, []string{"notificator"})
	NotificationsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "tracking_notifications_suppressed_total",
		Help: "Notifications skipped as duplicates, by notificator",
	}, []string{"notificator"})
	NotificationQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_notification_queue_drops_total",
		Help: "Async deliveries dropped because the queue was full",
	})

	StateWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_state_write_failures_total",
		Help: "Live state updates that failed to reach Redis",
	})
)

// WatchSize exports a gauge read from size on every scrape.
func WatchSize(name, help string, size func() int) {
	promauto.NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, func() float64 {
		return float64(size())
	})
}

func ObserveDBWrite(start time.Time) {
	DBWriteLatency.Observe(time.Since(start).Seconds())
}

func Handler() http.Handler {
	return promhttp.Handler()
}
