package metrics

import "github.com/prometheus/client_golang/prometheus"

// NotificationQueueMetrics tracks queue throughput and backlog health.
type NotificationQueueMetrics struct {
	claimed   prometheus.Counter
	sent      prometheus.Counter
	failed    prometheus.Counter
	requeued  prometheus.Counter
	staleGage prometheus.Gauge
}

// NewNotificationQueueMetrics registers queue metrics on the provided registerer.
func NewNotificationQueueMetrics(reg prometheus.Registerer) *NotificationQueueMetrics {
	if reg == nil {
		return &NotificationQueueMetrics{}
	}
	claimed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_events_claimed_total",
		Help: "Notification events claimed for delivery.",
	})
	sent := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_events_sent_total",
		Help: "Notification events delivered successfully.",
	})
	failed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_events_failed_total",
		Help: "Notification events moved to terminal failure.",
	})
	requeued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "notification_events_requeued_total",
		Help: "Stuck processing rows returned to the queue by the janitor.",
	})
	stale := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "notification_events_stale_queued",
		Help: "Queued notification events older than the staleness threshold.",
	})
	reg.MustRegister(claimed, sent, failed, requeued, stale)
	return &NotificationQueueMetrics{
		claimed:   claimed,
		sent:      sent,
		failed:    failed,
		requeued:  requeued,
		staleGage: stale,
	}
}

// AddClaimed records events handed to a worker.
func (m *NotificationQueueMetrics) AddClaimed(n int) {
	if m == nil || m.claimed == nil {
		return
	}
	m.claimed.Add(float64(n))
}

// IncSent records one delivered event.
func (m *NotificationQueueMetrics) IncSent() {
	if m == nil || m.sent == nil {
		return
	}
	m.sent.Inc()
}

// IncFailed records one terminally failed event.
func (m *NotificationQueueMetrics) IncFailed() {
	if m == nil || m.failed == nil {
		return
	}
	m.failed.Inc()
}

// AddRequeued records janitor recoveries.
func (m *NotificationQueueMetrics) AddRequeued(n int) {
	if m == nil || m.requeued == nil {
		return
	}
	m.requeued.Add(float64(n))
}

// SetStaleQueued publishes the current stale backlog size.
func (m *NotificationQueueMetrics) SetStaleQueued(n int) {
	if m == nil || m.staleGage == nil {
		return
	}
	m.staleGage.Set(float64(n))
}
