package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WebhookEventsTotal counts handled webhook deliveries.
	// Labels: type (known event type or "other"), outcome (ok/error status class)
	WebhookEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetai_webhook_events_total",
			Help: "Total number of webhook events handled by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// MeetingTransitionsTotal counts meeting status changes made by the orchestrator.
	MeetingTransitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "meetai_meeting_transitions_total",
			Help: "Total number of meeting status transitions by target status",
		},
		[]string{"to"},
	)

	RealtimeSessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "meetai_realtime_sessions_active",
			Help: "Number of realtime agent sessions currently attached to calls",
		},
	)

	// RealtimeConnectSeconds observes bridge dial plus instruction push.
	// Labels: outcome (success/error)
	RealtimeConnectSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "meetai_realtime_connect_seconds",
			Help:    "Time spent attaching a realtime agent to a call",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 15, 30},
		},
		[]string{"outcome"},
	)
)

var knownEventTypes = map[string]struct{}{
	"call.session_started":          {},
	"call.session_participant_left": {},
}

// EventTypeLabel bounds the type label cardinality.
func EventTypeLabel(eventType string) string {
	if _, ok := knownEventTypes[eventType]; ok {
		return eventType
	}
	return "other"
}

func RecordWebhookEvent(eventType, outcome string) {
	WebhookEventsTotal.WithLabelValues(EventTypeLabel(eventType), outcome).Inc()
}

func RecordTransition(to string) {
	MeetingTransitionsTotal.WithLabelValues(to).Inc()
}

func RecordRealtimeConnect(d time.Duration, success bool) {
	outcome := "success"
	if !success {
		outcome = "error"
	}
	RealtimeConnectSeconds.WithLabelValues(outcome).Observe(d.Seconds())
}
