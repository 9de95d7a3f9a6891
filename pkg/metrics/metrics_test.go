package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordWebhookEvent_BoundsTypeLabel(t *testing.T) {
	WebhookEventsTotal.Reset()

	RecordWebhookEvent("call.session_started", "ok")
	RecordWebhookEvent("call.session_started", "ok")
	RecordWebhookEvent("call.recording_ready", "ok")
	RecordWebhookEvent("anything.else", "ok")

	if got := testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("call.session_started", "ok")); got != 2 {
		t.Errorf("session_started=%v, want 2", got)
	}
	if got := testutil.ToFloat64(WebhookEventsTotal.WithLabelValues("other", "ok")); got != 2 {
		t.Errorf("other=%v, want 2", got)
	}
}

func TestRecordTransition(t *testing.T) {
	MeetingTransitionsTotal.Reset()

	RecordTransition("active")
	RecordTransition("cancelled")
	RecordTransition("active")

	if got := testutil.ToFloat64(MeetingTransitionsTotal.WithLabelValues("active")); got != 2 {
		t.Errorf("active=%v, want 2", got)
	}
	if got := testutil.ToFloat64(MeetingTransitionsTotal.WithLabelValues("cancelled")); got != 1 {
		t.Errorf("cancelled=%v, want 1", got)
	}
}

func TestRecordRealtimeConnect(t *testing.T) {
	RealtimeConnectSeconds.Reset()

	RecordRealtimeConnect(200*time.Millisecond, true)
	RecordRealtimeConnect(time.Second, false)

	if n := testutil.CollectAndCount(RealtimeConnectSeconds); n != 2 {
		t.Errorf("series=%d, want 2", n)
	}
}
