package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordAnchorEvent("added")
	m.RecordAnchorEvent("added")
	m.RecordAnchorEvent("removed")
	m.SetActiveAnchors(1)
	m.RecordLookupFailure("status_5xx", 0.2)
	m.RecordPlayback("translation_audio", 2048)
	m.RecordSpeechFallback(false)

	if got := testutil.ToFloat64(m.AnchorEvents.WithLabelValues("added")); got != 2 {
		t.Errorf("Expected 2 added events, got %v", got)
	}
	if got := testutil.ToFloat64(m.ActiveAnchors); got != 1 {
		t.Errorf("Expected 1 active anchor, got %v", got)
	}
	if got := testutil.ToFloat64(m.LookupFailures.WithLabelValues("status_5xx")); got != 1 {
		t.Errorf("Expected 1 lookup failure, got %v", got)
	}
	if got := testutil.ToFloat64(m.Playbacks.WithLabelValues("translation_audio")); got != 1 {
		t.Errorf("Expected 1 playback, got %v", got)
	}
	if got := testutil.ToFloat64(m.SpeechFallbacks.WithLabelValues("error")); got != 1 {
		t.Errorf("Expected 1 failed speech fallback, got %v", got)
	}
}

func TestMetricsIsolatedRegistries(t *testing.T) {
	// Registering twice on separate registries must not panic
	NewMetrics(prometheus.NewRegistry())
	NewMetrics(prometheus.NewRegistry())
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordPacketReceived()
	m.RecordAnchorEvent("added")
	m.RecordLookupSuccess(0.1)
	m.RecordHTTPRequest("GET", "/health", "200", 0.01)
}
