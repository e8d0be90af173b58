package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the overlay service.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	// UDP ingress metrics
	PacketsReceived  prometheus.Counter
	PacketsProcessed prometheus.Counter
	ParseErrors      prometheus.Counter
	QueueSize        prometheus.Gauge

	// Anchor metrics
	ActiveAnchors     prometheus.Gauge
	AnchorEvents      *prometheus.CounterVec
	DroppedEvents     *prometheus.CounterVec
	LabelUpdates      prometheus.Counter
	DiscardedResults  prometheus.Counter
	DetectionCues     prometheus.Counter
	AnchorLookupDelay prometheus.Histogram

	// Translation metrics
	LookupRequests  prometheus.Counter
	LookupSuccesses prometheus.Counter
	LookupFailures  *prometheus.CounterVec
	LookupDuration  prometheus.Histogram
	LookupRetries   *prometheus.CounterVec
	Debounced       prometheus.Counter
	Coalesced       prometheus.Counter

	// Playback metrics
	Playbacks        *prometheus.CounterVec
	PlaybackFailures *prometheus.CounterVec
	SpeechFallbacks  *prometheus.CounterVec
	AudioPayloadSize prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all Prometheus metrics and registers them with reg.
// A nil reg uses the default registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		// UDP ingress metrics
		PacketsReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingua_packets_received_total",
			Help: "Total number of UDP anchor event packets received",
		}),
		PacketsProcessed: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingua_packets_processed_total",
			Help: "Total number of UDP packets delivered to the tracking session",
		}),
		ParseErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingua_parse_errors_total",
			Help: "Total number of packet parsing errors",
		}),
		QueueSize: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lingua_event_queue_size",
			Help: "Current number of events waiting for the tracking session",
		}),

		// Anchor metrics
		ActiveAnchors: factory.NewGauge(prometheus.GaugeOpts{
			Name: "lingua_active_anchors",
			Help: "Current number of live anchor visualizations",
		}),
		AnchorEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_anchor_events_total",
			Help: "Total number of anchor events applied, by kind",
		}, []string{"kind"}),
		DroppedEvents: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_anchor_events_dropped_total",
			Help: "Total number of anchor events dropped, by reason",
		}, []string{"reason"}),
		LabelUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingua_label_updates_total",
			Help: "Total number of translated labels applied to visualizations",
		}),
		DiscardedResults: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingua_lookup_results_discarded_total",
			Help: "Total number of lookup results discarded because the anchor was removed",
		}),
		DetectionCues: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingua_detection_cues_total",
			Help: "Total number of detection cue tones played",
		}),
		AnchorLookupDelay: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingua_anchor_label_delay_seconds",
			Help:    "Time from anchor addition until its lookup task finished",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		}),

		// Translation metrics
		LookupRequests: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingua_lookup_requests_total",
			Help: "Total number of translation lookups started",
		}),
		LookupSuccesses: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingua_lookup_successes_total",
			Help: "Total number of successful translation lookups",
		}),
		LookupFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_lookup_failures_total",
			Help: "Total number of failed translation lookups, by error type",
		}, []string{"error_type"}),
		LookupDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingua_lookup_duration_seconds",
			Help:    "Duration of translation lookups including retries",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),
		LookupRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_lookup_retries_total",
			Help: "Total number of translation lookup retries, by status code",
		}, []string{"status_code"}),
		Debounced: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingua_announcements_debounced_total",
			Help: "Total number of announcements suppressed for already announced names",
		}),
		Coalesced: factory.NewCounter(prometheus.CounterOpts{
			Name: "lingua_announcements_coalesced_total",
			Help: "Total number of announcements that shared another caller's lookup",
		}),

		// Playback metrics
		Playbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_playbacks_total",
			Help: "Total number of announcements played, by audio source",
		}, []string{"source"}),
		PlaybackFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_playback_failures_total",
			Help: "Total number of audio payloads that could not be played, by stage",
		}, []string{"stage"}),
		SpeechFallbacks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_speech_fallbacks_total",
			Help: "Total number of speech synthesis fallbacks, by result",
		}, []string{"result"}),
		AudioPayloadSize: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lingua_audio_payload_bytes",
			Help:    "Size of decoded audio payloads in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 12), // 1KB to ~4MB
		}),

		// HTTP API metrics
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "lingua_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "lingua_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordPacketReceived increments the packets received counter
func (m *Metrics) RecordPacketReceived() {
	if m == nil {
		return
	}
	m.PacketsReceived.Inc()
}

// RecordPacketProcessed increments the packets processed counter
func (m *Metrics) RecordPacketProcessed() {
	if m == nil {
		return
	}
	m.PacketsProcessed.Inc()
}

// RecordParseError increments the parse errors counter
func (m *Metrics) RecordParseError() {
	if m == nil {
		return
	}
	m.ParseErrors.Inc()
}

// SetQueueSize sets the current queue size
func (m *Metrics) SetQueueSize(size int) {
	if m == nil {
		return
	}
	m.QueueSize.Set(float64(size))
}

// SetActiveAnchors sets the current number of live visualizations
func (m *Metrics) SetActiveAnchors(count int) {
	if m == nil {
		return
	}
	m.ActiveAnchors.Set(float64(count))
}

// RecordAnchorEvent counts an applied event
func (m *Metrics) RecordAnchorEvent(kind string) {
	if m == nil {
		return
	}
	m.AnchorEvents.WithLabelValues(kind).Inc()
}

// RecordDroppedEvent counts an event the session refused
func (m *Metrics) RecordDroppedEvent(reason string) {
	if m == nil {
		return
	}
	m.DroppedEvents.WithLabelValues(reason).Inc()
}

// RecordLabelUpdate counts a translated label applied to a visualization
func (m *Metrics) RecordLabelUpdate() {
	if m == nil {
		return
	}
	m.LabelUpdates.Inc()
}

// RecordDiscardedResult counts a lookup result dropped for a removed anchor
func (m *Metrics) RecordDiscardedResult() {
	if m == nil {
		return
	}
	m.DiscardedResults.Inc()
}

// RecordDetectionCue counts a played detection tone
func (m *Metrics) RecordDetectionCue() {
	if m == nil {
		return
	}
	m.DetectionCues.Inc()
}

// RecordAnchorLookupDelay records how long an anchor waited for its lookup task
func (m *Metrics) RecordAnchorLookupDelay(durationSeconds float64) {
	if m == nil {
		return
	}
	m.AnchorLookupDelay.Observe(durationSeconds)
}

// RecordLookupRequest increments the lookup requests counter
func (m *Metrics) RecordLookupRequest() {
	if m == nil {
		return
	}
	m.LookupRequests.Inc()
}

// RecordLookupSuccess records a successful lookup
func (m *Metrics) RecordLookupSuccess(durationSeconds float64) {
	if m == nil {
		return
	}
	m.LookupSuccesses.Inc()
	m.LookupDuration.Observe(durationSeconds)
}

// RecordLookupFailure records a failed lookup
func (m *Metrics) RecordLookupFailure(errorType string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.LookupFailures.WithLabelValues(errorType).Inc()
	m.LookupDuration.Observe(durationSeconds)
}

// RecordLookupRetry counts a retry caused by statusCode
func (m *Metrics) RecordLookupRetry(statusCode string) {
	if m == nil {
		return
	}
	m.LookupRetries.WithLabelValues(statusCode).Inc()
}

// RecordDebounced counts a suppressed announcement
func (m *Metrics) RecordDebounced() {
	if m == nil {
		return
	}
	m.Debounced.Inc()
}

// RecordCoalesced counts an announcement that shared an in-flight lookup
func (m *Metrics) RecordCoalesced() {
	if m == nil {
		return
	}
	m.Coalesced.Inc()
}

// RecordPlayback counts audio started from source
func (m *Metrics) RecordPlayback(source string, sizeBytes int) {
	if m == nil {
		return
	}
	m.Playbacks.WithLabelValues(source).Inc()
	if sizeBytes > 0 {
		m.AudioPayloadSize.Observe(float64(sizeBytes))
	}
}

// RecordPlaybackFailure counts a payload that failed at stage
func (m *Metrics) RecordPlaybackFailure(stage string) {
	if m == nil {
		return
	}
	m.PlaybackFailures.WithLabelValues(stage).Inc()
}

// RecordSpeechFallback counts a speech synthesis attempt
func (m *Metrics) RecordSpeechFallback(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.SpeechFallbacks.WithLabelValues(result).Inc()
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
