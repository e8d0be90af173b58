package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/announce"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/audio"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/config"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/metrics"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/tracking"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/translation"
)

const (
	serviceName    = "lingua-overlay"
	serviceVersion = "1.0.0"
)

// AnchorStore is the read side of the tracking session
type AnchorStore interface {
	Count() int
	Snapshot() []tracking.AnchorState
	State(id uuid.UUID) (tracking.AnchorState, bool)
	GetStats() tracking.SessionStats
}

// Announcements is the control surface of the announcement coordinator
type Announcements interface {
	Announce(ctx context.Context, name string, force bool) (announce.Outcome, error)
	Replay(name string, slot audio.Slot) error
	Stop()
	ResetDebounce()
	Entries() []announce.Entry
	GetStats() announce.Stats
}

// TranslationStats reports translation client statistics
type TranslationStats interface {
	GetStats() translation.ClientStats
	Profile() translation.Profile
}

// Components are the services exposed by the HTTP API
type Components struct {
	UDP           *UDPServer
	Anchors       AnchorStore
	Announcements Announcements
	Translation   TranslationStats
	// Gatherer backs /metrics; nil uses the default registry
	Gatherer prometheus.Gatherer
}

// HTTPServer provides HTTP API endpoints for monitoring and control
type HTTPServer struct {
	server     *http.Server
	logger     *slog.Logger
	config     *config.Config
	components Components
	metrics    *metrics.Metrics

	startTime time.Time
}

// NewHTTPServer creates a new HTTP API server
func NewHTTPServer(cfg config.HTTPConfig, logger *slog.Logger, appConfig *config.Config, components Components, m *metrics.Metrics) *HTTPServer {
	h := &HTTPServer{
		logger:     logger,
		config:     appConfig,
		components: components,
		metrics:    m,
		startTime:  time.Now(),
	}

	mux := http.NewServeMux()
	h.setupRoutes(mux)

	h.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Address, cfg.Port),
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return h
}

// Handler returns the routed handler
func (h *HTTPServer) Handler() http.Handler {
	return h.server.Handler
}

// setupRoutes configures HTTP API routes
func (h *HTTPServer) setupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", h.withMetrics("/health", h.handleHealth))

	// Overlay state
	mux.HandleFunc("/anchors", h.withMetrics("/anchors", h.handleAnchors))
	mux.HandleFunc("/anchors/", h.withMetrics("/anchors/{id}", h.handleAnchorDetail))

	mux.HandleFunc("/config", h.withMetrics("/config", h.handleConfig))

	mux.HandleFunc("/stats", h.withMetrics("/stats", h.handleStats))
	mux.HandleFunc("/stats/translation", h.withMetrics("/stats/translation", h.handleTranslationStats))

	// Announcement controls
	mux.HandleFunc("/announce", h.withMetrics("/announce", h.handleAnnounce))
	mux.HandleFunc("/announce/stop", h.withMetrics("/announce/stop", h.handleAnnounceStop))
	mux.HandleFunc("/announce/reset", h.withMetrics("/announce/reset", h.handleAnnounceReset))
	mux.HandleFunc("/announce/replay", h.withMetrics("/announce/replay", h.handleAnnounceReplay))
	mux.HandleFunc("/announce/entries", h.withMetrics("/announce/entries", h.handleAnnounceEntries))

	// Prometheus metrics endpoint (no metrics needed for metrics endpoint)
	gatherer := h.components.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	mux.HandleFunc("/", h.withMetrics("/", h.handleRoot))
}

// withMetrics wraps an HTTP handler with metrics collection
func (h *HTTPServer) withMetrics(endpoint string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Create a response writer wrapper to capture status code
		ww := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler(ww, r)

		duration := time.Since(startTime).Seconds()
		statusCode := strconv.Itoa(ww.statusCode)

		h.metrics.RecordHTTPRequest(r.Method, endpoint, statusCode, duration)

		if ww.statusCode >= 400 {
			errorType := "client_error"
			if ww.statusCode >= 500 {
				errorType = "server_error"
			}
			h.metrics.RecordHTTPError(r.Method, endpoint, errorType)
		}
	}
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// Start starts the HTTP server
func (h *HTTPServer) Start() error {
	h.logger.Info("Starting HTTP API server",
		slog.String("address", h.server.Addr),
	)

	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			h.logger.Error("HTTP server error", slog.String("error", err.Error()))
		}
	}()

	return nil
}

// Stop gracefully stops the HTTP server
func (h *HTTPServer) Stop(ctx context.Context) error {
	h.logger.Info("Stopping HTTP API server...")

	return h.server.Shutdown(ctx)
}

func (h *HTTPServer) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("Failed to encode response", slog.String("error", err.Error()))
	}
}

func (h *HTTPServer) udpStats() ServerStatistics {
	if h.components.UDP == nil {
		return ServerStatistics{}
	}
	return h.components.UDP.GetStatistics()
}

// handleHealth implements the /health endpoint
func (h *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	udpStats := h.udpStats()
	sessionStats := h.components.Anchors.GetStats()
	translationStats := h.components.Translation.GetStats()

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(h.startTime).String(),
		"service": map[string]interface{}{
			"name":    serviceName,
			"version": serviceVersion,
		},
		"components": map[string]interface{}{
			"udp_server": map[string]interface{}{
				"status":            "running",
				"packets_received":  udpStats.PacketsReceived,
				"packets_processed": udpStats.PacketsProcessed,
				"parse_errors":      udpStats.ParseErrors,
				"queue_size":        udpStats.QueueSize,
			},
			"tracking": map[string]interface{}{
				"status":         "running",
				"active_anchors": sessionStats.LiveAnchors,
				"events_handled": sessionStats.EventsHandled,
			},
			"translation": map[string]interface{}{
				"status":          "running",
				"profile":         h.components.Translation.Profile(),
				"total_requests":  translationStats.TotalRequests,
				"success_rate":    translationStats.SuccessRate,
				"active_requests": translationStats.ActiveRequests,
			},
		},
	}

	h.writeJSON(w, http.StatusOK, health)
}

// handleAnchors implements the /anchors endpoint
func (h *HTTPServer) handleAnchors(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	anchors := h.components.Anchors.Snapshot()

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total_anchors": len(anchors),
		"timestamp":     time.Now().UTC(),
		"anchors":       anchors,
	})
}

// handleAnchorDetail implements the /anchors/{id} endpoint
func (h *HTTPServer) handleAnchorDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	idStr := strings.TrimPrefix(r.URL.Path, "/anchors/")
	if idStr == "" {
		http.Error(w, "Anchor ID required", http.StatusBadRequest)
		return
	}

	id, err := uuid.Parse(idStr)
	if err != nil {
		http.Error(w, "Invalid anchor ID", http.StatusBadRequest)
		return
	}

	state, exists := h.components.Anchors.State(id)
	if !exists {
		http.Error(w, "Anchor not found", http.StatusNotFound)
		return
	}

	h.writeJSON(w, http.StatusOK, state)
}

// handleConfig implements the /config endpoint
func (h *HTTPServer) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	sanitizedConfig := map[string]interface{}{
		"server": map[string]interface{}{
			"udp_port":     h.config.Server.UDPPort,
			"bind_address": h.config.Server.BindAddress,
			"buffer_size":  h.config.Server.BufferSize,
			"queue_size":   h.config.Server.QueueSize,
		},
		"translation": map[string]interface{}{
			"base_url":       h.config.Translation.BaseURL,
			"profile":        h.config.Translation.Profile,
			"timeout":        h.config.Translation.Timeout,
			"max_retries":    h.config.Translation.MaxRetries,
			"max_concurrent": h.config.Translation.MaxConcurrent,
		},
		"audio": map[string]interface{}{
			"headless":        len(h.config.Audio.PlayerCommand) == 0,
			"format_hint":     h.config.Audio.FormatHint,
			"speech":          len(h.config.Audio.SpeechCommand) > 0,
			"voice":           h.config.Audio.Voice,
			"cue_sample_rate": h.config.Audio.CueSampleRate,
		},
		"tracking": map[string]interface{}{
			"fallback_label": h.config.Tracking.FallbackLabel,
			"aliases":        len(h.config.Tracking.Aliases),
			"detection_cue":  h.config.Tracking.DetectionCue,
			"lookup_timeout": h.config.Tracking.LookupTimeout,
		},
		"logging": map[string]interface{}{
			"level":  h.config.Logging.Level,
			"format": h.config.Logging.Format,
			"output": h.config.Logging.Output,
		},
	}

	h.writeJSON(w, http.StatusOK, sanitizedConfig)
}

// handleStats implements the /stats endpoint
func (h *HTTPServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	udpStats := h.udpStats()

	stats := map[string]interface{}{
		"uptime":    time.Since(h.startTime).String(),
		"timestamp": time.Now().UTC(),
		"udp": map[string]interface{}{
			"packets_received":  udpStats.PacketsReceived,
			"packets_processed": udpStats.PacketsProcessed,
			"parse_errors":      udpStats.ParseErrors,
			"active_anchors":    udpStats.ActiveAnchors,
			"queue_size":        udpStats.QueueSize,
			"queue_capacity":    udpStats.QueueCapacity,
		},
		"tracking":     h.components.Anchors.GetStats(),
		"announcement": h.components.Announcements.GetStats(),
		"translation":  h.components.Translation.GetStats(),
	}

	h.writeJSON(w, http.StatusOK, stats)
}

// handleTranslationStats implements the /stats/translation endpoint
func (h *HTTPServer) handleTranslationStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.writeJSON(w, http.StatusOK, h.components.Translation.GetStats())
}

// handleAnnounce implements POST /announce?name=&force=
func (h *HTTPServer) handleAnnounce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("name")
	force := false
	if v := r.URL.Query().Get("force"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "Invalid force flag", http.StatusBadRequest)
			return
		}
		force = parsed
	}

	outcome, err := h.components.Announcements.Announce(r.Context(), name, force)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, outcome)
	case errors.Is(err, announce.ErrEmptyName):
		http.Error(w, "Name required", http.StatusBadRequest)
	default:
		h.writeJSON(w, http.StatusBadGateway, map[string]interface{}{
			"outcome":    outcome,
			"error":      err.Error(),
			"error_type": translation.Classify(err),
		})
	}
}

// handleAnnounceStop implements POST /announce/stop
func (h *HTTPServer) handleAnnounceStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.components.Announcements.Stop()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"stopped": true})
}

// handleAnnounceReset implements POST /announce/reset
func (h *HTTPServer) handleAnnounceReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.components.Announcements.ResetDebounce()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{"reset": true})
}

// handleAnnounceReplay implements POST /announce/replay?name=&slot=
func (h *HTTPServer) handleAnnounceReplay(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("name")
	if strings.TrimSpace(name) == "" {
		http.Error(w, "Name required", http.StatusBadRequest)
		return
	}

	slot, err := audio.ParseSlot(r.URL.Query().Get("slot"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	err = h.components.Announcements.Replay(name, slot)
	switch {
	case err == nil:
		h.writeJSON(w, http.StatusOK, map[string]interface{}{
			"name": name,
			"slot": slot.String(),
		})
	case errors.Is(err, announce.ErrNotAnnounced), errors.Is(err, announce.ErrNoAudio):
		http.Error(w, err.Error(), http.StatusNotFound)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// handleAnnounceEntries implements GET /announce/entries
func (h *HTTPServer) handleAnnounceEntries(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	entries := h.components.Announcements.Entries()
	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"total": len(entries),
		"names": entries,
	})
}

// handleRoot implements the / endpoint with API documentation
func (h *HTTPServer) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	apiDoc := map[string]interface{}{
		"service": "Translation Overlay Service",
		"version": serviceVersion,
		"endpoints": map[string]interface{}{
			"GET /":                             "API documentation",
			"GET /health":                       "Service health check",
			"GET /anchors":                      "List live anchors with overlay state",
			"GET /anchors/{id}":                 "Get one anchor",
			"GET /config":                       "Get service configuration",
			"GET /stats":                        "Get service statistics",
			"GET /stats/translation":            "Get translation client statistics",
			"POST /announce?name=&force=":       "Announce an object name",
			"POST /announce/stop":               "Stop announcement audio",
			"POST /announce/reset":              "Clear the announced-name set",
			"POST /announce/replay?name=&slot=": "Replay cached audio (translation|fact)",
			"GET /announce/entries":             "List announced names",
			"GET /metrics":                      "Prometheus metrics",
		},
		"timestamp": time.Now().UTC(),
	}

	h.writeJSON(w, http.StatusOK, apiDoc)
}
