package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/announce"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/audio"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/config"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/metrics"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/server"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/tracking"
	"github.com/SaketR3/Vision-Pro-Language-Immersion/internal/translation"
)

const (
	defaultConfigPath = "configs/config.yaml"
	serviceName       = "lingua-overlay"
	serviceVersion    = "1.0.0"
)

// logSink reports label changes to the log when no renderer is attached
type logSink struct {
	logger *slog.Logger
}

func (s logSink) LabelChanged(id uuid.UUID, label string) {
	s.logger.Info("Overlay label changed",
		slog.String("anchor_id", id.String()),
		slog.String("label", label),
	)
}

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", *configPath),
	)

	logger.Info("Configuration loaded",
		slog.Int("udp_port", cfg.Server.UDPPort),
		slog.String("bind_address", cfg.Server.BindAddress),
		slog.Int("queue_size", cfg.Server.QueueSize),
		slog.String("translation_base_url", cfg.Translation.BaseURL),
		slog.String("translation_profile", cfg.Translation.Profile),
		slog.Int("max_retries", cfg.Translation.MaxRetries),
		slog.Bool("headless_audio", len(cfg.Audio.PlayerCommand) == 0),
		slog.Bool("detection_cue", cfg.Tracking.DetectionCue),
		slog.String("log_level", cfg.Logging.Level),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Metrics live on a dedicated registry served by /metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	appMetrics := metrics.NewMetrics(registry)
	logger.Info("Prometheus metrics initialized")

	profile, err := translation.ParseProfile(cfg.Translation.Profile)
	if err != nil {
		logger.Error("Invalid translation profile", slog.String("error", err.Error()))
		os.Exit(1)
	}

	client, err := translation.NewClient(translation.Config{
		BaseURL:       cfg.Translation.BaseURL,
		Profile:       profile,
		Timeout:       cfg.Translation.GetTimeoutDuration(),
		MaxRetries:    cfg.Translation.MaxRetries,
		MaxConcurrent: cfg.Translation.MaxConcurrent,
		UserAgent:     cfg.Translation.UserAgent,
		OnRetry: func(attempt int, status int) {
			appMetrics.RecordLookupRetry(strconv.Itoa(status))
			logger.Debug("Retrying translation lookup",
				slog.Int("attempt", attempt),
				slog.Int("status_code", status),
			)
		},
	})
	if err != nil {
		logger.Error("Failed to create translation client", slog.String("error", err.Error()))
		os.Exit(1)
	}
	logger.Info("Translation client initialized",
		slog.String("base_url", cfg.Translation.BaseURL),
		slog.String("profile", string(profile)),
	)

	var backend audio.Backend = audio.SilentBackend{}
	if len(cfg.Audio.PlayerCommand) > 0 {
		commandBackend, err := audio.NewCommandBackend(cfg.Audio.PlayerCommand)
		if err != nil {
			logger.Error("Failed to create audio backend", slog.String("error", err.Error()))
			os.Exit(1)
		}
		backend = commandBackend
	}
	chain := audio.NewChain(backend, cfg.Audio.TempDir, logger)
	speaker := audio.NewSpeechAnnouncer(cfg.Audio.SpeechCommand, cfg.Audio.Voice, logger)
	cue := audio.NewCuePlayer(chain, cfg.Audio.CueSampleRate)
	logger.Info("Audio chain initialized",
		slog.Bool("headless", len(cfg.Audio.PlayerCommand) == 0),
		slog.Bool("speech", len(cfg.Audio.SpeechCommand) > 0),
	)

	coordinator := announce.NewCoordinator(client, chain, speaker, announce.Config{
		MaxRetries:    cfg.Translation.MaxRetries,
		FormatHint:    cfg.Audio.FormatHint,
		LookupTimeout: cfg.Tracking.GetLookupTimeoutDuration(),
	}, logger, appMetrics)

	session := tracking.NewSession(coordinator, logSink{logger: logger}, cue, tracking.Config{
		FallbackLabel: cfg.Tracking.FallbackLabel,
		Aliases:       cfg.Tracking.Aliases,
		DetectionCue:  cfg.Tracking.DetectionCue,
		LookupTimeout: cfg.Tracking.GetLookupTimeoutDuration(),
	}, logger, appMetrics)

	udpServer := server.NewUDPServer(&cfg.Server, logger, session, appMetrics)
	logger.Info("UDP server initialized")

	var httpServer *server.HTTPServer
	if cfg.HTTP.Enabled {
		httpServer = server.NewHTTPServer(cfg.HTTP, logger, cfg, server.Components{
			UDP:           udpServer,
			Anchors:       session,
			Announcements: coordinator,
			Translation:   client,
			Gatherer:      registry,
		}, appMetrics)
		logger.Info("HTTP API server initialized",
			slog.String("address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
		)
	}

	if err := udpServer.Start(); err != nil {
		logger.Error("Failed to start UDP server", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// The session is the only consumer of the event stream
	sessionDone := make(chan error, 1)
	go func() {
		sessionDone <- session.Run(ctx, udpServer.Events())
	}()

	if httpServer != nil {
		if err := httpServer.Start(); err != nil {
			logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("udp_address", fmt.Sprintf("%s:%d", cfg.Server.BindAddress, cfg.Server.UDPPort)),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case err := <-sessionDone:
		logger.Error("Tracking session stopped unexpectedly", slog.Any("error", err))
	}

	logger.Info("Starting graceful shutdown...")

	// Stop HTTP server first (stop accepting new requests)
	if httpServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()

		if err := httpServer.Stop(shutdownCtx); err != nil {
			logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
		}
	}

	// Closing the event stream ends the session loop
	if err := udpServer.Stop(); err != nil {
		logger.Error("Error stopping UDP server", slog.String("error", err.Error()))
	}
	cancel()
	session.Close()

	coordinator.Stop()
	if err := chain.Close(); err != nil {
		logger.Error("Error closing audio chain", slog.String("error", err.Error()))
	}
	if err := client.Close(); err != nil {
		logger.Error("Error closing translation client", slog.String("error", err.Error()))
	}

	stats := udpServer.GetStatistics()
	announceStats := coordinator.GetStats()
	logger.Info("Final server statistics",
		slog.Uint64("packets_received", stats.PacketsReceived),
		slog.Uint64("packets_processed", stats.PacketsProcessed),
		slog.Uint64("parse_errors", stats.ParseErrors),
		slog.Uint64("active_anchors", stats.ActiveAnchors),
		slog.Uint64("announcements", announceStats.Announcements),
		slog.Uint64("lookup_failures", announceStats.LookupFailures),
	)

	logger.Info("Service stopped")
}

// initLogger creates and configures the structured logger based on configuration
func initLogger(cfg config.LoggingConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var output *os.File
	switch cfg.Output {
	case "stderr":
		output = os.Stderr
	case "stdout", "":
		output = os.Stdout
	default:
		// Assume it's a file path
		file, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file %s: %v, falling back to stdout\n", cfg.Output, err)
			output = os.Stdout
		} else {
			output = file
		}
	}

	var handler slog.Handler
	switch cfg.Format {
	case "json":
		handler = slog.NewJSONHandler(output, opts)
	default:
		handler = slog.NewTextHandler(output, opts)
	}

	return slog.New(handler)
}
