package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	HTTP        HTTPConfig        `yaml:"http"`
	Translation TranslationConfig `yaml:"translation"`
	Audio       AudioConfig       `yaml:"audio"`
	Tracking    TrackingConfig    `yaml:"tracking"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig contains UDP event ingress configuration
type ServerConfig struct {
	UDPPort     int    `yaml:"udp_port"`
	BindAddress string `yaml:"bind_address"`
	BufferSize  int    `yaml:"buffer_size"`
	QueueSize   int    `yaml:"queue_size"` // events waiting for the tracking session
}

// HTTPConfig contains HTTP API server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// TranslationConfig contains translation endpoint configuration
type TranslationConfig struct {
	BaseURL       string `yaml:"base_url"`
	Profile       string `yaml:"profile"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
	UserAgent     string `yaml:"user_agent"`
}

// AudioConfig contains playback and speech synthesis configuration
type AudioConfig struct {
	PlayerCommand []string `yaml:"player_command"` // empty selects the headless backend
	TempDir       string   `yaml:"temp_dir"`
	FormatHint    string   `yaml:"format_hint"`
	SpeechCommand []string `yaml:"speech_command"` // empty logs fallback text instead
	Voice         string   `yaml:"voice"`
	CueSampleRate int      `yaml:"cue_sample_rate"`
}

// TrackingConfig contains anchor tracking configuration
type TrackingConfig struct {
	FallbackLabel string            `yaml:"fallback_label"`
	Aliases       map[string]string `yaml:"aliases"`
	DetectionCue  bool              `yaml:"detection_cue"`
	LookupTimeout int               `yaml:"lookup_timeout"` // seconds, 0 = client timeout only
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

var validProfiles = map[string]bool{
	"translate-fact-audio": true,
	"translate-fact":       true,
	"translate":            true,
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// applyDefaults fills optional fields left out of the file
func (c *Config) applyDefaults() {
	if c.Server.QueueSize == 0 {
		c.Server.QueueSize = 1000
	}
	if c.Translation.Profile == "" {
		c.Translation.Profile = "translate-fact-audio"
	}
	if c.Audio.FormatHint == "" {
		c.Audio.FormatHint = "wav"
	}
	if c.Audio.CueSampleRate == 0 {
		c.Audio.CueSampleRate = 44100
	}
	if c.Tracking.FallbackLabel == "" {
		c.Tracking.FallbackLabel = "Object"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Translation.Validate(); err != nil {
		return fmt.Errorf("translation config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Tracking.Validate(); err != nil {
		return fmt.Errorf("tracking config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.UDPPort < 1 || s.UDPPort > 65535 {
		return fmt.Errorf("udp_port must be between 1 and 65535, got %d", s.UDPPort)
	}

	if s.BindAddress == "" {
		return fmt.Errorf("bind_address cannot be empty")
	}

	if s.BufferSize < 1024 {
		return fmt.Errorf("buffer_size must be at least 1024 bytes, got %d", s.BufferSize)
	}

	if s.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", s.QueueSize)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates translation configuration
func (t *TranslationConfig) Validate() error {
	if t.BaseURL == "" {
		return fmt.Errorf("base_url cannot be empty")
	}

	u, err := url.Parse(t.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("base_url must be an http(s) URL, got '%s'", t.BaseURL)
	}

	if !validProfiles[strings.Trim(t.Profile, "/")] {
		return fmt.Errorf("profile must be one of [translate-fact-audio, translate-fact, translate], got '%s'", t.Profile)
	}

	if t.Timeout < 1 || t.Timeout > 120 {
		return fmt.Errorf("timeout must be between 1 and 120 seconds, got %d", t.Timeout)
	}

	if t.MaxRetries < 0 || t.MaxRetries > 10 {
		return fmt.Errorf("max_retries must be between 0 and 10, got %d", t.MaxRetries)
	}

	if t.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", t.MaxConcurrent)
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if len(a.PlayerCommand) > 0 && strings.TrimSpace(a.PlayerCommand[0]) == "" {
		return fmt.Errorf("player_command must start with a program name")
	}

	if len(a.SpeechCommand) > 0 && strings.TrimSpace(a.SpeechCommand[0]) == "" {
		return fmt.Errorf("speech_command must start with a program name")
	}

	if strings.ContainsAny(a.FormatHint, `\ `) {
		return fmt.Errorf("format_hint must be a bare extension or MIME type, got '%s'", a.FormatHint)
	}

	if a.TempDir != "" {
		info, err := os.Stat(a.TempDir)
		if err != nil {
			return fmt.Errorf("temp_dir is not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("temp_dir %s is not a directory", a.TempDir)
		}
	}

	if a.CueSampleRate < 8000 || a.CueSampleRate > 96000 {
		return fmt.Errorf("cue_sample_rate must be between 8000 and 96000 Hz, got %d", a.CueSampleRate)
	}

	return nil
}

// Validate validates tracking configuration
func (t *TrackingConfig) Validate() error {
	if strings.TrimSpace(t.FallbackLabel) == "" {
		return fmt.Errorf("fallback_label cannot be empty")
	}

	for from, to := range t.Aliases {
		if strings.TrimSpace(from) == "" || strings.TrimSpace(to) == "" {
			return fmt.Errorf("aliases cannot map to or from an empty name (%q: %q)", from, to)
		}
	}

	if t.LookupTimeout < 0 {
		return fmt.Errorf("lookup_timeout cannot be negative, got %d", t.LookupTimeout)
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Any other output is treated as a file path
	return nil
}

// GetTimeoutDuration returns the translation request timeout as a time.Duration
func (t *TranslationConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}

// GetLookupTimeoutDuration returns the per-anchor lookup bound as a time.Duration
func (t *TrackingConfig) GetLookupTimeoutDuration() time.Duration {
	return time.Duration(t.LookupTimeout) * time.Second
}
