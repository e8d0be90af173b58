package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			UDPPort:     5005,
			BindAddress: "0.0.0.0",
			BufferSize:  65536,
			QueueSize:   1000,
		},
		Translation: TranslationConfig{
			BaseURL:       "http://localhost:5000",
			Profile:       "translate-fact-audio",
			Timeout:       20,
			MaxRetries:    2,
			MaxConcurrent: 8,
		},
		Audio: AudioConfig{
			FormatHint:    "wav",
			CueSampleRate: 44100,
		},
		Tracking: TrackingConfig{
			FallbackLabel: "Duck",
			Aliases:       map[string]string{"Apple Magic Keyboard": "Keyboard"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name        string
		modify      func(c *Config)
		expectError bool
		errorMsg    string
	}{
		{
			name:        "valid configuration",
			modify:      func(c *Config) {},
			expectError: false,
		},
		{
			name:        "invalid server port",
			modify:      func(c *Config) { c.Server.UDPPort = 70000 },
			expectError: true,
			errorMsg:    "udp_port must be between 1 and 65535",
		},
		{
			name: "http enabled without address",
			modify: func(c *Config) {
				c.HTTP = HTTPConfig{Enabled: true, Port: 8080}
			},
			expectError: true,
			errorMsg:    "http address cannot be empty",
		},
		{
			name:        "missing base url",
			modify:      func(c *Config) { c.Translation.BaseURL = "" },
			expectError: true,
			errorMsg:    "base_url cannot be empty",
		},
		{
			name:        "non-http base url",
			modify:      func(c *Config) { c.Translation.BaseURL = "ftp://example.com" },
			expectError: true,
			errorMsg:    "base_url must be an http(s) URL",
		},
		{
			name:        "unknown profile",
			modify:      func(c *Config) { c.Translation.Profile = "translate-poem" },
			expectError: true,
			errorMsg:    "profile must be one of",
		},
		{
			name:        "profile with leading slash",
			modify:      func(c *Config) { c.Translation.Profile = "/translate" },
			expectError: false,
		},
		{
			name:        "zero timeout",
			modify:      func(c *Config) { c.Translation.Timeout = 0 },
			expectError: true,
			errorMsg:    "timeout must be between 1 and 120 seconds",
		},
		{
			name:        "negative retries",
			modify:      func(c *Config) { c.Translation.MaxRetries = -1 },
			expectError: true,
			errorMsg:    "max_retries must be between 0 and 10",
		},
		{
			name:        "empty player program",
			modify:      func(c *Config) { c.Audio.PlayerCommand = []string{"", "-q"} },
			expectError: true,
			errorMsg:    "player_command must start with a program name",
		},
		{
			name:        "missing temp dir",
			modify:      func(c *Config) { c.Audio.TempDir = "/definitely/not/here" },
			expectError: true,
			errorMsg:    "temp_dir is not accessible",
		},
		{
			name:        "cue sample rate too low",
			modify:      func(c *Config) { c.Audio.CueSampleRate = 4000 },
			expectError: true,
			errorMsg:    "cue_sample_rate must be between 8000 and 96000 Hz",
		},
		{
			name:        "empty fallback label",
			modify:      func(c *Config) { c.Tracking.FallbackLabel = " " },
			expectError: true,
			errorMsg:    "fallback_label cannot be empty",
		},
		{
			name:        "alias to empty name",
			modify:      func(c *Config) { c.Tracking.Aliases = map[string]string{"Mug": ""} },
			expectError: true,
			errorMsg:    "aliases cannot map",
		},
		{
			name:        "invalid log level",
			modify:      func(c *Config) { c.Logging.Level = "trace" },
			expectError: true,
			errorMsg:    "level must be one of",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.modify(&config)

			err := config.Validate()

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else if err != nil {
				t.Errorf("Expected no error but got: %v", err)
			}
		})
	}
}

func TestConfigLoad(t *testing.T) {
	// Create a temporary directory for test files
	tempDir := t.TempDir()

	tests := []struct {
		name        string
		configYAML  string
		expectError bool
		errorMsg    string
	}{
		{
			name: "valid config file",
			configYAML: `
server:
  udp_port: 5005
  bind_address: "0.0.0.0"
  buffer_size: 65536
http:
  enabled: true
  address: "127.0.0.1"
  port: 8080
translation:
  base_url: "http://localhost:5000"
  timeout: 20
  max_retries: 2
  max_concurrent: 8
audio:
  player_command: ["ffplay", "-nodisp", "-autoexit", "-loglevel", "quiet", "{input}"]
  speech_command: ["espeak-ng", "-v", "{voice}"]
  voice: "es"
tracking:
  fallback_label: "Duck"
  detection_cue: true
  aliases:
    "MyObjectTracker2 1": "Duck"
    "Apple Magic Keyboard": "Keyboard"
logging:
  level: "info"
  format: "json"
  output: "stdout"
`,
			expectError: false,
		},
		{
			name: "invalid YAML syntax",
			configYAML: `
server:
  udp_port: 5005
  bind_address: "0.0.0.0"
  buffer_size: invalid_number
`,
			expectError: true,
			errorMsg:    "failed to parse",
		},
		{
			name: "missing required fields",
			configYAML: `
server:
  udp_port: 5005
  # missing bind_address
`,
			expectError: true,
			errorMsg:    "bind_address cannot be empty",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Create temporary config file
			configPath := filepath.Join(tempDir, "config.yaml")
			err := os.WriteFile(configPath, []byte(tt.configYAML), 0644)
			if err != nil {
				t.Fatalf("Failed to create test config file: %v", err)
			}

			// Load configuration
			config, err := Load(configPath)

			if tt.expectError {
				if err == nil {
					t.Errorf("Expected error but got none")
				} else if tt.errorMsg != "" && !contains(err.Error(), tt.errorMsg) {
					t.Errorf("Expected error to contain '%s', got '%s'", tt.errorMsg, err.Error())
				}
			} else {
				if err != nil {
					t.Errorf("Expected no error but got: %v", err)
				} else if config == nil {
					t.Errorf("Expected config to be loaded but got nil")
				}
			}
		})
	}
}

func TestConfigLoadDefaults(t *testing.T) {
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
server:
  udp_port: 5005
  bind_address: "0.0.0.0"
  buffer_size: 65536
translation:
  base_url: "https://translate.example.com"
  timeout: 20
  max_concurrent: 4
logging:
  level: "debug"
  format: "text"
`
	if err := os.WriteFile(configPath, []byte(yaml), 0644); err != nil {
		t.Fatalf("Failed to create test config file: %v", err)
	}

	config, err := Load(configPath)
	if err != nil {
		t.Fatalf("Expected no error but got: %v", err)
	}

	if config.Server.QueueSize != 1000 {
		t.Errorf("Expected default queue size 1000, got %d", config.Server.QueueSize)
	}
	if config.Translation.Profile != "translate-fact-audio" {
		t.Errorf("Expected default profile, got %q", config.Translation.Profile)
	}
	if config.Audio.FormatHint != "wav" {
		t.Errorf("Expected default format hint wav, got %q", config.Audio.FormatHint)
	}
	if config.Audio.CueSampleRate != 44100 {
		t.Errorf("Expected default cue sample rate 44100, got %d", config.Audio.CueSampleRate)
	}
	if config.Tracking.FallbackLabel != "Object" {
		t.Errorf("Expected default fallback label, got %q", config.Tracking.FallbackLabel)
	}
	if len(config.Audio.PlayerCommand) != 0 {
		t.Errorf("Expected no player command, got %v", config.Audio.PlayerCommand)
	}
}

func TestConfigLoadNonexistentFile(t *testing.T) {
	_, err := Load("nonexistent.yaml")
	if err == nil {
		t.Fatalf("Expected error for nonexistent file but got none")
	}
	if !contains(err.Error(), "failed to read config file") {
		t.Errorf("Expected error about reading file, got: %v", err)
	}
}

func TestDurationHelpers(t *testing.T) {
	translation := TranslationConfig{Timeout: 20}
	if translation.GetTimeoutDuration() != 20*time.Second {
		t.Errorf("Expected 20 seconds, got %v", translation.GetTimeoutDuration())
	}

	tracking := TrackingConfig{LookupTimeout: 45}
	if tracking.GetLookupTimeoutDuration() != 45*time.Second {
		t.Errorf("Expected 45 seconds, got %v", tracking.GetLookupTimeoutDuration())
	}

	tracking.LookupTimeout = 0
	if tracking.GetLookupTimeoutDuration() != 0 {
		t.Errorf("Expected no lookup bound, got %v", tracking.GetLookupTimeoutDuration())
	}
}

func TestLoggingConfigValidation(t *testing.T) {
	tests := []struct {
		name   string
		config LoggingConfig
		valid  bool
	}{
		{
			name:   "valid json to stdout",
			config: LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
			valid:  true,
		},
		{
			name:   "valid text to file",
			config: LoggingConfig{Level: "debug", Format: "text", Output: "/var/log/lingua.log"},
			valid:  true,
		},
		{
			name:   "invalid log level",
			config: LoggingConfig{Level: "trace", Format: "json", Output: "stdout"},
			valid:  false,
		},
		{
			name:   "invalid format",
			config: LoggingConfig{Level: "info", Format: "xml", Output: "stdout"},
			valid:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid config but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Errorf("Expected invalid config but got no error")
			}
		})
	}
}

// Helper function to check if a string contains a substring
func contains(s, substr string) bool {
	return len(s) >= len(substr) && (s == substr || len(substr) == 0 ||
		(len(s) > len(substr) && findSubstring(s, substr)))
}

func findSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
