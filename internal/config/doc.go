// Package config provides configuration loading and validation for the overlay service.
// It handles YAML-based configuration with per-section validation for the UDP event
// ingress, HTTP API, translation endpoint, audio playback, anchor tracking and logging.
package config
