// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all sync core configuration.
type Config struct {
	// Cloud service
	ServerURL string
	WSURL     string

	// Logging
	LogLevel  string
	LogFormat string
	LogFile   string

	// Transport
	HTTPTimeout time.Duration

	// Push channel heartbeat
	HeartbeatDelay  time.Duration
	HeartbeatPeriod time.Duration

	// Metrics (optional — empty disables the listener)
	MetricsAddr string
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ServerURL:       envOr("CHRONOPLAN_SERVER_URL", ""),
		WSURL:           envOr("CHRONOPLAN_WS_URL", ""),
		LogLevel:        envOr("CHRONOPLAN_LOG_LEVEL", "info"),
		LogFormat:       envOr("CHRONOPLAN_LOG_FORMAT", "console"),
		LogFile:         envOr("CHRONOPLAN_LOG_FILE", ""),
		HTTPTimeout:     envDuration("CHRONOPLAN_HTTP_TIMEOUT", 30*time.Second),
		HeartbeatDelay:  envDuration("CHRONOPLAN_HEARTBEAT_DELAY", 30*time.Second),
		HeartbeatPeriod: envDuration("CHRONOPLAN_HEARTBEAT_PERIOD", 60*time.Second),
		MetricsAddr:     envOr("CHRONOPLAN_METRICS_ADDR", ""),
	}

	if cfg.ServerURL == "" {
		return nil, fmt.Errorf("CHRONOPLAN_SERVER_URL is required")
	}
	cfg.ServerURL = strings.TrimSuffix(cfg.ServerURL, "/")

	if cfg.WSURL == "" {
		cfg.WSURL = deriveWSURL(cfg.ServerURL)
	}

	return cfg, nil
}

// deriveWSURL maps the HTTP base URL to the push channel endpoint.
func deriveWSURL(serverURL string) string {
	ws := serverURL
	switch {
	case strings.HasPrefix(ws, "https://"):
		ws = "wss://" + strings.TrimPrefix(ws, "https://")
	case strings.HasPrefix(ws, "http://"):
		ws = "ws://" + strings.TrimPrefix(ws, "http://")
	}
	return ws + "/ws"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
