package config

import "os"

// Default values for optional configuration fields.
const (
	DefaultBaseURL     = "https://api.alpaca.markets"
	DefaultDataURL     = "https://data.alpaca.markets"
	DefaultFeedServers = "nats://nats1.polygon.io:30401, nats://nats2.polygon.io:30402, nats://nats3.polygon.io:30403"
	DefaultMetricsPort = 9090
	DefaultMetricsPath = "/metrics"
	DefaultLogLevel    = "info"
)

// Environment variables consulted for endpoint overrides.
const (
	EnvBaseURL = "APCA_API_BASE_URL"
	EnvDataURL = "APCA_API_DATA_URL"
)

func (c *Config) applyDefaults() {
	// API defaults: explicit config wins, then environment, then default.
	if c.API.BaseURL == "" {
		c.API.BaseURL = os.Getenv(EnvBaseURL)
	}
	if c.API.BaseURL == "" {
		c.API.BaseURL = DefaultBaseURL
	}
	if c.API.DataURL == "" {
		c.API.DataURL = os.Getenv(EnvDataURL)
	}
	if c.API.DataURL == "" {
		c.API.DataURL = DefaultDataURL
	}
	if c.API.FeedServers == "" {
		c.API.FeedServers = DefaultFeedServers
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	// Log defaults
	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
}
