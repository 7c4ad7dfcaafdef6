package config

// Config is the root configuration for a stream connector instance.
type Config struct {
	API      APIConfig     `yaml:"api"`
	Channels []string      `yaml:"channels"`
	Metrics  MetricsConfig `yaml:"metrics"`
	Log      LogConfig     `yaml:"log"`
}

// APIConfig holds Alpaca API settings.
type APIConfig struct {
	BaseURL     string `yaml:"base_url"`     // Trading-events API (http/https, normalized to ws)
	DataURL     string `yaml:"data_url"`     // Market-data API (http/https, normalized to ws)
	FeedServers string `yaml:"feed_servers"` // Low-latency feed server list (comma separated)
	KeyID       string `yaml:"key_id"`
	SecretKey   string `yaml:"secret_key"`
}

// MetricsConfig holds Prometheus metrics settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}
