// Package config loads the client's runtime settings. Sources are layered:
// built-in defaults, then an optional JSON file, then command-line flags,
// with later sources taking precedence.
package config

import "time"

// Config holds the runtime settings of the messaging client.
type Config struct {
	// RelayWSURL is the websocket endpoint of the hosted relay.
	RelayWSURL string
	// APIBaseURL is the base URL of the backend's REST API (key directory,
	// membership).
	APIBaseURL string
	// DatabaseDSN points at the local SQLite database.
	DatabaseDSN string
	// RetryInterval is how often the outbox retries queued messages.
	RetryInterval time.Duration
	// MaxRetries is the per-message retry ceiling before a queued message is
	// dropped.
	MaxRetries int
	// KDFIterations is the PBKDF2 iteration count used during key generation.
	KDFIterations int

	// Object storage for encrypted attachments.
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.RelayWSURL = "ws://127.0.0.1:8080/v1/ws"
	c.APIBaseURL = "http://127.0.0.1:8080"
	c.DatabaseDSN = "whisperkit.db"
	c.RetryInterval = 30 * time.Second
	c.MaxRetries = 5
	c.KDFIterations = 10_000
	c.S3Region = "us-east-1"
	c.S3Bucket = "whisperkit-attachments"
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present).
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
