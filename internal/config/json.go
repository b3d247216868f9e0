package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/akuznecov/whisperkit/internal/flagx"
	"github.com/akuznecov/whisperkit/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so intervals can be given either as strings like "30s" or as
// integer nanoseconds.
type JsonConfig struct {
	RelayWSURL    string         `json:"relay_ws_url"`
	APIBaseURL    string         `json:"api_base_url"`
	DatabaseDSN   string         `json:"database_dsn"`
	RetryInterval timex.Duration `json:"retry_interval"`
	MaxRetries    int            `json:"max_retries"`
	KDFIterations int            `json:"kdf_iterations"`
	S3Endpoint    string         `json:"s3_endpoint"`
	S3Region      string         `json:"s3_region"`
	S3Bucket      string         `json:"s3_bucket"`
	S3AccessKey   string         `json:"s3_access_key"`
	S3SecretKey   string         `json:"s3_secret_key"`
}

// parseJson overlays cfg with values from the JSON file named by the -c or
// -config flag. Unset JSON fields keep their current values. Panics on read
// or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.RelayWSURL != "" {
		cfg.RelayWSURL = jc.RelayWSURL
	}
	if jc.APIBaseURL != "" {
		cfg.APIBaseURL = jc.APIBaseURL
	}
	if jc.DatabaseDSN != "" {
		cfg.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.RetryInterval.Duration != 0 {
		cfg.RetryInterval = time.Duration(jc.RetryInterval.Duration)
	}
	if jc.MaxRetries != 0 {
		cfg.MaxRetries = jc.MaxRetries
	}
	if jc.KDFIterations != 0 {
		cfg.KDFIterations = jc.KDFIterations
	}
	if jc.S3Endpoint != "" {
		cfg.S3Endpoint = jc.S3Endpoint
	}
	if jc.S3Region != "" {
		cfg.S3Region = jc.S3Region
	}
	if jc.S3Bucket != "" {
		cfg.S3Bucket = jc.S3Bucket
	}
	if jc.S3AccessKey != "" {
		cfg.S3AccessKey = jc.S3AccessKey
	}
	if jc.S3SecretKey != "" {
		cfg.S3SecretKey = jc.S3SecretKey
	}
}
