// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for ga4-manager. It supports a four-layer
// override chain (defaults -> config file -> environment -> CLI flags).
package config

import "time"

// Config is the top-level configuration structure parsed from a TOML file.
// Every section is optional; missing keys keep their defaults.
type Config struct {
	Engine  EngineConfig  `toml:"engine"`
	Source  SourceConfig  `toml:"source"`
	Network NetworkConfig `toml:"network"`
	Logging LoggingConfig `toml:"logging"`
	Metrics MetricsConfig `toml:"metrics"`
}

// EngineConfig controls plan execution: worker pool size, the retry budget
// for transient API errors, and which fields never count as drift.
type EngineConfig struct {
	Concurrency  int      `toml:"concurrency"`
	MaxRetries   int      `toml:"max_retries"`
	RetryBackoff string   `toml:"retry_backoff"`
	IgnoreFields []string `toml:"ignore_fields"`
}

// SourceConfig locates the desired-state document and, optionally, a local
// SQLite sandbox that stands in for the Admin API.
type SourceConfig struct {
	DesiredFile string `toml:"desired_file"`
	StorePath   string `toml:"store_path"`
}

// NetworkConfig controls the Admin API client: endpoint, pacing, timeouts
// and user agent. Credentials are not configured here; they come from
// application default credentials or GA4_MANAGER_TOKEN.
type NetworkConfig struct {
	APIBaseURL        string  `toml:"api_base_url"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
	ConnectTimeout    string  `toml:"connect_timeout"`
	DataTimeout       string  `toml:"data_timeout"`
	UserAgent         string  `toml:"user_agent"`
}

// LoggingConfig controls log output behavior.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// MetricsConfig controls the Prometheus textfile export written after each
// run. An empty Textfile disables the export.
type MetricsConfig struct {
	Textfile string `toml:"textfile"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to zero value".
type CLIOverrides struct {
	ConfigPath  string  // --config flag (empty = use default)
	DesiredFile *string // --desired flag
	StorePath   *string // --store flag
	Concurrency *int    // --concurrency flag
}

// RetryBackoffDuration returns the parsed retry_backoff. Validate has
// already rejected unparsable values, so parse errors fall back to zero.
func (e *EngineConfig) RetryBackoffDuration() time.Duration {
	return parseDurationOrZero(e.RetryBackoff)
}

// ConnectTimeoutDuration returns the parsed connect_timeout.
func (n *NetworkConfig) ConnectTimeoutDuration() time.Duration {
	return parseDurationOrZero(n.ConnectTimeout)
}

// DataTimeoutDuration returns the parsed data_timeout.
func (n *NetworkConfig) DataTimeoutDuration() time.Duration {
	return parseDurationOrZero(n.DataTimeout)
}

func parseDurationOrZero(s string) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0
	}

	return d
}
