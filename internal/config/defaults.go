package config

// Default values for configuration options. These represent the "layer 0"
// of the four-layer override chain.
const (
	defaultConcurrency       = 4
	defaultMaxRetries        = 3
	defaultRetryBackoff      = "500ms"
	defaultAPIBaseURL        = "https://analyticsadmin.googleapis.com/v1beta"
	defaultRequestsPerSecond = 10
	defaultConnectTimeout    = "10s"
	defaultDataTimeout       = "60s"
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
	defaultDesiredFileName   = "ga4.yaml"
)

// defaultIgnoreFields are the identity and bookkeeping fields excluded from
// diffs. Kept in sync with reconcile.DefaultIgnoreFields.
var defaultIgnoreFields = []string{"name", "uiRef"}

// DefaultConfig returns a Config populated with all default values.
// This is used both as the starting point for TOML decoding (so unset
// fields retain defaults) and as the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		Engine:  defaultEngineConfig(),
		Source:  defaultSourceConfig(),
		Network: defaultNetworkConfig(),
		Logging: defaultLoggingConfig(),
	}
}

func defaultEngineConfig() EngineConfig {
	return EngineConfig{
		Concurrency:  defaultConcurrency,
		MaxRetries:   defaultMaxRetries,
		RetryBackoff: defaultRetryBackoff,
		IgnoreFields: append([]string(nil), defaultIgnoreFields...),
	}
}

func defaultSourceConfig() SourceConfig {
	return SourceConfig{
		DesiredFile: defaultDesiredFileName,
	}
}

func defaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		APIBaseURL:        defaultAPIBaseURL,
		RequestsPerSecond: defaultRequestsPerSecond,
		ConnectTimeout:    defaultConnectTimeout,
		DataTimeout:       defaultDataTimeout,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogLevel:  defaultLogLevel,
		LogFormat: defaultLogFormat,
	}
}
