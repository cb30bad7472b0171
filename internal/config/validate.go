package config

import (
	"errors"
	"fmt"
	"net/url"
	"time"
)

// Validation range constants.
const (
	minConcurrency       = 1
	maxConcurrency       = 64
	minMaxRetries        = 0
	maxMaxRetries        = 10
	maxRetryBackoff      = time.Minute
	maxRequestsPerSecond = 100
	minConnectTimeout    = 1 * time.Second
	minDataTimeout       = 5 * time.Second
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so users
// see a complete report and can fix all issues in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateEngine(&cfg.Engine)...)
	errs = append(errs, validateSource(&cfg.Source)...)
	errs = append(errs, validateNetwork(&cfg.Network)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

func validateEngine(e *EngineConfig) []error {
	var errs []error

	if e.Concurrency < minConcurrency || e.Concurrency > maxConcurrency {
		errs = append(errs, fmt.Errorf("engine.concurrency: must be between %d and %d, got %d",
			minConcurrency, maxConcurrency, e.Concurrency))
	}

	if e.MaxRetries < minMaxRetries || e.MaxRetries > maxMaxRetries {
		errs = append(errs, fmt.Errorf("engine.max_retries: must be between %d and %d, got %d",
			minMaxRetries, maxMaxRetries, e.MaxRetries))
	}

	d, err := time.ParseDuration(e.RetryBackoff)

	switch {
	case err != nil:
		errs = append(errs, fmt.Errorf("engine.retry_backoff: invalid duration %q: %w", e.RetryBackoff, err))
	case d < 0 || d > maxRetryBackoff:
		errs = append(errs, fmt.Errorf("engine.retry_backoff: must be between 0s and %s, got %s", maxRetryBackoff, d))
	}

	for _, f := range e.IgnoreFields {
		if f == "" {
			errs = append(errs, errors.New("engine.ignore_fields: entries must not be empty"))
			break
		}
	}

	return errs
}

func validateSource(s *SourceConfig) []error {
	if s.DesiredFile == "" {
		return []error{errors.New("source.desired_file: must not be empty")}
	}

	return nil
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	u, err := url.Parse(n.APIBaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("network.api_base_url: must be an absolute URL, got %q", n.APIBaseURL))
	}

	if n.RequestsPerSecond <= 0 || n.RequestsPerSecond > maxRequestsPerSecond {
		errs = append(errs, fmt.Errorf("network.requests_per_second: must be in (0, %d], got %g",
			maxRequestsPerSecond, n.RequestsPerSecond))
	}

	errs = append(errs, validateDurationMin("network.connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("network.data_timeout", n.DataTimeout, minDataTimeout)...)

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)
	errs = append(errs, validateLogFormat(l.LogFormat)...)

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

func validateLogFormat(format string) []error {
	switch format {
	case "auto", "text", "json":
		return nil
	default:
		return []error{fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", format)}
	}
}
