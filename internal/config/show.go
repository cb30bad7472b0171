package config

import (
	"fmt"
	"io"
	"strings"
)

// RenderEffective writes the resolved configuration as an annotated TOML
// summary to w. This powers the "config show" command.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	if r.Path != "" {
		ew.printf("# Effective configuration (file: %s)\n\n", r.Path)
	} else {
		ew.printf("# Effective configuration (defaults)\n\n")
	}

	ew.printf("[engine]\n")
	ew.printf("  concurrency   = %d\n", r.Engine.Concurrency)
	ew.printf("  max_retries   = %d\n", r.Engine.MaxRetries)
	ew.printf("  retry_backoff = %q\n", r.Engine.RetryBackoff)
	ew.printf("  ignore_fields = [%s]\n\n", joinQuoted(r.Engine.IgnoreFields))

	ew.printf("[source]\n")
	ew.printf("  desired_file = %q\n", r.Source.DesiredFile)

	if r.Source.StorePath != "" {
		ew.printf("  store_path   = %q\n", r.Source.StorePath)
	}

	ew.printf("\n[network]\n")
	ew.printf("  api_base_url        = %q\n", r.Network.APIBaseURL)
	ew.printf("  requests_per_second = %g\n", r.Network.RequestsPerSecond)
	ew.printf("  connect_timeout     = %q\n", r.Network.ConnectTimeout)
	ew.printf("  data_timeout        = %q\n", r.Network.DataTimeout)

	if r.Network.UserAgent != "" {
		ew.printf("  user_agent          = %q\n", r.Network.UserAgent)
	}

	ew.printf("\n[logging]\n")
	ew.printf("  log_level  = %q\n", r.Logging.LogLevel)
	ew.printf("  log_format = %q\n", r.Logging.LogFormat)

	if r.Metrics.Textfile != "" {
		ew.printf("\n[metrics]\n")
		ew.printf("  textfile = %q\n", r.Metrics.Textfile)
	}

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops, so callers can chain
// printf calls without checking each one individually.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func joinQuoted(items []string) string {
	quoted := make([]string, len(items))
	for i, s := range items {
		quoted[i] = fmt.Sprintf("%q", s)
	}

	return strings.Join(quoted, ", ")
}
