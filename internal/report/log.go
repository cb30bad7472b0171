package report

import (
	"context"
	"log/slog"

	"github.com/optimics/ga4-manager/internal/reconcile"
)

// Log turns progress events into slog records. Retries log at warn,
// failures at error, and the rest at debug.
type Log struct {
	logger *slog.Logger
}

// NewLog returns a log reporter. A nil logger means slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}

	return &Log{logger: logger}
}

// Progress implements reconcile.Reporter.
func (l *Log) Progress(op *reconcile.Operation, status reconcile.Status, msg string) {
	level := slog.LevelDebug

	switch status {
	case reconcile.StatusRetry:
		level = slog.LevelWarn
	case reconcile.StatusFailure:
		level = slog.LevelError
	}

	attrs := []slog.Attr{
		slog.String("id", op.ID),
		slog.String("mode", string(op.Mode)),
		slog.String("kind", op.Kind.String()),
		slog.String("status", string(status)),
	}

	if op.Retried > 0 {
		attrs = append(attrs, slog.Int("retried", op.Retried))
	}

	if msg != "" {
		attrs = append(attrs, slog.String("detail", msg))
	}

	l.logger.LogAttrs(context.Background(), level, "operation "+string(status), attrs...)
}

// Summary implements reconcile.Reporter.
func (l *Log) Summary(s reconcile.Summary) {
	l.logger.Info("run finished",
		slog.String("run_id", s.RunID),
		slog.Int("success", s.Success),
		slog.Int("failure", s.Failure),
		slog.Int("total", s.Total),
		slog.Duration("elapsed", s.Elapsed),
	)
}
