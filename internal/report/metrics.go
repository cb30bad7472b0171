package report

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/optimics/ga4-manager/internal/reconcile"
)

const metricsNamespace = "ga4_manager"

// Metrics counts operations and runs on a private registry, so each
// process (or test) owns its series.
type Metrics struct {
	registry *prometheus.Registry

	operations *prometheus.CounterVec
	runs       *prometheus.CounterVec
	duration   prometheus.Histogram
	lastRun    prometheus.Gauge
	lastFailed prometheus.Gauge
}

// NewMetrics registers the reconcile series on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		operations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "operations_total",
				Help:      "Operation progress events by kind, mode and status.",
			},
			[]string{"kind", "mode", "status"},
		),
		runs: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "Completed reconcile runs by result.",
			},
			[]string{"result"},
		),
		duration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of reconcile runs.",
			Buckets:   prometheus.ExponentialBuckets(0.5, 2, 10),
		}),
		lastRun: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished.",
		}),
		lastFailed: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "last_run_failed_operations",
			Help:      "Failed operations in the last run.",
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Progress implements reconcile.Reporter. Request events are not counted;
// each attempt shows up as its retry or terminal status.
func (m *Metrics) Progress(op *reconcile.Operation, status reconcile.Status, _ string) {
	if status == reconcile.StatusRequest {
		return
	}

	m.operations.WithLabelValues(op.Kind.String(), string(op.Mode), string(status)).Inc()
}

// Summary implements reconcile.Reporter.
func (m *Metrics) Summary(s reconcile.Summary) {
	result := "success"
	if !s.Succeeded() {
		result = "failure"
	}

	m.runs.WithLabelValues(result).Inc()
	m.duration.Observe(s.Elapsed.Seconds())
	m.lastRun.SetToCurrentTime()
	m.lastFailed.Set(float64(s.Failure))
}

// WriteTextfile writes all series to path in the text exposition format,
// for the node exporter's textfile collector.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("report: writing metrics to %s: %w", path, err)
	}

	return nil
}
