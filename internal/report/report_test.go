package report

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optimics/ga4-manager/internal/reconcile"
)

func modifyOp() *reconcile.Operation {
	return &reconcile.Operation{
		ID:   "properties/1/customDimensions/author",
		Mode: reconcile.ModeModify,
		Kind: reconcile.KindCustomDimension,
		Diff: []reconcile.Change{{
			Op:       reconcile.ChangeReplace,
			Path:     []string{"displayName"},
			Previous: "Author",
			Value:    "Writer",
		}},
		UIRef: "ga4.yaml:7",
	}
}

func TestConsole_ProgressLines(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	c := NewConsole(&buf, false)
	c.Progress(modifyOp(), reconcile.StatusRetry, "HTTP 503")

	assert.Equal(t,
		"[retry] modify properties/1/customDimensions/author (ga4.yaml:7): HTTP 503\n",
		buf.String(), "a buffer is not a terminal, so no colour codes")
}

func TestConsole_QuietHidesRequests(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	c := NewConsole(&buf, true)
	c.Progress(modifyOp(), reconcile.StatusRequest, "")
	c.Progress(modifyOp(), reconcile.StatusNoOp, "")
	assert.Empty(t, buf.String())

	c.Progress(modifyOp(), reconcile.StatusFailure, "boom")
	assert.Contains(t, buf.String(), "[failure]")
}

func TestConsole_ConcurrentProgress(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	c := NewConsole(&buf, false)

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()
			c.Progress(modifyOp(), reconcile.StatusSuccess, "")
		}()
	}

	wg.Wait()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 20)
}

func TestWriteSummary(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	WriteSummary(&buf, reconcile.Summary{Success: 3, Failure: 1, Elapsed: 2340 * time.Millisecond})

	assert.Equal(t, "Plan finished failed after 2.3 seconds\n* Failure: 1\n* Success: 3\n", buf.String())

	buf.Reset()
	WriteSummary(&buf, reconcile.Summary{Success: 2})
	assert.Contains(t, buf.String(), "Plan finished successfully after 0.0 seconds")
}

func TestWritePlan(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	WritePlan(&buf, reconcile.Plan{})
	assert.Equal(t, " Nothing to do\n", buf.String())

	buf.Reset()

	op := modifyOp()
	WritePlan(&buf, reconcile.Plan{
		op.ID: op,
		"properties/1/customMetrics/read_time": {
			ID: "properties/1/customMetrics/read_time", Mode: reconcile.ModeCreate, Kind: reconcile.KindCustomMetric,
		},
	})

	assert.Equal(t,
		"* modify properties/1/customDimensions/author\n"+
			"    [displayName] \"Author\" -> \"Writer\"\n"+
			"* create properties/1/customMetrics/read_time\n"+
			"1 to create, 1 to modify, 0 to dispose\n",
		buf.String())
}

func TestLog_Levels(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelWarn}))
	l := NewLog(logger)

	op := modifyOp()
	l.Progress(op, reconcile.StatusRequest, "")
	l.Progress(op, reconcile.StatusSuccess, "")
	assert.Empty(t, buf.String(), "request and success log at debug")

	op.Retried = 2
	l.Progress(op, reconcile.StatusRetry, "HTTP 503")

	out := buf.String()
	assert.Contains(t, out, "level=WARN")
	assert.Contains(t, out, "retried=2")
	assert.Contains(t, out, "kind=customDimension")
	assert.Contains(t, out, `detail="HTTP 503"`)
}

func TestMetrics_CountsAndTextfile(t *testing.T) {
	t.Parallel()

	m := NewMetrics()
	op := modifyOp()

	m.Progress(op, reconcile.StatusRequest, "")
	m.Progress(op, reconcile.StatusRetry, "")
	m.Progress(op, reconcile.StatusSuccess, "")
	m.Summary(reconcile.Summary{Success: 1, Elapsed: time.Second})

	assert.InDelta(t, 1, testutil.ToFloat64(m.operations.WithLabelValues("customDimension", "modify", "retry")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.operations.WithLabelValues("customDimension", "modify", "success")), 0)
	assert.Equal(t, 2, testutil.CollectAndCount(m.operations), "request events are not counted")
	assert.InDelta(t, 1, testutil.ToFloat64(m.runs.WithLabelValues("success")), 0)

	path := filepath.Join(t.TempDir(), "ga4_manager.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "ga4_manager_operations_total")
	assert.Contains(t, string(data), "ga4_manager_run_duration_seconds_bucket")
}

func TestMultiReporter_FansOut(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer

	m := NewMetrics()
	r := reconcile.MultiReporter{NewConsole(&buf, false), m}

	r.Progress(modifyOp(), reconcile.StatusFailure, "boom")
	r.Summary(reconcile.Summary{Failure: 1})

	assert.Contains(t, buf.String(), "* Failure: 1")
	assert.InDelta(t, 1, testutil.ToFloat64(m.lastFailed), 0)
}
