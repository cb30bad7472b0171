// Package report provides reconcile.Reporter sinks: a human-readable
// console, structured log records, and Prometheus metrics.
package report

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/mattn/go-isatty"

	"github.com/optimics/ga4-manager/internal/reconcile"
)

// ANSI colour codes for status tags.
const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiCyan   = "\x1b[36m"
	ansiDim    = "\x1b[2m"
)

var statusColors = map[reconcile.Status]string{
	reconcile.StatusRequest: ansiCyan,
	reconcile.StatusRetry:   ansiYellow,
	reconcile.StatusSuccess: ansiGreen,
	reconcile.StatusFailure: ansiRed,
	reconcile.StatusNoOp:    ansiDim,
}

// Console writes one line per progress event and the run summary.
// Safe for concurrent use.
type Console struct {
	mu    sync.Mutex
	w     io.Writer
	color bool
	// quiet hides request and noop lines.
	quiet bool
}

// NewConsole returns a console reporter on w. Status tags are coloured
// only when w is a terminal.
func NewConsole(w io.Writer, quiet bool) *Console {
	return &Console{w: w, color: isTerminal(w), quiet: quiet}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Progress implements reconcile.Reporter.
func (c *Console) Progress(op *reconcile.Operation, status reconcile.Status, msg string) {
	if c.quiet && (status == reconcile.StatusRequest || status == reconcile.StatusNoOp) {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	line := fmt.Sprintf("%s %s %s", c.tag(status), op.Mode, op.ID)
	if op.UIRef != "" {
		line += " (" + op.UIRef + ")"
	}

	if msg != "" {
		line += ": " + msg
	}

	fmt.Fprintln(c.w, line)
}

// Summary implements reconcile.Reporter.
func (c *Console) Summary(s reconcile.Summary) {
	c.mu.Lock()
	defer c.mu.Unlock()

	WriteSummary(c.w, s)
}

func (c *Console) tag(status reconcile.Status) string {
	tag := "[" + string(status) + "]"
	if !c.color {
		return tag
	}

	return statusColors[status] + tag + ansiReset
}

// WriteSummary writes the end-of-run block.
func WriteSummary(w io.Writer, s reconcile.Summary) {
	outcome := "successfully"
	if !s.Succeeded() {
		outcome = "failed"
	}

	fmt.Fprintf(w, "Plan finished %s after %.1f seconds\n", outcome, s.Elapsed.Seconds())
	fmt.Fprintf(w, "* Failure: %d\n", s.Failure)
	fmt.Fprintf(w, "* Success: %d\n", s.Success)
}

// WritePlan prints each planned operation in id order with its field
// changes, or a note that there is nothing to do.
func WritePlan(w io.Writer, plan reconcile.Plan) {
	if len(plan) == 0 {
		fmt.Fprintln(w, " Nothing to do")
		return
	}

	for _, id := range plan.IDs() {
		op := plan[id]
		fmt.Fprintf(w, "* %s %s\n", op.Mode, id)

		for _, ch := range op.Diff {
			fmt.Fprintf(w, "    %s\n", ch)
		}
	}

	counts := plan.Counts()
	fmt.Fprintf(w, "%d to create, %d to modify, %d to dispose\n",
		counts[reconcile.ModeCreate], counts[reconcile.ModeModify], counts[reconcile.ModeDispose])
}
