package reconcile

import "time"

// Status is a progress transition of an operation.
type Status string

// Progress statuses. Success and Failure are terminal; Retry always leads
// back to Request. NoOp is reported by the planner for suppressed modifies.
const (
	StatusRequest Status = "request"
	StatusRetry   Status = "retry"
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusNoOp    Status = "noop"
)

// Terminal reports whether s ends an operation's lifecycle.
func (s Status) Terminal() bool {
	return s == StatusSuccess || s == StatusFailure
}

// Summary is the outcome of one plan execution.
type Summary struct {
	RunID   string
	Success int
	Failure int
	Total   int
	Elapsed time.Duration
}

// Succeeded reports whether no operation failed.
func (s Summary) Succeeded() bool {
	return s.Failure == 0
}

// Reporter receives progress events and the final summary. It is a pure
// sink: the engine owns all counting. Implementations must be safe for
// concurrent use because workers report in parallel.
type Reporter interface {
	Progress(op *Operation, status Status, msg string)
	Summary(s Summary)
}

// NopReporter discards everything.
type NopReporter struct{}

// Progress implements Reporter.
func (NopReporter) Progress(*Operation, Status, string) {}

// Summary implements Reporter.
func (NopReporter) Summary(Summary) {}

// MultiReporter fans events out to several reporters in order.
type MultiReporter []Reporter

// Progress implements Reporter.
func (m MultiReporter) Progress(op *Operation, status Status, msg string) {
	for _, r := range m {
		r.Progress(op, status, msg)
	}
}

// Summary implements Reporter.
func (m MultiReporter) Summary(s Summary) {
	for _, r := range m {
		r.Summary(s)
	}
}
