package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"testing"
)

// testLogger routes engine logs through t.Log so they show up on failure.
func testLogger(t *testing.T) *slog.Logger {
	t.Helper()

	return slog.New(slog.NewTextHandler(&testLogWriter{t: t}, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
}

// testLogWriter adapts testing.T to io.Writer for slog.
type testLogWriter struct {
	t *testing.T
}

func (w *testLogWriter) Write(p []byte) (int, error) {
	w.t.Helper()
	w.t.Log(string(p))

	return len(p), nil
}

// ---------------------------------------------------------------------------
// Recording reporter
// ---------------------------------------------------------------------------

type progressEvent struct {
	ID     string
	Status Status
	Msg    string
}

type recordingReporter struct {
	mu        sync.Mutex
	events    []progressEvent
	summaries []Summary
}

func (r *recordingReporter) Progress(op *Operation, status Status, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, progressEvent{ID: op.ID, Status: status, Msg: msg})
}

func (r *recordingReporter) Summary(s Summary) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.summaries = append(r.summaries, s)
}

// statuses returns the status sequence reported for id.
func (r *recordingReporter) statuses(id string) []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Status

	for _, ev := range r.events {
		if ev.ID == id {
			out = append(out, ev.Status)
		}
	}

	return out
}

func (r *recordingReporter) count(status Status) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := 0

	for _, ev := range r.events {
		if ev.Status == status {
			n++
		}
	}

	return n
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const testProperty = "properties/1"

func dimension(parent, param string, fields map[string]any) *Entity {
	all := map[string]any{"parameterName": param}
	for k, v := range fields {
		all[k] = v
	}

	return &Entity{
		ID:       ComposeID(parent, CollectionCustomDimensions, param),
		ParentID: parent,
		Fields:   all,
	}
}

// snapshotOf builds a single-property snapshot with the given custom
// dimensions. A nil slice leaves the collection undeclared.
func snapshotOf(parent string, dims []*Entity) *Snapshot {
	snap := NewSnapshot()
	root := &Root{ID: parent}

	if dims != nil {
		items := make(map[string]*Entity, len(dims))
		for _, d := range dims {
			items[d.ID] = d
		}

		root.SetCollection(CollectionCustomDimensions, items)
	}

	snap.AddRoot(root)

	return snap
}

func expandAll(t *testing.T, snap *Snapshot) Expanded {
	t.Helper()

	exp, err := Expand(snap, NewScopeSet(ScopesOf(snap)...), DefaultRegistry())
	if err != nil {
		t.Fatalf("expand: %v", err)
	}

	return exp
}

// stubReader serves a fixed snapshot for both reader roles.
type stubReader struct {
	snap   *Snapshot
	scopes []Scope
	err    error
	reads  int
}

func (s *stubReader) ReadState(_ context.Context, _ []Scope) (*Snapshot, error) {
	s.reads++
	return s.snap, s.err
}

func (s *stubReader) ParseState(_ context.Context) (*Snapshot, error) {
	if s.err != nil {
		return nil, s.err
	}

	s.scopes = ScopesOf(s.snap)

	return s.snap, nil
}

func (s *stubReader) MutationScopes() []Scope {
	return s.scopes
}
