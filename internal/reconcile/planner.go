package reconcile

import (
	"log/slog"
	"slices"
	"sort"
)

// Planner compares expanded observed and desired state and emits a Plan.
// It is pure and single-threaded; the only side effect is NoOp reporting.
type Planner struct {
	ignore []string
	logger *slog.Logger
}

// NewPlanner creates a planner. ignore lists extra top-level fields
// excluded from diffs; DefaultIgnoreFields are always excluded.
func NewPlanner(ignore []string, logger *slog.Logger) *Planner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Planner{ignore: withDefaultIgnores(ignore), logger: logger}
}

func withDefaultIgnores(extra []string) []string {
	out := slices.Clone(DefaultIgnoreFields)

	for _, f := range extra {
		if !slices.Contains(out, f) {
			out = append(out, f)
		}
	}

	return out
}

// Build classifies every id present in either map:
//
//   - missing (desired only) → Create
//   - deprecated (observed only) → Dispose, unless the entity is indeletable
//   - maintained (both) → Modify, unless the diff is empty
//
// Empty modifies are reported once as StatusNoOp and left out of the plan,
// which makes planning idempotent: with no drift the plan is empty.
func (p *Planner) Build(observed, desired Expanded, reporter Reporter) Plan {
	if reporter == nil {
		reporter = NopReporter{}
	}

	plan := make(Plan)

	var protected, noops int

	for _, id := range sortedIDs(observed) {
		obs := observed[id]
		if _, kept := desired[id]; kept {
			continue
		}

		if !obs.Deletable() {
			protected++

			p.logger.Debug("planner: skipping indeletable entity", slog.String("id", id))

			continue
		}

		plan[id] = &Operation{
			ID:       id,
			Mode:     ModeDispose,
			Kind:     obs.Kind,
			Observed: obs,
			UIRef:    obs.UIRef,
		}
	}

	for _, id := range sortedIDs(desired) {
		des := desired[id]
		obs, exists := observed[id]

		if !exists {
			plan[id] = &Operation{
				ID:      id,
				Mode:    ModeCreate,
				Kind:    des.Kind,
				Desired: des,
				UIRef:   des.UIRef,
			}

			continue
		}

		op := &Operation{
			ID:       id,
			Mode:     ModeModify,
			Kind:     des.Kind,
			Observed: obs,
			Desired:  des,
			UIRef:    preferRef(obs.UIRef, des.UIRef),
		}

		op.Diff = Diff(obs, des, p.ignore)
		if len(op.Diff) == 0 {
			noops++

			reporter.Progress(op, StatusNoOp, "")

			continue
		}

		plan[id] = op
	}

	counts := plan.Counts()
	p.logger.Info("planner: plan built",
		slog.Int("create", counts[ModeCreate]),
		slog.Int("modify", counts[ModeModify]),
		slog.Int("dispose", counts[ModeDispose]),
		slog.Int("noop", noops),
		slog.Int("protected", protected),
	)

	return plan
}

func preferRef(observed, desired string) string {
	if observed != "" {
		return observed
	}

	return desired
}

func sortedIDs(m Expanded) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	return ids
}
