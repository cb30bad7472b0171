package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ObservedReader reads the current state of the remote system, loading only
// the collections covered by scopes.
type ObservedReader interface {
	ReadState(ctx context.Context, scopes []Scope) (*Snapshot, error)
}

// DesiredReader reads the declarative desired state. MutationScopes is valid
// after ParseState returned successfully.
type DesiredReader interface {
	ParseState(ctx context.Context) (*Snapshot, error)
	MutationScopes() []Scope
}

// EngineConfig bundles planner and executor settings.
type EngineConfig struct {
	Executor     ExecutorConfig
	IgnoreFields []string
	Registry     *Registry
}

// Result is what a reconciliation run reports back to its caller. A
// non-zero Failure count means an unhealthy run even though Reconcile
// returned no error.
type Result struct {
	RunID           string
	Success         int
	Failure         int
	TotalOperations int
	NoOps           int
	Elapsed         time.Duration
}

// PlanResult is a computed plan together with its inputs, for dry runs.
type PlanResult struct {
	RunID     string
	StartedAt time.Time
	Plan      Plan
	Scopes    []Scope
	Observed  Expanded
	Desired   Expanded
}

// Engine wires reading, expansion, planning and execution into one run.
type Engine struct {
	registry *Registry
	planner  *Planner
	executor *Executor
	logger   *slog.Logger
}

// NewEngine creates an engine.
func NewEngine(cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	registry := cfg.Registry
	if registry == nil {
		registry = DefaultRegistry()
	}

	return &Engine{
		registry: registry,
		planner:  NewPlanner(cfg.IgnoreFields, logger),
		executor: NewExecutor(cfg.Executor, registry, logger),
		logger:   logger,
	}
}

// Plan reads both states and builds the plan without executing anything.
// Structural errors (unreadable sources, id collisions, unknown kinds) are
// returned. A desired state that activates no scope yields an empty plan
// and never touches the observed side.
func (e *Engine) Plan(ctx context.Context, observed ObservedReader, desired DesiredReader, reporter Reporter) (*PlanResult, error) {
	if reporter == nil {
		reporter = NopReporter{}
	}

	res := &PlanResult{RunID: uuid.New().String(), StartedAt: time.Now(), Plan: Plan{}}
	logger := e.logger.With(slog.String("run_id", res.RunID))

	desiredSnap, err := desired.ParseState(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading desired state: %w", err)
	}

	res.Scopes = desired.MutationScopes()
	if len(res.Scopes) == 0 {
		logger.Info("engine: no work scopes detected")
		return res, nil
	}

	logger.Debug("engine: scopes active", slog.Int("scopes", len(res.Scopes)))

	observedSnap, err := observed.ReadState(ctx, res.Scopes)
	if err != nil {
		return nil, fmt.Errorf("reading observed state: %w", err)
	}

	active := NewScopeSet(res.Scopes...)

	res.Observed, err = Expand(observedSnap, active, e.registry)
	if err != nil {
		return nil, fmt.Errorf("expanding observed state: %w", err)
	}

	res.Desired, err = Expand(desiredSnap, active, e.registry)
	if err != nil {
		return nil, fmt.Errorf("expanding desired state: %w", err)
	}

	res.Plan = e.planner.Build(res.Observed, res.Desired, reporter)

	return res, nil
}

// Reconcile plans and executes one run. It returns an error only for
// structural problems detected before any mutation; operation failures are
// counted in the Result.
func (e *Engine) Reconcile(
	ctx context.Context,
	observed ObservedReader,
	desired DesiredReader,
	resolver Resolver,
	reporter Reporter,
) (Result, error) {
	if reporter == nil {
		reporter = NopReporter{}
	}

	planned, err := e.Plan(ctx, observed, desired, reporter)
	if err != nil {
		return Result{}, err
	}

	return e.Apply(ctx, planned, resolver, reporter)
}

// Apply executes a previously computed plan and emits the summary.
func (e *Engine) Apply(ctx context.Context, planned *PlanResult, resolver Resolver, reporter Reporter) (Result, error) {
	if reporter == nil {
		reporter = NopReporter{}
	}

	summary, err := e.executor.Execute(ctx, planned.Plan, resolver, reporter)
	if err != nil {
		return Result{}, err
	}

	// Elapsed covers the whole run, reads and planning included.
	summary.RunID = planned.RunID
	if !planned.StartedAt.IsZero() {
		summary.Elapsed = time.Since(planned.StartedAt)
	}

	reporter.Summary(summary)

	return Result{
		RunID:           planned.RunID,
		Success:         summary.Success,
		Failure:         summary.Failure,
		TotalOperations: len(planned.Plan),
		NoOps:           countNoOps(planned),
		Elapsed:         summary.Elapsed,
	}, nil
}

// countNoOps derives the number of suppressed modifies: ids present on
// both sides that did not make it into the plan.
func countNoOps(planned *PlanResult) int {
	n := 0

	for id := range planned.Desired {
		if _, both := planned.Observed[id]; !both {
			continue
		}

		if _, inPlan := planned.Plan[id]; !inPlan {
			n++
		}
	}

	return n
}
