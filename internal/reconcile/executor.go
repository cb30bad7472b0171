package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// DefaultConcurrency is the worker pool size when none is configured.
const DefaultConcurrency = 4

var errUnknownMode = errors.New("reconcile: unknown operation mode")

// ExecutorConfig tunes plan execution.
type ExecutorConfig struct {
	// Concurrency is the number of workers. Values < 1 mean
	// DefaultConcurrency.
	Concurrency int
	// MaxRetries bounds retries per operation. Zero means
	// DefaultMaxRetries; negative disables retries.
	MaxRetries int
	// RetryBackoff is the base pause before the first retry. Zero retries
	// immediately.
	RetryBackoff time.Duration
}

// Executor runs a Plan on a bounded worker pool. Operation failures are
// isolated: they are reported and counted, never propagated.
type Executor struct {
	cfg      ExecutorConfig
	registry *Registry
	policy   retryPolicy
	logger   *slog.Logger

	// sleepFunc waits between retries. Tests override it to skip delays.
	sleepFunc func(ctx context.Context, d time.Duration) error
	nowFunc   func() time.Time
}

// NewExecutor creates an executor. registry supplies the immutable field
// sets that turn a modify into a replace; nil means DefaultRegistry.
func NewExecutor(cfg ExecutorConfig, registry *Registry, logger *slog.Logger) *Executor {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = DefaultConcurrency
	}

	switch {
	case cfg.MaxRetries == 0:
		cfg.MaxRetries = DefaultMaxRetries
	case cfg.MaxRetries < 0:
		cfg.MaxRetries = 0
	}

	if registry == nil {
		registry = DefaultRegistry()
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Executor{
		cfg:       cfg,
		registry:  registry,
		policy:    retryPolicy{maxRetries: cfg.MaxRetries, base: cfg.RetryBackoff},
		logger:    logger,
		sleepFunc: timeSleep,
		nowFunc:   time.Now,
	}
}

// boundOperation pairs an operation with the mutation resolved for it.
type boundOperation struct {
	op  *Operation
	run MutationFunc
}

// Execute runs every operation of plan and returns only after all of them
// reached a terminal state. The returned error is non-nil only for
// structural problems found before execution starts (an operation whose
// kind has no table); in that case nothing has been mutated.
func (e *Executor) Execute(ctx context.Context, plan Plan, resolver Resolver, reporter Reporter) (Summary, error) {
	if reporter == nil {
		reporter = NopReporter{}
	}

	start := e.nowFunc()

	bound, err := e.bind(plan, resolver)
	if err != nil {
		return Summary{}, err
	}

	workers := min(e.cfg.Concurrency, max(len(bound), 1))

	queue := make(chan boundOperation, len(bound))
	for _, b := range bound {
		queue <- b
	}

	close(queue)

	var (
		succeeded atomic.Int32
		failed    atomic.Int32
		wg        sync.WaitGroup
	)

	e.logger.Info("executor: starting",
		slog.Int("operations", len(bound)),
		slog.Int("workers", workers),
	)

	for range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for b := range queue {
				if e.safeExecute(ctx, b, reporter) {
					succeeded.Add(1)
				} else {
					failed.Add(1)
				}
			}
		}()
	}

	wg.Wait()

	summary := Summary{
		Success: int(succeeded.Load()),
		Failure: int(failed.Load()),
		Total:   len(bound),
		Elapsed: e.nowFunc().Sub(start),
	}

	e.logger.Info("executor: done",
		slog.Int("success", summary.Success),
		slog.Int("failure", summary.Failure),
		slog.Duration("elapsed", summary.Elapsed),
	)

	return summary, nil
}

// bind resolves the mutation function of every operation up front, so an
// unresolvable kind fails the run before any remote call.
func (e *Executor) bind(plan Plan, resolver Resolver) ([]boundOperation, error) {
	ids := make([]string, 0, len(plan))
	for id := range plan {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	tables := make(map[Kind]OperationTable)
	bound := make([]boundOperation, 0, len(ids))

	for _, id := range ids {
		op := plan[id]

		table, ok := tables[op.Kind]
		if !ok {
			t, err := resolver.Table(op.Kind)
			if err != nil {
				return nil, fmt.Errorf("resolving %s: %w", id, err)
			}

			tables[op.Kind] = t
			table = t
		}

		run, err := e.mutationFor(op, table)
		if err != nil {
			return nil, fmt.Errorf("resolving %s: %w", id, err)
		}

		bound = append(bound, boundOperation{op: op, run: run})
	}

	return bound, nil
}

// mutationFor picks the table entry for op. A modify becomes a replace
// when the kind has no in-place modify or the diff touches an immutable
// field.
func (e *Executor) mutationFor(op *Operation, table OperationTable) (MutationFunc, error) {
	switch op.Mode {
	case ModeCreate:
		return table.Create, nil
	case ModeDispose:
		return table.Dispose, nil
	case ModeModify:
		if table.Modify == nil || e.registry.forcesReplace(op.Kind, op.Diff) {
			return table.replace(), nil
		}

		return table.Modify, nil
	default:
		return nil, fmt.Errorf("%w %q", errUnknownMode, op.Mode)
	}
}

// safeExecute wraps execute with panic recovery so one misbehaving
// mutation cannot take the pool down.
func (e *Executor) safeExecute(ctx context.Context, b boundOperation, reporter Reporter) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("executor: panic in operation",
				slog.String("id", b.op.ID),
				slog.Any("panic", r),
			)
			reporter.Progress(b.op, StatusFailure, fmt.Sprintf("panic: %v", r))

			ok = false
		}
	}()

	return e.execute(ctx, b, reporter)
}

// execute drives one operation through Request → (Success | Retry →
// Request | Failure). The retry is a bounded loop; Retried is owned by this
// worker for the duration.
func (e *Executor) execute(ctx context.Context, b boundOperation, reporter Reporter) bool {
	op := b.op
	target := op.Target()

	for {
		reporter.Progress(op, StatusRequest, "")

		_, err := b.run(ctx, target)
		if err == nil {
			reporter.Progress(op, StatusSuccess, "")
			return true
		}

		if !e.policy.acceptable(ctx, op, err) {
			reporter.Progress(op, StatusFailure, err.Error())
			e.logger.Error("executor: operation failed",
				slog.String("id", op.ID),
				slog.String("mode", string(op.Mode)),
				slog.Int("retried", op.Retried),
				slog.String("error", err.Error()),
			)

			return false
		}

		op.Retried++
		reporter.Progress(op, StatusRetry, fmt.Sprintf("(%d) %s", op.Retried, err.Error()))
		e.logger.Warn("executor: retrying operation",
			slog.String("id", op.ID),
			slog.Int("attempt", op.Retried),
			slog.String("error", err.Error()),
		)

		if sleepErr := e.sleepFunc(ctx, e.policy.backoff(op.Retried)); sleepErr != nil {
			reporter.Progress(op, StatusFailure, sleepErr.Error())
			return false
		}
	}
}
