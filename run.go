package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/optimics/ga4-manager/internal/config"
	"github.com/optimics/ga4-manager/internal/desired"
	"github.com/optimics/ga4-manager/internal/reconcile"
	"github.com/optimics/ga4-manager/internal/report"
)

// runner performs plan and apply runs for one CLI invocation. Watch mode
// reuses it across runs with a fresh config each time.
type runner struct {
	flags  CLIFlags
	logger *slog.Logger
	out    io.Writer
	// newTarget is swapped in tests.
	newTarget func(ctx context.Context, cfg *config.Resolved, logger *slog.Logger) (*Target, error)
}

func newRunner(cc *CLIContext, out io.Writer) *runner {
	return &runner{flags: cc.Flags, logger: cc.Logger, out: out, newTarget: NewTarget}
}

// run plans against the configured target and, when apply is set, executes
// the plan. A run with failed operations returns errRunFailed alongside
// the result.
func (r *runner) run(ctx context.Context, cfg *config.Resolved, apply bool) (*reconcile.Result, error) {
	if cfg.Source.DesiredFile == "" {
		return nil, fmt.Errorf("no desired-state document: set source.desired_file, %s or --desired", config.EnvDesired)
	}

	target, err := r.newTarget(ctx, cfg, r.logger)
	if err != nil {
		return nil, err
	}
	defer target.Close()

	reader := desired.NewReader(cfg.Source.DesiredFile, r.logger)
	engine := newEngine(cfg, r.logger)
	metrics := report.NewMetrics()

	reporters := reconcile.MultiReporter{report.NewLog(r.logger), metrics}
	if !r.flags.JSON {
		reporters = append(reporters, report.NewConsole(r.out, r.flags.Quiet))
	}

	statusf(r.flags.Quiet || r.flags.JSON, "Planning against %s\n", target.Name)

	planned, err := engine.Plan(ctx, target.Observed, reader, reporters)
	if err != nil {
		return nil, err
	}

	if r.flags.JSON {
		if !apply {
			return nil, writeJSON(r.out, planJSON(planned))
		}
	} else {
		report.WritePlan(r.out, planned.Plan)
	}

	if !apply {
		return nil, nil
	}

	res, err := engine.Apply(ctx, planned, target.Resolver, reporters)
	if err != nil {
		return nil, err
	}

	if path := cfg.Metrics.Textfile; path != "" {
		if err := metrics.WriteTextfile(path); err != nil {
			r.logger.Warn("metrics export failed", slog.String("error", err.Error()))
		}
	}

	if r.flags.JSON {
		if err := writeJSON(r.out, resultJSON(planned, res)); err != nil {
			return &res, err
		}
	}

	if res.Failure > 0 {
		return &res, errRunFailed
	}

	return &res, nil
}
