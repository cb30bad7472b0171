package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/optimics/ga4-manager/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// errRunFailed marks a run that completed but had failed operations. main
// exits 1 without printing it again.
var errRunFailed = errors.New("one or more operations failed")

// skipConfigAnnotation marks commands that must work without a valid
// config (for example to report what is wrong with it).
const skipConfigAnnotation = "skipConfig"

// CLIFlags holds the persistent flags, bound in newRootCmd.
type CLIFlags struct {
	ConfigPath  string
	DesiredFile string
	StorePath   string
	Concurrency int
	JSON        bool
	Verbose     bool
	Quiet       bool
}

// CLIContext is what PersistentPreRunE hands to every subcommand through
// the command context.
type CLIContext struct {
	Flags  CLIFlags
	Logger *slog.Logger
	// Cfg is nil for commands annotated with skipConfigAnnotation.
	Cfg *config.Resolved
}

type cliContextKey struct{}

func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// mustCLIContext returns the CLIContext installed by the root pre-run. A
// missing context is a wiring bug, hence the panic.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc, ok := ctx.Value(cliContextKey{}).(*CLIContext)
	if !ok {
		panic("CLIContext missing from command context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "ga4-manager",
		Short: "Declarative GA4 property configuration",
		Long: `Reconciles Google Analytics 4 properties against a YAML document:
custom dimensions, custom metrics and conversion events are created,
updated or archived until the properties match what the document declares.`,
		Version: version,
		// Silence Cobra's default error/usage printing; main handles it.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cc := &CLIContext{Flags: flags}

			if cmd.Annotations[skipConfigAnnotation] == "" {
				resolved, err := loadConfig(cmd, flags)
				if err != nil {
					return err
				}

				cc.Cfg = resolved
			}

			cc.Logger = buildLogger(cc.Cfg, flags)
			cmd.SetContext(withCLIContext(cmd.Context(), cc))

			return nil
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.ConfigPath, "config", "", "config file path")
	pf.StringVar(&flags.DesiredFile, "desired", "", "desired-state document (YAML)")
	pf.StringVar(&flags.StorePath, "store", "", "use the SQLite sandbox at this path instead of the Admin API")
	pf.IntVar(&flags.Concurrency, "concurrency", 0, "number of parallel operations")
	pf.BoolVar(&flags.JSON, "json", false, "output in JSON format")
	pf.BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	pf.BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newApplyCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newTriggerCmd())
	cmd.AddCommand(newStoreCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain. Only flags the user actually set override the file.
func loadConfig(cmd *cobra.Command, flags CLIFlags) (*config.Resolved, error) {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if cmd.Flags().Changed("desired") {
		cli.DesiredFile = &flags.DesiredFile
	}

	if cmd.Flags().Changed("store") {
		cli.StorePath = &flags.StorePath
	}

	if cmd.Flags().Changed("concurrency") {
		cli.Concurrency = &flags.Concurrency
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	return resolved, nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. Config-file log level provides the baseline; --verbose and
// --quiet override it because CLI flags always win.
func buildLogger(cfg *config.Resolved, flags CLIFlags) *slog.Logger {
	level := slog.LevelInfo
	format := "auto"

	if cfg != nil {
		switch cfg.Logging.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		}

		format = cfg.Logging.LogFormat
	}

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}

	if format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}

	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
