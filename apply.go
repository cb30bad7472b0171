package main

import (
	"github.com/spf13/cobra"
)

func newApplyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "apply",
		Short: "Converge properties to the desired-state document",
		Long: `Plan as "plan" does, then execute every operation. Operations run in
parallel; transient API errors are retried. The command exits 1 when any
operation failed, after all of them have been attempted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
			defer stop()

			_, err := newRunner(cc, cmd.OutOrStdout()).run(ctx, cc.Cfg, true)

			return err
		},
	}
}
