package main

import (
	"github.com/spf13/cobra"
)

func newPlanCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Show what apply would change",
		Long: `Read the desired-state document and the current property state, and print
the operations needed to converge them. Nothing is changed.

Each operation is printed as "* <mode> <id>" followed by its field changes
in the form [path] "previous" -> "new".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())
			ctx, stop := shutdownContext(cmd.Context(), cc.Logger)
			defer stop()

			_, err := newRunner(cc, cmd.OutOrStdout()).run(ctx, cc.Cfg, false)

			return err
		},
	}
}
