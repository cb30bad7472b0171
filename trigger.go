package main

import (
	"github.com/spf13/cobra"
)

func newTriggerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "trigger",
		Short: "Make a running watch process apply now",
		Long: `Send SIGHUP to the running "watch" process so it applies immediately,
without waiting for a file change or the next interval.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipConfigAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if err := sendSIGHUP(watchPIDPath()); err != nil {
				return err
			}

			cc.Statusf("Triggered watch process\n")

			return nil
		},
	}
}
