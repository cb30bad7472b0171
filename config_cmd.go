package main

import (
	"github.com/spf13/cobra"

	"github.com/optimics/ga4-manager/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			if cc.Flags.JSON {
				return writeJSON(cmd.OutOrStdout(), cc.Cfg)
			}

			return config.RenderEffective(cc.Cfg, cmd.OutOrStdout())
		},
	}
}
