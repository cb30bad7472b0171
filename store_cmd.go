package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/optimics/ga4-manager/internal/config"
	"github.com/optimics/ga4-manager/internal/desired"
	"github.com/optimics/ga4-manager/internal/store"
)

func newStoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "store",
		Short: "Manage the local SQLite sandbox",
		Long: `The sandbox stands in for the Admin API when --store (or source.store_path)
is set, so plans can be rehearsed offline. Without a configured path these
commands use the default sandbox in the data directory.`,
	}

	cmd.AddCommand(newStoreSeedCmd())
	cmd.AddCommand(newStoreShowCmd())

	return cmd
}

func newStoreSeedCmd() *cobra.Command {
	var propertiesOnly bool

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load the desired-state document into the sandbox",
		Long: `Register every property of the desired-state document in the sandbox and
insert its declared resources. Resources already present are left alone.
With --properties-only only the properties are registered, so a following
apply creates everything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			doc, err := desired.Load(cc.Cfg.Source.DesiredFile)
			if err != nil {
				return err
			}

			s, err := openSandbox(cmd.Context(), cc)
			if err != nil {
				return err
			}
			defer s.Close()

			stats, err := s.Seed(cmd.Context(), doc.Snapshot(filepath.Base(cc.Cfg.Source.DesiredFile)), propertiesOnly)
			if err != nil {
				return err
			}

			cc.Statusf("Seeded %d properties, %d resources (%d already present)\n",
				stats.Properties, stats.Resources, stats.Skipped)

			return nil
		},
	}

	cmd.Flags().BoolVar(&propertiesOnly, "properties-only", false, "register properties without their resources")

	return cmd
}

func newStoreShowCmd() *cobra.Command {
	var journal bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the sandbox contents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := mustCLIContext(cmd.Context())

			s, err := openSandbox(cmd.Context(), cc)
			if err != nil {
				return err
			}
			defer s.Close()

			if !journal {
				return s.Show(cmd.Context(), cmd.OutOrStdout())
			}

			muts, err := s.Mutations(cmd.Context())
			if err != nil {
				return err
			}

			for _, m := range muts {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %-7s  %s\n", m.At.Format("2006-01-02 15:04:05"), m.Action, m.Resource)
			}

			return nil
		},
	}

	cmd.Flags().BoolVar(&journal, "journal", false, "print the mutation journal instead")

	return cmd
}

// openSandbox opens the configured sandbox, or the default one.
func openSandbox(ctx context.Context, cc *CLIContext) (*store.Store, error) {
	path := cc.Cfg.Source.StorePath
	if path == "" {
		path = config.DefaultStorePath()
	}

	if path == "" {
		return nil, fmt.Errorf("cannot determine sandbox path: set source.store_path or --store")
	}

	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	return store.Open(ctx, path, cc.Logger)
}
