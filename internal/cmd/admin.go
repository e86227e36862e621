package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSetupCmd creates the setup subcommand, which creates the catalog
// collections. Existing collections are left alone.
func NewSetupCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the catalog collections",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.open(cmd.Context(), cmd.Flags())
			if err != nil {
				return err
			}
			defer e.log.Sync()

			if err := e.catalog.Setup(cmd.Context()); err != nil {
				return fmt.Errorf("failed to set up catalog: %w", err)
			}
			e.log.Info("Catalog ready")
			return nil
		},
	}
}

// NewClearCmd creates the clear subcommand, which drops every catalog
// collection.
func NewClearCmd(g *globalOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Drop every catalog collection",
		Long: `Drop the uncrawled, crawled and photos collections with all their records.
Stored images are not touched; use "run --clear-data-dir" for those.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return fmt.Errorf("refusing to drop the catalog without --yes")
			}
			e, err := g.open(cmd.Context(), cmd.Flags())
			if err != nil {
				return err
			}
			defer e.log.Sync()

			if err := e.catalog.Clear(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear catalog: %w", err)
			}
			e.log.Info("Catalog cleared")
			return nil
		},
	}

	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Confirm dropping every record")

	return cmd
}
