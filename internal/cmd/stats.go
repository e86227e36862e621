package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dendrascience/shotfs/internal/stats"
)

// NewStatsCmd creates the stats subcommand, which prints capture
// throughput for the trailing windows.
func NewStatsCmd(g *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print capture throughput",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.open(cmd.Context(), cmd.Flags())
			if err != nil {
				return err
			}
			defer e.log.Sync()

			now := time.Now()
			// A one-off report treats every window as complete.
			results, err := stats.Collect(cmd.Context(), e.catalog, now, now.Add(-24*time.Hour))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Captures finished in the last:")
			for _, t := range results {
				fmt.Fprintf(out, "  %s\n", t)
			}
			return nil
		},
	}
}
