package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dendrascience/shotfs/crawler"
	"github.com/dendrascience/shotfs/internal/logger"
)

// NewSeedCmd creates and returns the seed subcommand for the shotfs CLI.
// It queues every URL of a file for crawling without consuming the file.
func NewSeedCmd(g *globalOptions) *cobra.Command {
	var batchSize int

	cmd := &cobra.Command{
		Use:   "seed FILE",
		Short: "Queue URLs from a file for crawling",
		Long: `Queue the URLs in FILE, one per line, for crawling.

Blank lines and lines starting with # are skipped. URLs that have already
been crawled are not queued again. Unlike the seed file given to "run",
FILE is left untouched.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.open(cmd.Context(), cmd.Flags())
			if err != nil {
				return err
			}
			defer e.log.Sync()

			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			urls, invalid, err := crawler.ParseSeeds(f)
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}
			for _, line := range invalid {
				e.log.Warn("Skipping invalid URL", logger.String("line", line))
			}

			if batchSize <= 0 {
				batchSize = max(1, len(urls))
			}
			queued := 0
			for start := 0; start < len(urls); start += batchSize {
				end := min(start+batchSize, len(urls))
				n, err := e.catalog.EnqueueUncrawled(cmd.Context(), urls[start:end])
				queued += n
				if err != nil {
					return fmt.Errorf("failed to queue urls: %w", err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Queued %d of %d URLs (%d invalid)\n", queued, len(urls), len(invalid))
			return nil
		},
	}

	cmd.Flags().IntVar(&batchSize, "batch-size", 500, "URLs per catalog request")

	return cmd
}
