package cmd

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/dendrascience/shotfs/catalog"
	"github.com/dendrascience/shotfs/datadir"
	"github.com/dendrascience/shotfs/internal/logger"
	"github.com/dendrascience/shotfs/refresh"
)

// NewValidateCmd creates and returns the validate subcommand for the
// shotfs CLI. It checks the data directory against the photo records.
func NewValidateCmd(g *globalOptions) *cobra.Command {
	var (
		verbose bool
		repair  bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check stored captures against the catalog",
		Long: `Check the data directory against the photo records of the configured
refresh rate.

Reported problems are records whose image is missing, records whose size
differs from the stored image, and stored images no record points to.
With --repair the unreferenced images are removed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := g.open(cmd.Context(), cmd.Flags())
			if err != nil {
				return err
			}
			defer e.log.Sync()

			cadence, err := e.cfg.Cadence()
			if err != nil {
				return err
			}
			store, err := datadir.New(e.cfg.DataDir)
			if err != nil {
				return err
			}

			report, err := validateStore(cmd.Context(), e.catalog, cadence, store)
			if err != nil {
				return err
			}
			report.print(cmd.OutOrStdout(), verbose)

			if repair {
				for _, id := range report.Unreferenced {
					if err := store.Remove(id); err != nil {
						e.log.Warn("Failed to remove blob", logger.String("id", id), logger.Error(err))
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d unreferenced images\n", len(report.Unreferenced))
			}
			if !report.OK() && !repair {
				return fmt.Errorf("found %d problems", report.Problems())
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "List every problem")
	cmd.Flags().BoolVarP(&repair, "repair", "r", false, "Remove images no record points to")

	return cmd
}

// validationReport compares photo records with stored blobs.
type validationReport struct {
	Records      int
	Blobs        int
	Rendering    int
	Missing      []string
	SizeMismatch []string
	Unreferenced []string
}

func (r validationReport) Problems() int {
	return len(r.Missing) + len(r.SizeMismatch) + len(r.Unreferenced)
}

func (r validationReport) OK() bool {
	return r.Problems() == 0
}

func (r validationReport) print(w io.Writer, verbose bool) {
	fmt.Fprintf(w, "Records: %d (%d rendering)\n", r.Records, r.Rendering)
	fmt.Fprintf(w, "Stored images: %d\n", r.Blobs)
	section := func(title string, ids []string) {
		fmt.Fprintf(w, "%s: %d\n", title, len(ids))
		if verbose {
			for _, id := range ids {
				fmt.Fprintf(w, "  - %s\n", id)
			}
		}
	}
	section("Missing images", r.Missing)
	section("Size mismatches", r.SizeMismatch)
	section("Unreferenced images", r.Unreferenced)
}

// validateStore walks every directory of every bucket of every domain.
// Only the newest record per path is reachable through the filesystem, so
// the blobs of superseded duplicates count as unreferenced.
func validateStore(ctx context.Context, photos catalog.Photos, cadence refresh.Cadence, store *datadir.Store) (validationReport, error) {
	var report validationReport
	records := make(map[string]catalog.PhotoRecord)

	domains, err := photos.Domains(ctx, cadence)
	if err != nil {
		return report, err
	}
	for _, domain := range domains {
		buckets, err := photos.Buckets(ctx, domain, cadence)
		if err != nil {
			return report, err
		}
		for _, bucket := range buckets {
			loc := catalog.Location{Domain: domain, Cadence: cadence, Bucket: bucket}
			if err := collectRecords(ctx, photos, loc, "/", records); err != nil {
				return report, err
			}
		}
	}

	blobs := make(map[string]int64)
	if err := store.Walk(func(id string, size int64) error {
		blobs[id] = size
		return nil
	}); err != nil {
		return report, fmt.Errorf("failed to walk data directory: %w", err)
	}

	report.Records = len(records)
	report.Blobs = len(blobs)
	for id, rec := range records {
		size, ok := blobs[id]
		switch {
		case !ok:
			report.Missing = append(report.Missing, id)
		case rec.Loading():
			report.Rendering++
		case rec.Filesize != size:
			report.SizeMismatch = append(report.SizeMismatch, id)
		}
	}
	for id := range blobs {
		if _, ok := records[id]; !ok {
			report.Unreferenced = append(report.Unreferenced, id)
		}
	}

	slices.Sort(report.Missing)
	slices.Sort(report.SizeMismatch)
	slices.Sort(report.Unreferenced)
	return report, nil
}

func collectRecords(ctx context.Context, photos catalog.Photos, loc catalog.Location, dir string, into map[string]catalog.PhotoRecord) error {
	listing, err := photos.ListDirectory(ctx, loc, dir)
	if err != nil {
		return err
	}
	for _, f := range listing.Files {
		into[f.ID] = f
	}
	for _, sub := range listing.Directories {
		if err := collectRecords(ctx, photos, loc, dir+sub+"/", into); err != nil {
			return err
		}
	}
	return nil
}
