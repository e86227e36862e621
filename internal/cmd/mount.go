package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/dendrascience/shotfs/catalog"
	"github.com/dendrascience/shotfs/datadir"
	"github.com/dendrascience/shotfs/internal/clock"
	"github.com/dendrascience/shotfs/internal/config"
	"github.com/dendrascience/shotfs/internal/logger"
	"github.com/dendrascience/shotfs/internal/metrics"
	"github.com/dendrascience/shotfs/mount"
	"github.com/dendrascience/shotfs/refresh"
	"github.com/dendrascience/shotfs/version"
)

// NewMountCmd creates and returns the mount subcommand for the shotfs CLI.
// It serves the filesystem without running any workers.
func NewMountCmd(g *globalOptions) *cobra.Command {
	var (
		latestTTL   time.Duration
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "mount MOUNTPOINT",
		Short: "Mount the capture filesystem",
		Long: `Mount the read-only capture filesystem at MOUNTPOINT.

The tree is /{domain}/{period}/{path}, where period is a capture bucket of
the configured refresh rate (for example 2024030514 for hourly captures)
or "latest" for the newest bucket of the domain. Captures that are still
rendering are listed with a .rendering.saas suffix.

The filesystem is unmounted on SIGINT or SIGTERM.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mountpoint := args[0]
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			e, err := g.open(ctx, cmd.Flags(), func(cfg *config.Config) {
				cfg.Mount.Mountpoint = mountpoint
				if cmd.Flags().Changed("latest-ttl") {
					cfg.Mount.LatestTTL = latestTTL
				}
				if metricsAddr != "" {
					cfg.Metrics.Addr = metricsAddr
				}
			})
			if err != nil {
				return err
			}
			defer e.log.Sync()
			return runMount(ctx, e)
		},
	}

	cmd.Flags().DurationVar(&latestTTL, "latest-ttl", 0, "How long the latest bucket of a domain is cached (default 60s)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")

	return cmd
}

func runMount(ctx context.Context, e *env) error {
	cfg, log := e.cfg, e.log
	log.Info("shotfs starting", logger.String("version", version.GetFullVersion()))

	if err := checkMountpoint(cfg.DataDir, cfg.Mount.Mountpoint); err != nil {
		return err
	}
	cadence, err := cfg.Cadence()
	if err != nil {
		return err
	}
	store, err := datadir.New(cfg.DataDir)
	if err != nil {
		return err
	}

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Addr, m, log); err != nil {
				log.Error("Metrics server failed", logger.Error(err))
			}
		}()
	}

	fsys := newFilesystem(e.catalog, store, cadence, cfg, m, log, time.Now())
	return serveFilesystem(ctx, cfg.Mount.Mountpoint, fsys, log)
}

func newFilesystem(photos catalog.Photos, store *datadir.Store, cadence refresh.Cadence, cfg *config.Config, m *metrics.Metrics, log logger.Logger, started time.Time) *mount.Filesystem {
	fsLog := log.With(logger.String("component", "fs"))
	return mount.New(mount.Params{
		Photos: photos,
		Blobs:  store,
		Latest: mount.NewLatestCache(mount.LatestCacheParams{
			Source:  photos,
			Cadence: cadence,
			TTL:     cfg.Mount.LatestTTL,
			Clock:   clock.Real{},
			Logger:  fsLog,
			Metrics: m,
		}),
		Cadence: cadence,
		Logger:  fsLog,
		Metrics: m,
		Started: started,
	})
}

func serveFilesystem(ctx context.Context, mountpoint string, fsys *mount.Filesystem, log logger.Logger) error {
	if err := os.MkdirAll(mountpoint, 0o755); err != nil {
		return fmt.Errorf("failed to create mountpoint: %w", err)
	}
	return mount.Serve(ctx, mountpoint, mount.NewFS(fsys, log), log)
}

var errMountpointOverlap = errors.New("data directory and mountpoint must not overlap")

// checkMountpoint refuses to mount over, or inside, the directory the
// captures are stored in.
func checkMountpoint(dataDir, mountpoint string) error {
	if mountpoint == "" || !pathsOverlap(dataDir, mountpoint) {
		return nil
	}
	return fmt.Errorf("%w: %s and %s", errMountpointOverlap, dataDir, mountpoint)
}

// pathsOverlap reports whether one path is, or lies inside, the other.
func pathsOverlap(path1, path2 string) bool {
	abs1, err1 := filepath.Abs(path1)
	abs2, err2 := filepath.Abs(path2)
	if err1 != nil || err2 != nil {
		return filepath.Clean(path1) == filepath.Clean(path2)
	}
	return within(abs1, abs2) || within(abs2, abs1)
}

// within reports whether child is parent or lies below it.
func within(parent, child string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
