package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/dendrascience/shotfs/catalog"
	"github.com/dendrascience/shotfs/crawler"
	"github.com/dendrascience/shotfs/datadir"
	"github.com/dendrascience/shotfs/internal/clock"
	"github.com/dendrascience/shotfs/internal/config"
	"github.com/dendrascience/shotfs/internal/logger"
	"github.com/dendrascience/shotfs/internal/metrics"
	"github.com/dendrascience/shotfs/internal/stats"
	"github.com/dendrascience/shotfs/internal/worker"
	"github.com/dendrascience/shotfs/photographer"
	"github.com/dendrascience/shotfs/version"
)

// incomingMaxAge is how old an unfinished write in the data directory
// must be before startup removes it.
const incomingMaxAge = time.Hour

type runOptions struct {
	crawlers          int
	photographers     int
	seedFile          string
	mountpoint        string
	stayAtDomain      bool
	ignoreFoundURLs   bool
	respectRobotsTxt  bool
	stopIfIdle        int
	viewportWidth     int
	viewportHeight    int
	viewportMaxHeight int
	metricsAddr       string
	setupCatalog      bool
	clearCatalog      bool
	clearDataDir      bool
}

// NewRunCmd creates the run subcommand, which starts the crawler and
// photographer pools and optionally mounts the filesystem alongside them.
func NewRunCmd(g *globalOptions) *cobra.Command {
	o := &runOptions{}

	cmd := &cobra.Command{
		Use:   "run [SEED_FILE] [MOUNTPOINT]",
		Short: "Crawl, capture and optionally mount the filesystem",
		Long: `Start the crawler and photographer workers.

SEED_FILE is consumed from the top, one URL per line, before the crawlers
fall back to URLs discovered while crawling. When MOUNTPOINT is given the
filesystem is mounted there for as long as the workers run.

Workers stop after finishing their current page on SIGINT or SIGTERM, or
once nothing has been crawled or captured for --stop-if-idle minutes.`,
		Args: cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) > 0 {
				o.seedFile = args[0]
			}
			if len(args) > 1 {
				o.mountpoint = args[1]
			}
			return runRun(cmd, g, o)
		},
	}

	o.bind(cmd.Flags())

	return cmd
}

func (o *runOptions) bind(f *pflag.FlagSet) {
	f.IntVar(&o.crawlers, "crawlers", 0, "Number of crawler workers")
	f.IntVar(&o.photographers, "photographers", 0, "Number of photographer workers")
	f.BoolVar(&o.stayAtDomain, "stay-at-domain", false, "Only follow links to the domain they were found on")
	f.BoolVar(&o.ignoreFoundURLs, "ignore-found-urls", false, "Only crawl the seed file, do not follow links")
	f.BoolVar(&o.respectRobotsTxt, "respect-robots-txt", false, "Skip pages disallowed by the site's robots.txt")
	f.IntVar(&o.stopIfIdle, "stop-if-idle", 0, "Stop after this many idle minutes (0 runs forever)")
	f.IntVar(&o.viewportWidth, "viewport-width", 0, "Width of the browser viewport in pixels")
	f.IntVar(&o.viewportHeight, "viewport-height", 0, "Fixed screenshot height in pixels (default: full page)")
	f.IntVar(&o.viewportMaxHeight, "viewport-max-height", 0, "Maximum full page screenshot height in pixels")
	f.StringVar(&o.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	f.BoolVar(&o.setupCatalog, "setup", false, "Create the catalog collections before starting")
	f.BoolVar(&o.clearCatalog, "clear-catalog", false, "Drop and recreate the catalog collections before starting")
	f.BoolVar(&o.clearDataDir, "clear-data-dir", false, "Remove every stored capture before starting")
}

func (o *runOptions) apply(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		f := cmd.Flags()
		if f.Changed("crawlers") {
			cfg.Crawler.Workers = o.crawlers
		}
		if f.Changed("photographers") {
			cfg.Photographer.Workers = o.photographers
		}
		if o.seedFile != "" {
			cfg.Crawler.SeedFile = o.seedFile
		}
		if o.mountpoint != "" {
			cfg.Mount.Mountpoint = o.mountpoint
		}
		if o.stayAtDomain {
			cfg.Crawler.StayAtDomain = true
		}
		if o.ignoreFoundURLs {
			cfg.Crawler.IgnoreFoundURLs = true
		}
		if o.respectRobotsTxt {
			cfg.Crawler.RespectRobotsTxt = true
		}
		if f.Changed("stop-if-idle") {
			cfg.StopIfIdle = durationMinutes(o.stopIfIdle)
		}
		if f.Changed("viewport-width") {
			cfg.Photographer.ViewportWidth = o.viewportWidth
		}
		if f.Changed("viewport-height") {
			cfg.Photographer.ViewportHeight = o.viewportHeight
		}
		if f.Changed("viewport-max-height") {
			cfg.Photographer.ViewportMaxHeight = o.viewportMaxHeight
		}
		if o.metricsAddr != "" {
			cfg.Metrics.Addr = o.metricsAddr
		}
	}
}

func runRun(cmd *cobra.Command, g *globalOptions, o *runOptions) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := g.open(ctx, cmd.Flags(), o.apply(cmd))
	if err != nil {
		return err
	}
	defer e.log.Sync()
	cfg, log := e.cfg, e.log

	log.Info("shotfs starting", logger.String("version", version.GetFullVersion()))

	cadence, err := cfg.Cadence()
	if err != nil {
		return err
	}
	if err := checkMountpoint(cfg.DataDir, cfg.Mount.Mountpoint); err != nil {
		return err
	}

	if err := prepareCatalog(ctx, e.catalog, o, log); err != nil {
		return err
	}
	store, err := prepareDataDir(cfg.DataDir, o.clearDataDir, log)
	if err != nil {
		return err
	}

	var seeds *crawler.SeedFile
	if cfg.Crawler.SeedFile != "" {
		if seeds, err = crawler.OpenSeedFile(cfg.Crawler.SeedFile); err != nil {
			return err
		}
	}

	m := metrics.New()
	started := time.Now()

	var renderer *photographer.ChromeRenderer
	if cfg.Photographer.Workers > 0 {
		renderer, err = photographer.NewChromeRenderer(photographer.RendererConfig{
			Width:         cfg.Photographer.ViewportWidth,
			Height:        cfg.Photographer.ViewportHeight,
			MaxHeight:     cfg.Photographer.ViewportMaxHeight,
			UserAgent:     cfg.Crawler.UserAgent,
			ExecPath:      cfg.Photographer.ChromePath,
			RenderTimeout: cfg.Photographer.RenderTimeout,
			SettleDelay:   cfg.Photographer.SettleDelay,
		}, log)
		if err != nil {
			return err
		}
		defer renderer.Close()
	}

	reporter, err := stats.NewReporter(cfg.Stats.Schedule, e.catalog, clock.Real{}, log.With(logger.String("component", "stats")))
	if err != nil {
		return err
	}
	reporter.Start()
	defer reporter.Stop()

	log.Info("Starting workers",
		logger.String("refresh_rate", cadence.Tag()),
		logger.Int("crawlers", cfg.Crawler.Workers),
		logger.Int("photographers", cfg.Photographer.Workers),
		logger.Bool("stay_at_domain", cfg.Crawler.StayAtDomain),
		logger.Bool("ignore_found_urls", cfg.Crawler.IgnoreFoundURLs),
		logger.Bool("respect_robots_txt", cfg.Crawler.RespectRobotsTxt),
		logger.Time("started", started),
	)
	sup := worker.New(ctx, worker.Params{
		Logger:     log,
		StopIfIdle: cfg.StopIfIdle,
		Backoff:    cfg.Catalog.Backoff,
	})

	fetcher := crawler.NewFetcher(crawler.FetcherConfig{
		UserAgent:         cfg.Crawler.UserAgent,
		Timeout:           cfg.Crawler.Timeout,
		RequestsPerSecond: cfg.Crawler.RequestsPerSecond,
		RespectRobotsTxt:  cfg.Crawler.RespectRobotsTxt,
	}, log)
	sup.Go("crawler", cfg.Crawler.Workers, cfg.Crawler.IdlePause, func(int) worker.Ticker {
		return crawler.NewWorker(crawler.Params{
			Frontier:        e.catalog,
			Fetcher:         fetcher,
			Seeds:           seeds,
			StayAtDomain:    cfg.Crawler.StayAtDomain,
			IgnoreFoundURLs: cfg.Crawler.IgnoreFoundURLs,
			Logger:          log.With(logger.String("component", "crawler")),
			Metrics:         m,
		})
	})
	sup.Go("photographer", cfg.Photographer.Workers, cfg.Photographer.IdlePause, func(int) worker.Ticker {
		return photographer.NewWorker(photographer.Params{
			Checkout:  e.catalog,
			Blobs:     store,
			Renderer:  renderer,
			Cadence:   cadence,
			Workers:   cfg.Photographer.Workers,
			MaxJitter: cfg.Photographer.MaxJitter,
			Logger:    log.With(logger.String("component", "photographer")),
			Metrics:   m,
		})
	})

	// The filesystem and the metrics endpoint live exactly as long as the
	// workers.
	servCtx, cancelServ := context.WithCancel(ctx)
	defer cancelServ()
	services, servCtx := errgroup.WithContext(servCtx)
	if cfg.Metrics.Addr != "" {
		services.Go(func() error {
			return metrics.Serve(servCtx, cfg.Metrics.Addr, m, log)
		})
	}
	if cfg.Mount.Mountpoint != "" {
		fsys := newFilesystem(e.catalog, store, cadence, cfg, m, log, started)
		services.Go(func() error {
			return serveFilesystem(servCtx, cfg.Mount.Mountpoint, fsys, log)
		})
	}

	werr := sup.Wait()
	if cause := sup.Cause(); errors.Is(cause, worker.ErrIdle) {
		log.Info("Workers were idle, shutting down", logger.Duration("stop_if_idle", cfg.StopIfIdle))
	}
	cancelServ()
	serr := services.Wait()

	log.Info("shotfs stopped")
	return errors.Join(werr, serr)
}

func prepareCatalog(ctx context.Context, cat catalog.Catalog, o *runOptions, log logger.Logger) error {
	if o.clearCatalog {
		log.Info("Clearing catalog")
		if err := cat.Clear(ctx); err != nil {
			return fmt.Errorf("failed to clear catalog: %w", err)
		}
	}
	if o.setupCatalog || o.clearCatalog {
		if err := cat.Setup(ctx); err != nil {
			return fmt.Errorf("failed to set up catalog: %w", err)
		}
	}
	return nil
}

func prepareDataDir(root string, clear bool, log logger.Logger) (*datadir.Store, error) {
	if clear {
		log.Info("Clearing data directory", logger.String("path", root))
		if err := os.RemoveAll(root); err != nil {
			return nil, fmt.Errorf("failed to clear data directory: %w", err)
		}
	}
	store, err := datadir.New(root)
	if err != nil {
		return nil, err
	}
	if n, err := store.Sweep(incomingMaxAge, time.Now()); err != nil {
		log.Warn("Failed to sweep unfinished writes", logger.Error(err))
	} else if n > 0 {
		log.Info("Removed unfinished writes", logger.Int("count", n))
	}
	return store, nil
}
