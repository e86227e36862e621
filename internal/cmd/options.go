package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/dendrascience/shotfs/catalog"
	"github.com/dendrascience/shotfs/internal/clock"
	"github.com/dendrascience/shotfs/internal/config"
	"github.com/dendrascience/shotfs/internal/logger"
)

// globalOptions are the persistent flags. Flags override the config file
// and the environment, but only when given explicitly.
type globalOptions struct {
	configPath  string
	refreshRate string
	dataDir     string
	backend     string
	esURL       string
	indexPrefix string
	logLevel    string
	debug       bool
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVarP(&o.configPath, "config", "c", "", "Path to YAML config file (default $SHOTFS_CONFIG)")
	f.StringVar(&o.refreshRate, "refresh-rate", "", "How often pages are captured: hour, day or minute")
	f.StringVar(&o.dataDir, "data-dir", "", "Directory captures are stored in")
	f.StringVar(&o.backend, "catalog", "", "Catalog backend: elasticsearch or memory")
	f.StringVar(&o.esURL, "elasticsearch-url", "", "Elasticsearch URL")
	f.StringVar(&o.indexPrefix, "index-prefix", "", "Prefix for the catalog index names")
	f.StringVar(&o.logLevel, "log-level", "", "Minimum log level: debug, info, warn or error")
	f.BoolVar(&o.debug, "debug", false, "Human readable debug logging")
}

// load reads the configuration and applies explicitly set flags from
// flags, which may include command local flags via overrides.
func (o *globalOptions) load(flags *pflag.FlagSet, overrides ...func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(config.GetConfigPath(o.configPath))
	if err != nil {
		return nil, err
	}

	set := func(name string, apply func()) {
		if flags.Changed(name) {
			apply()
		}
	}
	set("refresh-rate", func() { cfg.RefreshRate = o.refreshRate })
	set("data-dir", func() { cfg.DataDir = o.dataDir })
	set("catalog", func() { cfg.Catalog.Backend = o.backend })
	set("elasticsearch-url", func() { cfg.Catalog.URL = o.esURL })
	set("index-prefix", func() { cfg.Catalog.IndexPrefix = o.indexPrefix })
	set("log-level", func() { cfg.Logging.Level = o.logLevel })
	if o.debug {
		cfg.Logging.Level = "debug"
		cfg.Logging.Development = true
	}
	for _, apply := range overrides {
		apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// env is what every command needs once configuration is loaded.
type env struct {
	cfg     *config.Config
	log     logger.Logger
	catalog catalog.Catalog
}

func (o *globalOptions) open(ctx context.Context, flags *pflag.FlagSet, overrides ...func(*config.Config)) (*env, error) {
	cfg, err := o.load(flags, overrides...)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}
	cat, err := catalog.Open(ctx, cfg.Catalog, clock.Real{}, log)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, catalog: cat}, nil
}

// durationMinutes converts a minutes flag to a duration.
func durationMinutes(m int) time.Duration {
	return time.Duration(m) * time.Minute
}
