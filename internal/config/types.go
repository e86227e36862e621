package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/dendrascience/shotfs/internal/logger"
	"github.com/dendrascience/shotfs/internal/retry"
	"github.com/dendrascience/shotfs/refresh"
)

// Catalog backends.
const (
	BackendElasticsearch = "elasticsearch"
	BackendMemory        = "memory"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// Config is the complete shotfs configuration.
type Config struct {
	// RefreshRate is one of hour, day or minute.
	RefreshRate string `yaml:"refresh_rate" env:"SHOTFS_REFRESH_RATE"`
	// DataDir holds captured images, sharded by capture id.
	DataDir string `yaml:"data_dir" env:"SHOTFS_DATA_DIR"`
	// StopIfIdle stops the workers after this long without any finished
	// fetch or capture. Zero runs forever.
	StopIfIdle time.Duration `yaml:"stop_if_idle" env:"SHOTFS_STOP_IF_IDLE"`

	Catalog      CatalogConfig      `yaml:"catalog"`
	Logging      logger.Config      `yaml:"logging"`
	Crawler      CrawlerConfig      `yaml:"crawler"`
	Photographer PhotographerConfig `yaml:"photographer"`
	Mount        MountConfig        `yaml:"mount"`
	Metrics      MetricsConfig      `yaml:"metrics"`
	Stats        StatsConfig        `yaml:"stats"`
}

// CatalogConfig selects and configures the metadata catalog backend.
type CatalogConfig struct {
	Backend     string        `yaml:"backend" env:"SHOTFS_CATALOG_BACKEND"`
	URL         string        `yaml:"url" env:"SHOTFS_ELASTICSEARCH_URL"`
	Username    string        `yaml:"username" env:"SHOTFS_ELASTICSEARCH_USERNAME"`
	Password    string        `yaml:"password" env:"SHOTFS_ELASTICSEARCH_PASSWORD"`
	APIKey      string        `yaml:"api_key" env:"SHOTFS_ELASTICSEARCH_API_KEY"`
	IndexPrefix string        `yaml:"index_prefix" env:"SHOTFS_INDEX_PREFIX"`
	MaxRetries  int           `yaml:"max_retries"`
	PingTimeout time.Duration `yaml:"ping_timeout"`
	Connect     retry.Config  `yaml:"connect"`
	// Backoff paces a worker whose tick failed, typically because the
	// catalog was briefly unreachable.
	Backoff retry.Config `yaml:"backoff"`
}

// CrawlerConfig configures the fetch workers.
type CrawlerConfig struct {
	Workers           int           `yaml:"workers" env:"SHOTFS_CRAWLER_WORKERS"`
	SeedFile          string        `yaml:"seed_file" env:"SHOTFS_SEED_FILE"`
	StayAtDomain      bool          `yaml:"stay_at_domain" env:"SHOTFS_STAY_AT_DOMAIN"`
	IgnoreFoundURLs   bool          `yaml:"ignore_found_urls" env:"SHOTFS_IGNORE_FOUND_URLS"`
	RespectRobotsTxt  bool          `yaml:"respect_robots_txt" env:"SHOTFS_RESPECT_ROBOTS_TXT"`
	UserAgent         string        `yaml:"user_agent" env:"SHOTFS_USER_AGENT"`
	Timeout           time.Duration `yaml:"timeout"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"SHOTFS_REQUESTS_PER_SECOND"`
	IdlePause         time.Duration `yaml:"idle_pause"`
}

// PhotographerConfig configures the capture workers and the renderer.
type PhotographerConfig struct {
	Workers           int           `yaml:"workers" env:"SHOTFS_PHOTOGRAPHER_WORKERS"`
	ViewportWidth     int           `yaml:"viewport_width" env:"SHOTFS_VIEWPORT_WIDTH"`
	ViewportHeight    int           `yaml:"viewport_height" env:"SHOTFS_VIEWPORT_HEIGHT"`
	ViewportMaxHeight int           `yaml:"viewport_max_height" env:"SHOTFS_VIEWPORT_MAX_HEIGHT"`
	RenderTimeout     time.Duration `yaml:"render_timeout"`
	SettleDelay       time.Duration `yaml:"settle_delay"`
	ChromePath        string        `yaml:"chrome_path" env:"SHOTFS_CHROME_PATH"`
	IdlePause         time.Duration `yaml:"idle_pause"`
	MaxJitter         time.Duration `yaml:"max_jitter"`
}

// MountConfig configures the read-only filesystem.
type MountConfig struct {
	Mountpoint string        `yaml:"mountpoint" env:"SHOTFS_MOUNTPOINT"`
	LatestTTL  time.Duration `yaml:"latest_ttl"`
}

// MetricsConfig configures the Prometheus endpoint. An empty Addr
// disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr" env:"SHOTFS_METRICS_ADDR"`
}

// StatsConfig configures the periodic throughput report.
type StatsConfig struct {
	Schedule string `yaml:"schedule" env:"SHOTFS_STATS_SCHEDULE"`
}

// SetDefaults fills every unset field.
func (c *Config) SetDefaults() {
	if c.RefreshRate == "" {
		c.RefreshRate = "hour"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}

	if c.Catalog.Backend == "" {
		c.Catalog.Backend = BackendElasticsearch
	}
	if c.Catalog.URL == "" {
		c.Catalog.URL = "http://localhost:9200"
	}
	if c.Catalog.MaxRetries == 0 {
		c.Catalog.MaxRetries = 3
	}
	if c.Catalog.PingTimeout == 0 {
		c.Catalog.PingTimeout = 5 * time.Second
	}
	if c.Catalog.Connect.MaxAttempts == 0 {
		c.Catalog.Connect = retry.Config{
			MaxAttempts:  5,
			InitialDelay: 2 * time.Second,
			MaxDelay:     10 * time.Second,
			Multiplier:   2.0,
		}
	}

	if c.Catalog.Backoff.InitialDelay == 0 {
		c.Catalog.Backoff = retry.Config{
			InitialDelay: time.Second,
			MaxDelay:     time.Minute,
			Multiplier:   2.0,
		}
	}

	c.Logging.SetDefaults()

	if c.Crawler.Workers == 0 {
		c.Crawler.Workers = 1
	}
	if c.Crawler.UserAgent == "" {
		c.Crawler.UserAgent = "shotfs"
	}
	if c.Crawler.Timeout == 0 {
		c.Crawler.Timeout = 30 * time.Second
	}
	if c.Crawler.IdlePause == 0 {
		c.Crawler.IdlePause = time.Second
	}

	if c.Photographer.Workers == 0 {
		c.Photographer.Workers = 1
	}
	if c.Photographer.ViewportWidth == 0 {
		c.Photographer.ViewportWidth = 1920
	}
	if c.Photographer.RenderTimeout == 0 {
		c.Photographer.RenderTimeout = time.Minute
	}
	if c.Photographer.SettleDelay == 0 {
		c.Photographer.SettleDelay = 2 * time.Second
	}
	if c.Photographer.IdlePause == 0 {
		c.Photographer.IdlePause = time.Second
	}
	if c.Photographer.MaxJitter == 0 {
		c.Photographer.MaxJitter = 2 * time.Second
	}

	if c.Mount.LatestTTL == 0 {
		c.Mount.LatestTTL = 60 * time.Second
	}

	if c.Stats.Schedule == "" {
		c.Stats.Schedule = "*/5 * * * *"
	}
}

// Cadence parses RefreshRate.
func (c *Config) Cadence() (refresh.Cadence, error) {
	return refresh.Parse(c.RefreshRate)
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	if _, err := c.Cadence(); err != nil {
		return fmt.Errorf("%w: refresh_rate: %v", ErrInvalidConfig, err)
	}
	switch c.Catalog.Backend {
	case BackendElasticsearch, BackendMemory:
	default:
		return fmt.Errorf("%w: catalog.backend %q", ErrInvalidConfig, c.Catalog.Backend)
	}
	if c.Crawler.Workers < 0 || c.Photographer.Workers < 0 {
		return fmt.Errorf("%w: worker counts must not be negative", ErrInvalidConfig)
	}
	if c.Photographer.ViewportWidth < 0 || c.Photographer.ViewportHeight < 0 || c.Photographer.ViewportMaxHeight < 0 {
		return fmt.Errorf("%w: viewport dimensions must not be negative", ErrInvalidConfig)
	}
	if c.Crawler.RequestsPerSecond < 0 {
		return fmt.Errorf("%w: crawler.requests_per_second must not be negative", ErrInvalidConfig)
	}
	return nil
}
