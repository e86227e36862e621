package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	es "github.com/elastic/go-elasticsearch/v8"

	"github.com/dendrascience/shotfs/internal/clock"
	"github.com/dendrascience/shotfs/internal/config"
	"github.com/dendrascience/shotfs/internal/logger"
	"github.com/dendrascience/shotfs/internal/retry"
)

// Open returns the catalog selected by cfg.Backend. The Elasticsearch
// backend is only returned once the cluster answers a ping.
func Open(ctx context.Context, cfg config.CatalogConfig, c clock.Clock, log logger.Logger) (Catalog, error) {
	switch cfg.Backend {
	case config.BackendMemory:
		log.Warn("Using the in-memory catalog; nothing is persisted")
		return NewMemory(c), nil
	case config.BackendElasticsearch, "":
		client, err := NewElasticClient(ctx, cfg, log)
		if err != nil {
			return nil, err
		}
		return NewElastic(ElasticParams{
			Client:  client,
			Indices: DefaultIndices(cfg.IndexPrefix),
			Clock:   c,
			Logger:  log,
		}), nil
	}
	return nil, fmt.Errorf("%w: unknown catalog backend %q", config.ErrInvalidConfig, cfg.Backend)
}

// NewElasticClient creates an Elasticsearch client and waits, with
// exponential backoff, until the cluster answers a ping.
func NewElasticClient(ctx context.Context, cfg config.CatalogConfig, log logger.Logger) (*es.Client, error) {
	url := normalizeURL(cfg.URL)

	esCfg := es.Config{
		Addresses:  []string{url},
		MaxRetries: cfg.MaxRetries,
	}
	switch {
	case cfg.APIKey != "":
		esCfg.APIKey = cfg.APIKey
	case cfg.Username != "" && cfg.Password != "":
		esCfg.Username = cfg.Username
		esCfg.Password = cfg.Password
	}

	client, err := es.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	log.Info("Verifying Elasticsearch connection", logger.String("url", url))

	connect := cfg.Connect
	if connect.IsRetryable == nil {
		connect.IsRetryable = retry.Always
	}
	if err := retry.Retry(ctx, connect, func() error {
		return ping(ctx, client, cfg.PingTimeout, log)
	}); err != nil {
		return nil, fmt.Errorf("connect to elasticsearch: %w", err)
	}

	log.Info("Elasticsearch connection established", logger.String("url", url))
	return client, nil
}

func normalizeURL(url string) string {
	if url == "" {
		return "http://localhost:9200"
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return "http://" + url
	}
	return url
}

func ping(ctx context.Context, client *es.Client, timeout time.Duration, log logger.Logger) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, err := client.Ping(client.Ping.WithContext(ctx))
	if err := do("ping", res, err, nil); err != nil {
		log.Debug("Elasticsearch ping failed", logger.Error(err))
		return err
	}
	return nil
}
