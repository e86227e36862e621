package mount

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/dendrascience/shotfs/internal/clock"
	"github.com/dendrascience/shotfs/internal/logger"
	"github.com/dendrascience/shotfs/internal/metrics"
	"github.com/dendrascience/shotfs/refresh"
)

// DefaultLatestTTL is how long a resolved latest bucket is reused.
const DefaultLatestTTL = 60 * time.Second

// LatestSource answers the newest bucket of a domain.
type LatestSource interface {
	LatestBucket(ctx context.Context, domain string, c refresh.Cadence) (string, error)
}

type cachedBucket struct {
	bucket   string
	cachedAt time.Time
}

// LatestCache memoizes the newest bucket per domain for one cadence.
// Concurrent misses for the same domain share a single catalog query.
type LatestCache struct {
	src     LatestSource
	cadence refresh.Cadence
	ttl     time.Duration
	clock   clock.Clock
	log     logger.Logger
	metrics *metrics.Metrics

	group   singleflight.Group
	mu      sync.RWMutex
	entries map[string]cachedBucket
}

// LatestCacheParams holds the dependencies of a LatestCache.
type LatestCacheParams struct {
	Source  LatestSource
	Cadence refresh.Cadence
	TTL     time.Duration
	Clock   clock.Clock
	Logger  logger.Logger
	Metrics *metrics.Metrics
}

// NewLatestCache creates an empty cache. A zero TTL uses
// DefaultLatestTTL.
func NewLatestCache(p LatestCacheParams) *LatestCache {
	if p.TTL <= 0 {
		p.TTL = DefaultLatestTTL
	}
	if p.Clock == nil {
		p.Clock = clock.Real{}
	}
	if p.Logger == nil {
		p.Logger = logger.NewNop()
	}
	return &LatestCache{
		src:     p.Source,
		cadence: p.Cadence,
		ttl:     p.TTL,
		clock:   p.Clock,
		log:     p.Logger,
		metrics: p.Metrics,
		entries: make(map[string]cachedBucket),
	}
}

// Translate returns bucket unchanged unless it is LatestAlias, in which
// case the newest bucket of domain is returned. When the catalog has no
// bucket or fails, the alias is returned untranslated.
func (c *LatestCache) Translate(ctx context.Context, domain, bucket string) string {
	if bucket != LatestAlias {
		return bucket
	}
	return c.Resolve(ctx, domain)
}

// Resolve returns the newest bucket of domain, or LatestAlias if there is
// none.
func (c *LatestCache) Resolve(ctx context.Context, domain string) string {
	if bucket, ok := c.lookup(domain); ok {
		c.metrics.ObserveLatestLookup("hit")
		return bucket
	}

	v, err, _ := c.group.Do(domain, func() (any, error) {
		bucket, err := c.src.LatestBucket(ctx, domain, c.cadence)
		if err != nil {
			return "", err
		}
		c.mu.Lock()
		c.entries[domain] = cachedBucket{bucket: bucket, cachedAt: c.clock.Now()}
		c.mu.Unlock()
		return bucket, nil
	})
	if err != nil {
		c.metrics.ObserveLatestLookup("error")
		c.log.Debug("Leaving latest alias untranslated",
			logger.String("domain", domain),
			logger.Error(err),
		)
		return LatestAlias
	}
	c.metrics.ObserveLatestLookup("miss")
	return v.(string)
}

func (c *LatestCache) lookup(domain string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[domain]
	if !ok || c.clock.Now().Sub(e.cachedAt) > c.ttl {
		return "", false
	}
	return e.bucket, true
}
