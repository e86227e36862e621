package mount

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dendrascience/shotfs/catalog"
	"github.com/dendrascience/shotfs/internal/clock"
	"github.com/dendrascience/shotfs/refresh"
)

type stubLatest struct {
	calls   atomic.Int32
	buckets map[string]string
	err     error
	delay   time.Duration
}

func (s *stubLatest) LatestBucket(ctx context.Context, domain string, c refresh.Cadence) (string, error) {
	s.calls.Add(1)
	time.Sleep(s.delay)
	if s.err != nil {
		return "", s.err
	}
	b, ok := s.buckets[domain]
	if !ok {
		return "", fmt.Errorf("latest of %s: %w", domain, catalog.ErrNotFound)
	}
	return b, nil
}

var cacheStart = time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)

func TestLatestCache_Expiry(t *testing.T) {
	ctx := context.Background()
	src := &stubLatest{buckets: map[string]string{"example.com": "2024030514"}}
	clk := clock.NewStub(cacheStart)
	cache := NewLatestCache(LatestCacheParams{Source: src, Cadence: refresh.Hourly, Clock: clk})

	assert.Equal(t, "2024030514", cache.Resolve(ctx, "example.com"))
	src.buckets["example.com"] = "2024030515"

	clk.Advance(DefaultLatestTTL)
	assert.Equal(t, "2024030514", cache.Resolve(ctx, "example.com"), "still fresh at exactly the TTL")
	assert.Equal(t, int32(1), src.calls.Load())

	clk.Advance(time.Second)
	assert.Equal(t, "2024030515", cache.Resolve(ctx, "example.com"))
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestLatestCache_PerDomain(t *testing.T) {
	ctx := context.Background()
	src := &stubLatest{buckets: map[string]string{"a.com": "1", "b.com": "2"}}
	cache := NewLatestCache(LatestCacheParams{Source: src, Cadence: refresh.Hourly, Clock: clock.NewStub(cacheStart)})

	assert.Equal(t, "1", cache.Resolve(ctx, "a.com"))
	assert.Equal(t, "2", cache.Resolve(ctx, "b.com"))
	assert.Equal(t, "1", cache.Resolve(ctx, "a.com"))
	assert.Equal(t, int32(2), src.calls.Load())
}

func TestLatestCache_MissLeavesAliasUntranslated(t *testing.T) {
	ctx := context.Background()
	src := &stubLatest{buckets: map[string]string{}}
	cache := NewLatestCache(LatestCacheParams{Source: src, Cadence: refresh.Hourly, Clock: clock.NewStub(cacheStart)})

	assert.Equal(t, LatestAlias, cache.Translate(ctx, "nobody.net", LatestAlias))
	assert.Equal(t, LatestAlias, cache.Translate(ctx, "nobody.net", LatestAlias))
	assert.Equal(t, int32(2), src.calls.Load(), "misses are not cached")

	src.err = errors.New("connection refused")
	assert.Equal(t, LatestAlias, cache.Resolve(ctx, "nobody.net"))
}

func TestLatestCache_TranslateLeavesConcreteBuckets(t *testing.T) {
	src := &stubLatest{}
	cache := NewLatestCache(LatestCacheParams{Source: src, Cadence: refresh.Hourly})

	assert.Equal(t, "2024030514", cache.Translate(context.Background(), "example.com", "2024030514"))
	assert.Zero(t, src.calls.Load())
}

func TestLatestCache_ConcurrentMissesShareOneQuery(t *testing.T) {
	ctx := context.Background()
	src := &stubLatest{buckets: map[string]string{"example.com": "b"}, delay: 50 * time.Millisecond}
	cache := NewLatestCache(LatestCacheParams{Source: src, Cadence: refresh.Hourly})

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "b", cache.Resolve(ctx, "example.com"))
		}()
	}
	wg.Wait()

	assert.Less(t, src.calls.Load(), int32(20))
}
