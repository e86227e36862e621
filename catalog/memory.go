package catalog

import (
	"cmp"
	"context"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/dendrascience/shotfs/internal/clock"
	"github.com/dendrascience/shotfs/refresh"
	"github.com/dendrascience/shotfs/weburl"
)

// Memory is an in-process Catalog. It is safe for concurrent use.
type Memory struct {
	clock clock.Clock
	pick  func(n int) int

	mu        sync.RWMutex
	uncrawled map[string]UncrawledEntry
	crawled   map[string]CrawledRecord
	photos    map[string]PhotoRecord
}

// NewMemory returns an empty catalog. A nil clock uses the system clock.
func NewMemory(c clock.Clock) *Memory {
	if c == nil {
		c = clock.Real{}
	}
	return &Memory{
		clock:     c,
		pick:      rand.IntN,
		uncrawled: make(map[string]UncrawledEntry),
		crawled:   make(map[string]CrawledRecord),
		photos:    make(map[string]PhotoRecord),
	}
}

// Setup is a no-op for the in-memory catalog.
func (m *Memory) Setup(ctx context.Context) error {
	return nil
}

// Clear drops every record.
func (m *Memory) Clear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.uncrawled)
	clear(m.crawled)
	clear(m.photos)
	return nil
}

func (m *Memory) EnqueueUncrawled(ctx context.Context, urls []weburl.URL) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	seen := make(map[string]bool, len(urls))
	queued := 0
	for _, u := range urls {
		id := u.Hash()
		if _, ok := m.crawled[id]; ok || seen[id] {
			continue
		}
		seen[id] = true
		m.uncrawled[id] = UncrawledEntry{ID: id, URL: u.String(), CreatedAt: now}
		queued++
	}
	return queued, nil
}

func (m *Memory) DequeueUncrawled(ctx context.Context) (UncrawledEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.uncrawled) == 0 {
		return UncrawledEntry{}, ErrEmptyQueue
	}
	ids := make([]string, 0, len(m.uncrawled))
	for id := range m.uncrawled {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	entry := m.uncrawled[ids[m.pick(len(ids))]]
	delete(m.uncrawled, entry.ID)
	return entry, nil
}

func (m *Memory) PromoteToCrawled(ctx context.Context, u weburl.URL, statusCode int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := u.Hash()
	rec, ok := m.crawled[id]
	if !ok {
		rec = CrawledRecord{ID: id, URL: u.String(), CreatedAt: m.clock.Now()}
	}
	rec.StatusCode = statusCode
	m.crawled[id] = rec
	return nil
}

// eligible returns the checkout candidates, most recently crawled first.
// Callers hold m.mu.
func (m *Memory) eligible(c refresh.Cadence, bucket string) []CrawledRecord {
	var out []CrawledRecord
	for _, rec := range m.crawled {
		if rec.StatusCode != 200 || rec.LockedFor(c, bucket) {
			continue
		}
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b CrawledRecord) int {
		if n := b.CreatedAt.Compare(a.CreatedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out
}

func (m *Memory) CountEligible(ctx context.Context, c refresh.Cadence) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.eligible(c, c.Bucket(m.clock.Now()))), nil
}

func (m *Memory) CheckoutForCapture(ctx context.Context, c refresh.Cadence) (weburl.URL, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bucket := c.Bucket(m.clock.Now())
	candidates := m.eligible(c, bucket)
	if len(candidates) == 0 {
		return weburl.URL{}, ErrEmptyQueue
	}
	candidates = candidates[:min(len(candidates), checkoutCandidates)]

	rec := candidates[m.pick(len(candidates))]
	u, err := weburl.Parse(rec.URL)
	if err != nil {
		return weburl.URL{}, fmt.Errorf("crawled record %s: %w", rec.ID, err)
	}

	rec.LockFormat = c.Tag()
	rec.LockValue = bucket
	m.crawled[rec.ID] = rec
	return u, nil
}

func (m *Memory) SavePhoto(ctx context.Context, p PhotoRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.photos[p.ID] = p
	return nil
}

// selectPhotos returns the photos matching keep. Callers hold m.mu.
func (m *Memory) selectPhotos(keep func(PhotoRecord) bool) []PhotoRecord {
	var out []PhotoRecord
	for _, p := range m.photos {
		if keep(p) {
			out = append(out, p)
		}
	}
	return out
}

func distinct(photos []PhotoRecord, field func(PhotoRecord) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, p := range photos {
		v := field(p)
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	slices.Sort(out)
	return out
}

func (m *Memory) Domains(ctx context.Context, c refresh.Cadence) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	photos := m.selectPhotos(func(p PhotoRecord) bool { return p.RefreshRate == c.Tag() })
	return distinct(photos, func(p PhotoRecord) string { return p.Domain }), nil
}

func (m *Memory) Buckets(ctx context.Context, domain string, c refresh.Cadence) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	photos := m.selectPhotos(func(p PhotoRecord) bool {
		return p.RefreshRate == c.Tag() && p.Domain == domain
	})
	return distinct(photos, func(p PhotoRecord) string { return p.CapturedAt }), nil
}

func (m *Memory) LatestBucket(ctx context.Context, domain string, c refresh.Cadence) (string, error) {
	buckets, err := m.Buckets(ctx, domain, c)
	if err != nil {
		return "", err
	}
	if len(buckets) == 0 {
		return "", fmt.Errorf("latest bucket of %s: %w", domain, ErrNotFound)
	}
	return buckets[len(buckets)-1], nil
}

func inLocation(p PhotoRecord, loc Location) bool {
	return p.Domain == loc.Domain && p.RefreshRate == loc.Cadence.Tag() && p.CapturedAt == loc.Bucket
}

func (m *Memory) FindFile(ctx context.Context, loc Location, directory, filename string) (PhotoRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	matches := m.selectPhotos(func(p PhotoRecord) bool {
		return inLocation(p, loc) && p.Directory == directory && p.Filename == filename
	})
	if len(matches) == 0 {
		return PhotoRecord{}, fmt.Errorf("%s%s: %w", directory, filename, ErrNotFound)
	}
	return slices.MaxFunc(matches, func(a, b PhotoRecord) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	}), nil
}

func (m *Memory) DirectoryExists(ctx context.Context, loc Location, directory string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, p := range m.photos {
		if inLocation(p, loc) && strings.HasPrefix(p.Directory, directory) {
			return true, nil
		}
	}
	return false, nil
}

func (m *Memory) ListDirectory(ctx context.Context, loc Location, directory string) (Listing, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	under := m.selectPhotos(func(p PhotoRecord) bool {
		return inLocation(p, loc) && strings.HasPrefix(p.Directory, directory)
	})

	var files []PhotoRecord
	var dirs []string
	for _, p := range under {
		if p.Directory == directory {
			files = append(files, p)
		}
		dirs = append(dirs, p.Directory)
	}
	slices.Sort(dirs)

	return Listing{
		Files:       newestPerFilename(files),
		Directories: subdirectories(directory, dirs),
	}, nil
}

// newestPerFilename keeps the most recent record for every filename and
// orders the result by filename.
func newestPerFilename(files []PhotoRecord) []PhotoRecord {
	slices.SortFunc(files, func(a, b PhotoRecord) int {
		if n := cmp.Compare(a.Filename, b.Filename); n != 0 {
			return n
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	return slices.CompactFunc(files, func(a, b PhotoRecord) bool {
		return a.Filename == b.Filename
	})
}

func (m *Memory) CountPhotosSince(ctx context.Context, since time.Time) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, p := range m.photos {
		if !p.Loading() && !p.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

var _ Catalog = (*Memory)(nil)
