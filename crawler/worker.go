package crawler

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/dendrascience/shotfs/catalog"
	"github.com/dendrascience/shotfs/internal/logger"
	"github.com/dendrascience/shotfs/internal/metrics"
	"github.com/dendrascience/shotfs/weburl"
)

// Fetch outcomes as recorded in metrics.
const (
	resultOK        = "ok"
	resultNotHTML   = "not_html"
	resultHTTPError = "http_error"
	resultError     = "error"
)

// Params wires a Worker.
type Params struct {
	Frontier catalog.Frontier
	Fetcher  Fetcher
	// Seeds is consulted before the queue on every tick. Optional.
	Seeds *SeedFile
	// StayAtDomain drops discovered links to other hosts.
	StayAtDomain bool
	// IgnoreFoundURLs records fetches without queueing their links.
	IgnoreFoundURLs bool
	Logger          logger.Logger
	Metrics         *metrics.Metrics
}

// Worker crawls one URL per tick.
type Worker struct {
	frontier        catalog.Frontier
	fetcher         Fetcher
	seeds           *SeedFile
	stayAtDomain    bool
	ignoreFoundURLs bool
	log             logger.Logger
	metrics         *metrics.Metrics
}

func NewWorker(p Params) *Worker {
	log := p.Logger
	if log == nil {
		log = logger.NewNop()
	}
	return &Worker{
		frontier:        p.Frontier,
		fetcher:         p.Fetcher,
		seeds:           p.Seeds,
		stayAtDomain:    p.StayAtDomain,
		ignoreFoundURLs: p.IgnoreFoundURLs,
		log:             log,
		metrics:         p.Metrics,
	}
}

// Tick crawls the next URL. It reports false when there was nothing to
// crawl.
func (w *Worker) Tick(ctx context.Context) (bool, error) {
	u, ok, err := w.next(ctx)
	if err != nil || !ok {
		return false, err
	}

	page, err := w.fetcher.Fetch(ctx, u)
	status := page.StatusCode
	switch {
	case err != nil:
		w.log.Warn("Fetch failed", logger.String("url", u.String()), logger.Error(err))
		w.metrics.ObserveFetch(resultError)
		status = 0
	case !page.HTML():
		w.metrics.ObserveFetch(resultNotHTML)
		status = 0
	case status != http.StatusOK:
		w.metrics.ObserveFetch(resultHTTPError)
	default:
		w.metrics.ObserveFetch(resultOK)
	}

	if err := w.frontier.PromoteToCrawled(ctx, u, status); err != nil {
		return true, fmt.Errorf("failed to record crawl of %s: %w", u, err)
	}
	w.log.Debug("Crawled",
		logger.String("url", u.String()),
		logger.Int("status", status),
		logger.Int("links", len(page.Links)),
	)

	if w.ignoreFoundURLs || status != http.StatusOK {
		return true, nil
	}

	links := w.filter(u, page.Links)
	if len(links) == 0 {
		return true, nil
	}
	n, err := w.frontier.EnqueueUncrawled(ctx, links)
	w.metrics.AddQueued(n)
	if err != nil {
		return true, fmt.Errorf("failed to queue links from %s: %w", u, err)
	}
	return true, nil
}

// next prefers the seed file over the queue. An unparseable seed line is
// consumed and skipped.
func (w *Worker) next(ctx context.Context) (weburl.URL, bool, error) {
	if w.seeds != nil {
		line, ok, err := w.seeds.Next()
		if err != nil {
			return weburl.URL{}, false, err
		}
		if ok {
			u, err := weburl.Parse(line)
			if err != nil {
				w.log.Warn("Skipping invalid seed", logger.String("line", line), logger.Error(err))
				return weburl.URL{}, false, nil
			}
			return u, true, nil
		}
	}

	entry, err := w.frontier.DequeueUncrawled(ctx)
	if err != nil {
		if errors.Is(err, catalog.ErrEmptyQueue) {
			return weburl.URL{}, false, nil
		}
		return weburl.URL{}, false, err
	}
	u, err := weburl.Parse(entry.URL)
	if err != nil {
		w.log.Warn("Dropping invalid queued url", logger.String("url", entry.URL), logger.Error(err))
		return weburl.URL{}, false, nil
	}
	return u, true, nil
}

func (w *Worker) filter(from weburl.URL, links []weburl.URL) []weburl.URL {
	if !w.stayAtDomain {
		return links
	}
	kept := links[:0:0]
	for _, l := range links {
		if l.Domain() == from.Domain() {
			kept = append(kept, l)
		}
	}
	return kept
}
