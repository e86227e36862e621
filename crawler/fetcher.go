package crawler

import (
	"bytes"
	"context"
	"fmt"
	"mime"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"golang.org/x/time/rate"

	"github.com/dendrascience/shotfs/internal/logger"
	"github.com/dendrascience/shotfs/weburl"
)

// Page is the outcome of one fetch.
type Page struct {
	URL         weburl.URL
	StatusCode  int
	ContentType string
	Links       []weburl.URL
}

// HTML reports whether the response declared an HTML body.
func (p Page) HTML() bool {
	mediaType, _, err := mime.ParseMediaType(p.ContentType)
	return err == nil && mediaType == "text/html"
}

// Fetcher retrieves a page and the links on it.
type Fetcher interface {
	Fetch(ctx context.Context, u weburl.URL) (Page, error)
}

// FetcherConfig configures a CollyFetcher.
type FetcherConfig struct {
	UserAgent string
	Timeout   time.Duration
	// RequestsPerSecond caps the fetch rate across every worker sharing
	// the fetcher. Zero disables the limit.
	RequestsPerSecond float64
	RespectRobotsTxt  bool
}

// CollyFetcher fetches pages with a colly collector. It is safe for
// concurrent use; every Fetch runs on its own clone of the collector.
type CollyFetcher struct {
	collector *colly.Collector
	limiter   *rate.Limiter
	log       logger.Logger
}

// NewFetcher creates a fetcher that follows redirects, revisits URLs and
// reports error statuses as regular responses.
func NewFetcher(cfg FetcherConfig, log logger.Logger) *CollyFetcher {
	c := colly.NewCollector(
		colly.UserAgent(cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
	)
	c.IgnoreRobotsTxt = !cfg.RespectRobotsTxt
	if cfg.Timeout > 0 {
		c.SetRequestTimeout(cfg.Timeout)
	}

	f := &CollyFetcher{collector: c, log: log}
	if cfg.RequestsPerSecond > 0 {
		burst := max(1, int(cfg.RequestsPerSecond))
		f.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	return f
}

// Fetch requests u and, for HTML responses, extracts every link. Links are
// resolved against the final URL after redirects.
func (f *CollyFetcher) Fetch(ctx context.Context, u weburl.URL) (Page, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return Page{URL: u}, err
		}
	}

	c := f.collector.Clone()
	c.Context = ctx

	page := Page{URL: u}
	c.OnResponse(func(r *colly.Response) {
		page.StatusCode = r.StatusCode
		page.ContentType = r.Headers.Get("Content-Type")
		if !page.HTML() {
			return
		}
		base := u
		if final, err := weburl.Parse(r.Request.URL.String()); err == nil {
			base = final
		}
		links, err := ExtractLinks(base, r.Body)
		if err != nil {
			f.log.Debug("Failed to parse page",
				logger.String("url", u.String()),
				logger.Error(err),
			)
			return
		}
		page.Links = links
	})

	if err := c.Visit(u.String()); err != nil {
		return page, fmt.Errorf("failed to fetch %s: %w", u, err)
	}
	return page, nil
}

// ExtractLinks returns the distinct http(s) targets of every anchor in
// body, in document order. Hrefs that do not resolve to a valid URL are
// skipped.
func ExtractLinks(base weburl.URL, body []byte) ([]weburl.URL, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	var links []weburl.URL
	seen := make(map[string]struct{})
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if href == "" {
			return
		}
		link, err := base.Resolve(href)
		if err != nil {
			return
		}
		if _, ok := seen[link.Hash()]; ok {
			return
		}
		seen[link.Hash()] = struct{}{}
		links = append(links, link)
	})
	return links, nil
}
