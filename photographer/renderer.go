package photographer

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"

	"github.com/dendrascience/shotfs/internal/logger"
	"github.com/dendrascience/shotfs/weburl"
)

// Renderer produces a PNG screenshot of a page.
type Renderer interface {
	Render(ctx context.Context, u weburl.URL) ([]byte, error)
}

// RendererConfig sizes the browser viewport. With a Height the screenshot
// has exactly that height; without one it is as tall as the document,
// clamped to MaxHeight when that is set.
type RendererConfig struct {
	Width         int
	Height        int
	MaxHeight     int
	UserAgent     string
	ExecPath      string
	RenderTimeout time.Duration
	// SettleDelay is how long to wait for lazy content after each scroll
	// and after the final resize.
	SettleDelay time.Duration
}

const documentHeightJS = `Math.max(document.body ? document.body.scrollHeight : 0, document.documentElement.scrollHeight)`

// ChromeRenderer renders pages in tabs of one shared headless Chrome.
type ChromeRenderer struct {
	cfg         RendererConfig
	fullPage    bool
	browser     context.Context
	cancelAlloc context.CancelFunc
	cancel      context.CancelFunc
	log         logger.Logger
}

// NewChromeRenderer starts the browser.
func NewChromeRenderer(cfg RendererConfig, log logger.Logger) (*ChromeRenderer, error) {
	fullPage := cfg.Height <= 0
	if cfg.Width <= 0 {
		cfg.Width = 1920
	}
	if fullPage {
		cfg.Height = 1080
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.WindowSize(cfg.Width, cfg.Height),
		chromedp.Flag("hide-scrollbars", true),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browser, cancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browser); err != nil {
		cancel()
		cancelAlloc()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.Info("Browser started",
		logger.Int("width", cfg.Width),
		logger.Int("height", cfg.Height),
	)
	return &ChromeRenderer{
		cfg:         cfg,
		fullPage:    fullPage,
		browser:     browser,
		cancelAlloc: cancelAlloc,
		cancel:      cancel,
		log:         log,
	}, nil
}

// Render opens u in a new tab and captures it. For full page captures it
// first scrolls through the page to trigger lazy loading and grows the
// viewport to the document height.
func (r *ChromeRenderer) Render(ctx context.Context, u weburl.URL) ([]byte, error) {
	tab, cancel := chromedp.NewContext(r.browser)
	defer cancel()
	if r.cfg.RenderTimeout > 0 {
		tab, cancel = context.WithTimeout(tab, r.cfg.RenderTimeout)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var png []byte
	actions := chromedp.Tasks{
		chromedp.EmulateViewport(int64(r.cfg.Width), int64(r.cfg.Height)),
		chromedp.Navigate(u.String()),
	}
	if r.fullPage {
		actions = append(actions,
			chromedp.ActionFunc(r.scrollThrough),
			chromedp.ActionFunc(func(ctx context.Context) error {
				var height int64
				if err := chromedp.Evaluate(documentHeightJS, &height).Do(ctx); err != nil {
					return err
				}
				return chromedp.EmulateViewport(int64(r.cfg.Width), r.clamp(height)).Do(ctx)
			}),
			scrollTo(0),
		)
	}
	actions = append(actions,
		chromedp.Sleep(r.cfg.SettleDelay),
		chromedp.CaptureScreenshot(&png),
	)

	if err := chromedp.Run(tab, actions); err != nil {
		return nil, fmt.Errorf("failed to render %s: %w", u, err)
	}
	return png, nil
}

func (r *ChromeRenderer) scrollThrough(ctx context.Context) error {
	var height int64
	if err := chromedp.Evaluate(documentHeightJS, &height).Do(ctx); err != nil {
		return err
	}
	step := int64(r.cfg.Height / 2)
	for y := step; y < r.clamp(height); y += step {
		if err := scrollTo(y).Do(ctx); err != nil {
			return err
		}
		if err := chromedp.Sleep(r.cfg.SettleDelay / 4).Do(ctx); err != nil {
			return err
		}
	}
	return nil
}

func scrollTo(y int64) chromedp.Action {
	var done bool
	return chromedp.Evaluate(fmt.Sprintf("window.scrollTo(0, %d), true", y), &done)
}

func (r *ChromeRenderer) clamp(height int64) int64 {
	if height < int64(r.cfg.Height) {
		return int64(r.cfg.Height)
	}
	if r.cfg.MaxHeight > 0 && height > int64(r.cfg.MaxHeight) {
		return int64(r.cfg.MaxHeight)
	}
	return height
}

// Close shuts the browser down.
func (r *ChromeRenderer) Close() {
	r.cancel()
	r.cancelAlloc()
}
