package photographer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"time"

	"github.com/dendrascience/shotfs/catalog"
	"github.com/dendrascience/shotfs/internal/clock"
	"github.com/dendrascience/shotfs/internal/logger"
	"github.com/dendrascience/shotfs/internal/metrics"
	"github.com/dendrascience/shotfs/refresh"
)

// Capture outcomes as recorded in metrics.
const (
	resultCaptured = "captured"
	resultFailed   = "render_failed"
	resultConflict = "conflict"
)

// Blobs stores capture images by capture id.
type Blobs interface {
	WritePlaceholder(id string) error
	Write(id string, r io.Reader) (int64, error)
}

// Params wires a Worker.
type Params struct {
	Checkout catalog.Checkout
	Blobs    Blobs
	Renderer Renderer
	Cadence  refresh.Cadence
	Clock    clock.Clock
	// Workers is the size of the capture pool. When fewer records are
	// eligible than there are workers, each worker waits a random delay
	// of up to MaxJitter before checking out so they do not all race for
	// the same few records.
	Workers   int
	MaxJitter time.Duration
	Logger    logger.Logger
	Metrics   *metrics.Metrics
}

// Worker captures one page per tick.
type Worker struct {
	checkout  catalog.Checkout
	blobs     Blobs
	renderer  Renderer
	cadence   refresh.Cadence
	clock     clock.Clock
	workers   int
	maxJitter time.Duration
	log       logger.Logger
	metrics   *metrics.Metrics
}

func NewWorker(p Params) *Worker {
	if p.Clock == nil {
		p.Clock = clock.Real{}
	}
	if p.Logger == nil {
		p.Logger = logger.NewNop()
	}
	return &Worker{
		checkout:  p.Checkout,
		blobs:     p.Blobs,
		renderer:  p.Renderer,
		cadence:   p.Cadence,
		clock:     p.Clock,
		workers:   p.Workers,
		maxJitter: p.MaxJitter,
		log:       p.Logger,
		metrics:   p.Metrics,
	}
}

// Tick captures the next eligible page. It reports false when nothing was
// eligible for the current bucket.
func (w *Worker) Tick(ctx context.Context) (bool, error) {
	n, err := w.checkout.CountEligible(ctx, w.cadence)
	if err != nil {
		return false, fmt.Errorf("failed to count eligible records: %w", err)
	}
	w.metrics.SetEligible(n)
	if n == 0 {
		return false, nil
	}
	if n < w.workers {
		if err := w.jitter(ctx); err != nil {
			return false, nil
		}
	}

	u, err := w.checkout.CheckoutForCapture(ctx, w.cadence)
	switch {
	case errors.Is(err, catalog.ErrEmptyQueue):
		return false, nil
	case errors.Is(err, catalog.ErrConflict):
		w.metrics.ObserveCapture(resultConflict, 0)
		w.log.Debug("Checkout lost to another worker")
		return false, nil
	case err != nil:
		return false, fmt.Errorf("failed to check out: %w", err)
	}

	start := w.clock.Now()
	photo := catalog.NewPhoto(u, w.cadence, w.cadence.Bucket(start), start)
	log := w.log.With(
		logger.String("url", u.String()),
		logger.String("photo_id", photo.ID),
		logger.String("bucket", photo.CapturedAt),
	)

	if err := w.blobs.WritePlaceholder(photo.ID); err != nil {
		return true, fmt.Errorf("failed to write placeholder: %w", err)
	}
	if err := w.checkout.SavePhoto(ctx, photo); err != nil {
		return true, fmt.Errorf("failed to save placeholder record: %w", err)
	}

	png, err := w.renderer.Render(ctx, u)
	if err != nil {
		w.metrics.ObserveCapture(resultFailed, 0)
		log.Warn("Render failed", logger.Error(err))
		return true, nil
	}
	size, err := w.blobs.Write(photo.ID, bytes.NewReader(png))
	if err != nil {
		return true, fmt.Errorf("failed to store image: %w", err)
	}
	if err := w.checkout.SavePhoto(ctx, photo.Finalized(size)); err != nil {
		return true, fmt.Errorf("failed to finalize photo record: %w", err)
	}

	elapsed := w.clock.Now().Sub(start)
	w.metrics.ObserveCapture(resultCaptured, elapsed)
	log.Info("Captured",
		logger.Int64("bytes", size),
		logger.Duration("elapsed", elapsed),
	)
	return true, nil
}

func (w *Worker) jitter(ctx context.Context) error {
	if w.maxJitter <= 0 {
		return nil
	}
	t := time.NewTimer(rand.N(w.maxJitter))
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
