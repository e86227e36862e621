package photographer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dendrascience/shotfs/catalog"
	"github.com/dendrascience/shotfs/datadir"
	"github.com/dendrascience/shotfs/internal/clock"
	"github.com/dendrascience/shotfs/internal/metrics"
	"github.com/dendrascience/shotfs/refresh"
	"github.com/dendrascience/shotfs/weburl"
)

var (
	testNow = time.Date(2024, 3, 5, 14, 30, 0, 0, time.UTC)
	testPNG = []byte("\x89PNG\r\n\x1a\nimage")
)

type fakeRenderer struct {
	png    []byte
	err    error
	during func(u weburl.URL)
	calls  int
}

func (f *fakeRenderer) Render(ctx context.Context, u weburl.URL) ([]byte, error) {
	f.calls++
	if f.during != nil {
		f.during(u)
	}
	return f.png, f.err
}

type fixture struct {
	catalog  *catalog.Memory
	store    *datadir.Store
	clock    *clock.Stub
	renderer *fakeRenderer
	metrics  *metrics.Metrics
	worker   *Worker
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	c := clock.NewStub(testNow)
	store, err := datadir.New(t.TempDir())
	require.NoError(t, err)
	f := &fixture{
		catalog:  catalog.NewMemory(c),
		store:    store,
		clock:    c,
		renderer: &fakeRenderer{png: testPNG},
		metrics:  metrics.New(),
	}
	f.worker = NewWorker(Params{
		Checkout: f.catalog,
		Blobs:    f.store,
		Renderer: f.renderer,
		Cadence:  refresh.Hourly,
		Clock:    c,
		Workers:  1,
		Metrics:  f.metrics,
	})
	return f
}

func (f *fixture) crawled(t *testing.T, raw string) weburl.URL {
	t.Helper()
	u := weburl.MustParse(raw)
	require.NoError(t, f.catalog.PromoteToCrawled(context.Background(), u, 200))
	return u
}

func (f *fixture) find(t *testing.T, u weburl.URL) (catalog.PhotoRecord, error) {
	t.Helper()
	loc := catalog.Location{Domain: u.Domain(), Cadence: refresh.Hourly, Bucket: refresh.Hourly.Bucket(f.clock.Now())}
	return f.catalog.FindFile(context.Background(), loc, u.Directory(), u.Filename())
}

func TestWorker_NothingEligible(t *testing.T) {
	f := newFixture(t)

	worked, err := f.worker.Tick(context.Background())
	require.NoError(t, err)
	assert.False(t, worked)
	assert.Zero(t, f.renderer.calls)
}

func TestWorker_CapturesAndFinalizes(t *testing.T) {
	f := newFixture(t)
	u := f.crawled(t, "https://example.com/blog/post")

	worked, err := f.worker.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	photo, err := f.find(t, u)
	require.NoError(t, err)
	assert.Equal(t, "2024030514", photo.CapturedAt)
	assert.Equal(t, "hourly", photo.RefreshRate)
	assert.Equal(t, u.Hash(), photo.URLID)
	assert.Equal(t, int64(len(testPNG)), photo.Filesize)
	assert.False(t, photo.Loading())

	data, err := f.store.Read(photo.ID, 0, 1024)
	require.NoError(t, err)
	assert.Equal(t, testPNG, data)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Captures.WithLabelValues(resultCaptured)))
}

func TestWorker_PlaceholderVisibleWhileRendering(t *testing.T) {
	f := newFixture(t)
	u := f.crawled(t, "https://example.com/slow")

	f.renderer.during = func(weburl.URL) {
		photo, err := f.find(t, u)
		require.NoError(t, err)
		assert.True(t, photo.Loading())

		data, err := f.store.Read(photo.ID, 0, 64)
		require.NoError(t, err)
		assert.Equal(t, datadir.Placeholder, data)
	}

	_, err := f.worker.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, f.renderer.calls)
}

func TestWorker_OneCapturePerBucket(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.crawled(t, "https://example.com/")

	worked, err := f.worker.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, worked)

	worked, err = f.worker.Tick(ctx)
	require.NoError(t, err)
	assert.False(t, worked)

	f.clock.Advance(time.Hour)
	worked, err = f.worker.Tick(ctx)
	require.NoError(t, err)
	assert.True(t, worked)
	assert.Equal(t, 2, f.renderer.calls)
}

func TestWorker_RenderFailureKeepsPlaceholder(t *testing.T) {
	f := newFixture(t)
	u := f.crawled(t, "https://example.com/broken")
	f.renderer.err = errors.New("net::ERR_NAME_NOT_RESOLVED")

	worked, err := f.worker.Tick(context.Background())
	require.NoError(t, err)
	assert.True(t, worked)

	photo, err := f.find(t, u)
	require.NoError(t, err)
	assert.True(t, photo.Loading())
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.Captures.WithLabelValues(resultFailed)))
}

type unavailableCheckout struct {
	catalog.Checkout
}

func (unavailableCheckout) CountEligible(context.Context, refresh.Cadence) (int, error) {
	return 0, catalog.ErrBackendUnavailable
}

func TestWorker_SurfacesBackendErrors(t *testing.T) {
	w := NewWorker(Params{Checkout: unavailableCheckout{}, Cadence: refresh.Hourly})

	_, err := w.Tick(context.Background())
	require.ErrorIs(t, err, catalog.ErrBackendUnavailable)
}

func TestWorker_JitterStopsOnCancel(t *testing.T) {
	w := NewWorker(Params{MaxJitter: time.Hour})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, w.jitter(ctx), context.Canceled)
}

func TestChromeRenderer_Clamp(t *testing.T) {
	r := &ChromeRenderer{cfg: RendererConfig{Width: 1280, Height: 800, MaxHeight: 5000}}

	assert.Equal(t, int64(800), r.clamp(300))
	assert.Equal(t, int64(2400), r.clamp(2400))
	assert.Equal(t, int64(5000), r.clamp(90000))

	r.cfg.MaxHeight = 0
	assert.Equal(t, int64(90000), r.clamp(90000))
}
