// Package metrics exports Prometheus counters for the fetch, capture and
// filesystem paths. Every recording method is safe to call on a nil
// *Metrics, so components can run without instrumentation.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dendrascience/shotfs/internal/logger"
)

const namespace = "shotfs"

// Metrics holds all shotfs collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	Fetches         *prometheus.CounterVec
	LinksQueued     prometheus.Counter
	Captures        *prometheus.CounterVec
	CaptureDuration prometheus.Histogram
	EligibleRecords prometheus.Gauge
	FSOperations    *prometheus.CounterVec
	LatestLookups   *prometheus.CounterVec
}

// New registers every collector, plus the Go runtime and process
// collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		Fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetches_total",
			Help:      "Pages fetched by the crawler, by outcome",
		}, []string{"result"}),
		LinksQueued: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_queued_total",
			Help:      "Discovered links added to the uncrawled queue",
		}),
		Captures: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "captures_total",
			Help:      "Capture attempts by outcome",
		}, []string{"result"}),
		CaptureDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "capture_duration_seconds",
			Help:      "Time from checkout to finalized photo record",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		EligibleRecords: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "eligible_records",
			Help:      "Crawled records not yet captured in the current bucket, as last seen by a capture worker",
		}),
		FSOperations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fs",
			Name:      "operations_total",
			Help:      "Filesystem operations by kind and outcome",
		}, []string{"op", "result"}),
		LatestLookups: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fs",
			Name:      "latest_lookups_total",
			Help:      "Resolutions of the latest alias by cache outcome",
		}, []string{"result"}),
	}
}

// Registry exposes the registry, mostly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) ObserveFetch(result string) {
	if m == nil {
		return
	}
	m.Fetches.WithLabelValues(result).Inc()
}

func (m *Metrics) AddQueued(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.LinksQueued.Add(float64(n))
}

func (m *Metrics) ObserveCapture(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.Captures.WithLabelValues(result).Inc()
	if d > 0 {
		m.CaptureDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) SetEligible(n int) {
	if m == nil {
		return
	}
	m.EligibleRecords.Set(float64(n))
}

func (m *Metrics) ObserveFSOperation(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.FSOperations.WithLabelValues(op, result).Inc()
}

func (m *Metrics) ObserveLatestLookup(result string) {
	if m == nil {
		return
	}
	m.LatestLookups.WithLabelValues(result).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string, m *Metrics, log logger.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		log.Info("Serving metrics", logger.String("addr", addr))
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
