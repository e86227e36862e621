// Package stats reports capture throughput over trailing windows.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dendrascience/shotfs/catalog"
	"github.com/dendrascience/shotfs/internal/clock"
	"github.com/dendrascience/shotfs/internal/logger"
)

// Windows are the trailing periods every report covers.
var Windows = []time.Duration{
	5 * time.Minute,
	15 * time.Minute,
	30 * time.Minute,
	time.Hour,
}

// Throughput is the number of finalized captures in one window.
type Throughput struct {
	Window time.Duration
	Count  int
	// Complete is false when the process has not been running for the
	// whole window, which makes PerMinute an underestimate.
	Complete bool
}

// PerMinute is the average capture rate over the window.
func (t Throughput) PerMinute() float64 {
	return float64(t.Count) / t.Window.Minutes()
}

func (t Throughput) String() string {
	if !t.Complete {
		return fmt.Sprintf("%s: %d (n/a)", shortDuration(t.Window), t.Count)
	}
	return fmt.Sprintf("%s: %d (%.2f/min)", shortDuration(t.Window), t.Count, t.PerMinute())
}

func shortDuration(d time.Duration) string {
	if d%time.Hour == 0 {
		return fmt.Sprintf("%dh", d/time.Hour)
	}
	return fmt.Sprintf("%dm", d/time.Minute)
}

// Collect counts captures for every window ending at now. started is when
// the process began capturing.
func Collect(ctx context.Context, s catalog.Stats, now, started time.Time) ([]Throughput, error) {
	out := make([]Throughput, 0, len(Windows))
	for _, w := range Windows {
		n, err := s.CountPhotosSince(ctx, now.Add(-w))
		if err != nil {
			return nil, fmt.Errorf("failed to count captures in the last %s: %w", w, err)
		}
		out = append(out, Throughput{
			Window:   w,
			Count:    n,
			Complete: !now.Add(-w).Before(started),
		})
	}
	return out, nil
}

// Reporter logs throughput on a cron schedule.
type Reporter struct {
	cron    *cron.Cron
	stats   catalog.Stats
	clock   clock.Clock
	started time.Time
	log     logger.Logger
}

// NewReporter validates schedule, a standard five field cron expression
// or a descriptor such as @hourly.
func NewReporter(schedule string, s catalog.Stats, c clock.Clock, log logger.Logger) (*Reporter, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	r := &Reporter{
		cron:    cron.New(cron.WithParser(parser), cron.WithLogger(cronLogger{log}), cron.WithChain(cron.Recover(cronLogger{log}))),
		stats:   s,
		clock:   c,
		started: c.Now(),
		log:     log,
	}
	if _, err := r.cron.AddFunc(schedule, r.report); err != nil {
		return nil, fmt.Errorf("invalid stats schedule %q: %w", schedule, err)
	}
	return r, nil
}

// Start runs the schedule in the background.
func (r *Reporter) Start() {
	r.cron.Start()
}

// Stop halts the schedule and waits for a running report to finish.
func (r *Reporter) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Reporter) report() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := Collect(ctx, r.stats, r.clock.Now(), r.started)
	if err != nil {
		r.log.Warn("Failed to collect throughput", logger.Error(err))
		return
	}
	fields := make([]logger.Field, 0, len(results)+1)
	fields = append(fields, logger.Time("started", r.started))
	for _, t := range results {
		fields = append(fields, logger.String("last_"+shortDuration(t.Window), t.String()))
	}
	r.log.Info("Throughput", fields...)
}

// cronLogger sends cron's messages, recovered job panics included, to a
// Logger.
type cronLogger struct {
	log logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.log.Debug(msg, kvFields(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.log.Error(msg, append(kvFields(keysAndValues), logger.Error(err))...)
}

func kvFields(kv []any) []logger.Field {
	fields := make([]logger.Field, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		fields = append(fields, logger.Any(fmt.Sprint(kv[i]), kv[i+1]))
	}
	return fields
}
