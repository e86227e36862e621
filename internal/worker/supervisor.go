// Package worker runs pools of tick-driven workers until they are told to
// stop or a fatal error occurs. A failed tick is logged and the worker
// backs off before trying again; consecutive failures lengthen the pause.
//
// Stopping is cooperative: a worker finishes the tick it is in and checks
// for cancellation before starting the next one.
package worker

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dendrascience/shotfs/internal/clock"
	"github.com/dendrascience/shotfs/internal/logger"
	"github.com/dendrascience/shotfs/internal/retry"
)

// ErrIdle is the cancellation cause when the pool stopped for being idle.
var ErrIdle = errors.New("stopped after idle period")

// Ticker performs one unit of work and reports whether there was any.
type Ticker interface {
	Tick(ctx context.Context) (bool, error)
}

// TickFunc adapts a function to Ticker.
type TickFunc func(ctx context.Context) (bool, error)

func (f TickFunc) Tick(ctx context.Context) (bool, error) { return f(ctx) }

// Params configures a Supervisor.
type Params struct {
	Clock  clock.Clock
	Logger logger.Logger
	// StopIfIdle stops every worker once no tick has done any work for
	// this long. Zero disables it.
	StopIfIdle time.Duration
	// CheckInterval is how often idleness is checked. Defaults to one
	// second.
	CheckInterval time.Duration
	// Fatal decides which tick errors stop the pool. Every other error is
	// logged and the worker carries on after a backoff. Nil means no error
	// is fatal.
	Fatal func(error) bool
	// Backoff paces a worker after failed ticks. Only the delay fields are
	// used; a worker never gives up.
	Backoff retry.Config
}

// Supervisor owns a group of workers.
type Supervisor struct {
	ctx        context.Context
	cancel     context.CancelCauseFunc
	group      *errgroup.Group
	clock      clock.Clock
	log        logger.Logger
	fatal      func(error) bool
	backoff    retry.Config
	lastActive atomic.Int64
}

// New returns a Supervisor whose workers stop when ctx is done.
func New(ctx context.Context, p Params) *Supervisor {
	if p.Clock == nil {
		p.Clock = clock.Real{}
	}
	if p.Logger == nil {
		p.Logger = logger.NewNop()
	}
	if p.Fatal == nil {
		p.Fatal = func(error) bool { return false }
	}
	if p.CheckInterval <= 0 {
		p.CheckInterval = time.Second
	}

	ctx, cancel := context.WithCancelCause(ctx)
	group, gctx := errgroup.WithContext(ctx)
	s := &Supervisor{
		ctx:     gctx,
		cancel:  cancel,
		group:   group,
		clock:   p.Clock,
		log:     p.Logger,
		fatal:   p.Fatal,
		backoff: p.Backoff,
	}
	s.touch()

	if p.StopIfIdle > 0 {
		group.Go(func() error {
			s.watchIdle(p.StopIfIdle, p.CheckInterval)
			return nil
		})
	}
	return s
}

// Go starts n workers built by newTicker. A worker whose tick did no work
// sleeps for idlePause before trying again.
func (s *Supervisor) Go(name string, n int, idlePause time.Duration, newTicker func(i int) Ticker) {
	for i := range n {
		t := newTicker(i)
		log := s.log.With(logger.String("worker", name), logger.Int("id", i))
		s.group.Go(func() error {
			return s.run(t, idlePause, log)
		})
	}
	if n > 0 {
		s.log.Info("Started workers", logger.String("worker", name), logger.Int("count", n))
	}
}

// Stop asks every worker to finish its current tick and exit.
func (s *Supervisor) Stop() {
	s.cancel(context.Canceled)
}

// Wait blocks until every worker has exited and returns the first fatal
// error.
func (s *Supervisor) Wait() error {
	err := s.group.Wait()
	s.cancel(context.Canceled)
	return err
}

// Cause explains why the workers stopped, once they have.
func (s *Supervisor) Cause() error {
	return context.Cause(s.ctx)
}

func (s *Supervisor) run(t Ticker, idlePause time.Duration, log logger.Logger) error {
	failures := 0
	for s.ctx.Err() == nil {
		worked, err := t.Tick(context.WithoutCancel(s.ctx))
		if err != nil {
			if s.fatal(err) {
				log.Error("Worker stopped", logger.Error(err))
				return fmt.Errorf("worker failed: %w", err)
			}
			failures++
			pause := s.backoff.Delay(failures)
			log.Warn("Tick failed, backing off",
				logger.Error(err),
				logger.Int("failures", failures),
				logger.Duration("pause", pause),
			)
			s.sleep(pause)
			continue
		}
		failures = 0
		if worked {
			s.touch()
			continue
		}
		s.sleep(idlePause)
	}
	return nil
}

func (s *Supervisor) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
	case <-t.C:
	}
}

func (s *Supervisor) touch() {
	s.lastActive.Store(s.clock.Now().UnixNano())
}

func (s *Supervisor) idleFor() time.Duration {
	return s.clock.Now().Sub(time.Unix(0, s.lastActive.Load()))
}

func (s *Supervisor) watchIdle(limit, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if idle := s.idleFor(); idle >= limit {
				s.log.Info("Stopping idle workers", logger.Duration("idle", idle))
				s.cancel(ErrIdle)
				return
			}
		}
	}
}
