// Package scheduler drives repeated orchestrator passes on a fixed
// interval, enforcing the single-flight and graceful-shutdown
// guarantees the pipeline depends on.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/M1nhHoang/marketintel/internal/domain"
)

// defaultStartupDelay lets the data store warm before the first tick
// when the caller doesn't specify one.
const defaultStartupDelay = 1 * time.Minute

// orchestratorRunner is the one method the scheduler needs from
// *orchestrator.Orchestrator, narrowed so tests can fake it.
type orchestratorRunner interface {
	Run(ctx context.Context) (domain.RunHistory, error)
}

// Scheduler triggers Orchestrator.Run on a fixed interval. Only one
// pass ever runs at a time: if a tick arrives while a pass is still in
// progress, it is skipped, never queued.
type Scheduler struct {
	orch         orchestratorRunner
	interval     time.Duration
	startupDelay time.Duration
	grace        time.Duration
	log          zerolog.Logger

	mu      sync.Mutex
	running bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// New constructs a Scheduler. startupDelay defers the first tick;
// grace bounds how long a run already in progress is allowed to finish
// after Stop is called.
func New(orch orchestratorRunner, interval, startupDelay, grace time.Duration, log zerolog.Logger) *Scheduler {
	if interval <= 0 {
		interval = time.Hour
	}
	if startupDelay <= 0 {
		startupDelay = defaultStartupDelay
	}
	return &Scheduler{
		orch:         orch,
		interval:     interval,
		startupDelay: startupDelay,
		grace:        grace,
		log:          log.With().Str("component", "scheduler").Logger(),
		stop:         make(chan struct{}),
	}
}

// Start begins the ticking loop in the background. The first tick
// fires after startupDelay, not immediately.
func (s *Scheduler) Start() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		s.log.Info().Dur("interval", s.interval).Dur("startup_delay", s.startupDelay).Msg("scheduler started")

		select {
		case <-time.After(s.startupDelay):
		case <-s.stop:
			return
		}

		s.tick()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.stop:
				return
			case <-ticker.C:
				s.tick()
			}
		}
	}()
}

// tick runs one pass if none is already in flight, otherwise it logs a
// warning and skips.
func (s *Scheduler) tick() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.log.Warn().Msg("previous run still in progress, skipping tick")
		return
	}
	s.running = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	s.runOnce(context.Background())
}

func (s *Scheduler) runOnce(ctx context.Context) {
	start := time.Now()
	rh, err := s.orch.Run(ctx)
	if err != nil {
		s.log.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("run failed")
		return
	}
	s.log.Info().Str("run_id", rh.ID).Dur("elapsed", time.Since(start)).Msg("run completed")
}

// RunOnce performs exactly one synchronous run, for `--once` mode. It
// bypasses the single-flight/ticker machinery entirely.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	_, err := s.orch.Run(ctx)
	return err
}

// Stop signals the ticking loop to stop enqueueing new work and waits
// up to grace for any in-flight run to finish. It does not cancel a
// running pass itself: ticked passes run under context.Background().
func (s *Scheduler) Stop() {
	close(s.stop)

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(s.grace):
		s.log.Warn().Dur("grace", s.grace).Msg("shutdown grace window elapsed before run finished")
	}
	s.log.Info().Msg("scheduler stopped")
}
