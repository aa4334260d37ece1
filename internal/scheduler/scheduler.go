// Package scheduler owns the process-level recurring jobs: the sweep cadence
// and alert archival. Jobs are explicitly constructed and started; nothing
// runs as a package-load side effect.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"farewatch/internal/types"
)

// SweepRunner is the sweep entry point the scheduler drives.
type SweepRunner interface {
	Sweep(ctx context.Context) (types.SweepSummary, error)
}

// SweepScheduler fires the sweep at a fixed interval with an explicit
// start/stop lifecycle. Sweeps never overlap: a tick arriving while a sweep
// is still in flight is skipped, which also protects the fare provider from
// doubled load when a sweep overruns the interval.
type SweepScheduler struct {
	sweeper  SweepRunner
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}

	sweeping sync.Mutex
}

// NewSweepScheduler creates a scheduler firing at the given interval.
func NewSweepScheduler(sweeper SweepRunner, interval time.Duration, logger *slog.Logger) *SweepScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &SweepScheduler{
		sweeper:  sweeper,
		interval: interval,
		logger:   logger,
	}
}

// Start launches the tick loop. Calling Start on a running scheduler is a
// no-op. The first sweep fires after one full interval, not immediately.
func (s *SweepScheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	s.running = true
	s.cancel = cancel
	s.done = make(chan struct{})

	go s.loop(loopCtx)
	s.logger.Info("sweep scheduler started", "interval", s.interval)
}

// Stop cancels the tick loop and waits for an in-flight sweep to finish.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	done := s.done
	s.mu.Unlock()

	cancel()
	<-done
	s.logger.Info("sweep scheduler stopped")
}

func (s *SweepScheduler) loop(ctx context.Context) {
	defer close(s.done)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs one sweep unless one is already in flight.
func (s *SweepScheduler) tick(ctx context.Context) {
	if !s.sweeping.TryLock() {
		s.logger.Warn("skipping sweep tick: previous sweep still running")
		return
	}
	defer s.sweeping.Unlock()

	if _, err := s.sweeper.Sweep(ctx); err != nil {
		s.logger.Error("scheduled sweep failed", "error", err)
	}
}

// RunNow fires one sweep immediately, outside the tick cadence, reusing the
// same non-overlap guard. Returns false when a sweep was already running.
func (s *SweepScheduler) RunNow(ctx context.Context) (types.SweepSummary, bool, error) {
	if !s.sweeping.TryLock() {
		return types.SweepSummary{}, false, nil
	}
	defer s.sweeping.Unlock()

	summary, err := s.sweeper.Sweep(ctx)
	return summary, true, err
}
