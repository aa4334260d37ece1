package engine

import (
	"context"
	"log/slog"
	"time"

	"farewatch/internal/types"
)

// WatchLister is the slice of the watch repository the sweeper reads.
type WatchLister interface {
	ListActive(ctx context.Context) ([]*types.Watch, error)
}

// TriggerRunner evaluates one watch. Satisfied by *Trigger.
type TriggerRunner interface {
	Run(ctx context.Context, watch *types.Watch) types.TriggerResult
}

// SweepRecorder receives the summary of a completed sweep, typically for
// metrics emission. May be nil.
type SweepRecorder interface {
	RecordSweep(ctx context.Context, summary types.SweepSummary)
}

// SweepConfig tunes the sweep loop.
type SweepConfig struct {
	// Pacing is the fixed delay between successive watch evaluations,
	// bounding burst load on the fare search provider.
	Pacing time.Duration
	// ResultPreviewLimit caps the per-watch outcome list in the summary.
	ResultPreviewLimit int
}

// Sweeper iterates all active watches and evaluates each through the
// trigger, with failure isolation and fixed pacing. Watches are processed
// sequentially; sweeps are not meant to overlap, which the scheduler
// enforces by skipping ticks while a sweep is in flight.
type Sweeper struct {
	watches  WatchLister
	trigger  TriggerRunner
	recorder SweepRecorder
	cfg      SweepConfig
	logger   *slog.Logger
	nowFn    func() time.Time
	sleepFn  func(ctx context.Context, d time.Duration)
}

// NewSweeper wires a Sweeper from its collaborators. recorder may be nil.
func NewSweeper(
	watches WatchLister,
	trigger TriggerRunner,
	recorder SweepRecorder,
	cfg SweepConfig,
	logger *slog.Logger,
) *Sweeper {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		watches:  watches,
		trigger:  trigger,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
		nowFn:    time.Now,
		sleepFn:  sleepWithContext,
	}
}

// WithNow overrides the sweeper's clock. Intended for tests.
func (s *Sweeper) WithNow(fn func() time.Time) *Sweeper {
	s.nowFn = fn
	return s
}

// WithSleep overrides the pacing sleep. Intended for tests.
func (s *Sweeper) WithSleep(fn func(ctx context.Context, d time.Duration)) *Sweeper {
	s.sleepFn = fn
	return s
}

// Sweep runs one full pass over all active watches. One watch failing never
// stops the pass: its outcome is recorded as an error and the loop moves on.
// Only a failure to list the watches at all is returned as an error.
func (s *Sweeper) Sweep(ctx context.Context) (types.SweepSummary, error) {
	started := s.nowFn()
	summary := types.SweepSummary{StartedAt: started}

	watches, err := s.watches.ListActive(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "sweep aborted: failed to list active watches", "error", err)
		return summary, err
	}

	summary.Total = len(watches)
	s.logger.InfoContext(ctx, "sweep started", "watches", len(watches))

	for i, watch := range watches {
		if i > 0 && s.cfg.Pacing > 0 {
			s.sleepFn(ctx, s.cfg.Pacing)
		}
		if ctx.Err() != nil {
			s.logger.WarnContext(ctx, "sweep cancelled",
				"processed", i, "remaining", len(watches)-i)
			break
		}

		result := s.runOne(ctx, watch)

		switch result.Action {
		case types.ActionNotify:
			summary.Notified++
		case types.ActionError:
			summary.Errors++
		default:
			summary.Noop++
		}

		if len(summary.Results) < s.cfg.ResultPreviewLimit {
			summary.Results = append(summary.Results, outcomeOf(watch, result))
		}
	}

	summary.Duration = s.nowFn().Sub(started)
	s.logger.InfoContext(ctx, "sweep finished",
		"total", summary.Total,
		"notified", summary.Notified,
		"noop", summary.Noop,
		"errors", summary.Errors,
		"duration", summary.Duration,
	)

	if s.recorder != nil {
		s.recorder.RecordSweep(ctx, summary)
	}

	return summary, nil
}

// runOne evaluates a single watch, converting a panic into an error outcome
// so a pathological watch cannot take down the whole sweep.
func (s *Sweeper) runOne(ctx context.Context, watch *types.Watch) (result types.TriggerResult) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.ErrorContext(ctx, "trigger panicked",
				"watch_id", watch.ID, "panic", r)
			result = types.TriggerResult{
				WatchID: watch.ID,
				Action:  types.ActionError,
				Reason:  "trigger panicked",
			}
		}
	}()
	return s.trigger.Run(ctx, watch)
}

// outcomeOf condenses a trigger result into a sweep preview entry.
func outcomeOf(watch *types.Watch, result types.TriggerResult) types.WatchOutcome {
	out := types.WatchOutcome{
		WatchID: watch.ID,
		Route:   watch.Route(),
		Action:  result.Action,
		Reason:  result.Reason,
	}
	if result.Best != nil {
		price := result.Best.Offer.PriceUsd
		out.PriceUsd = &price
		if watch.LastBestUsd != nil {
			delta := *watch.LastBestUsd - price
			out.DeltaUsd = &delta
		}
	}
	return out
}

func sleepWithContext(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
