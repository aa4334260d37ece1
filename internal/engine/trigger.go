package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"farewatch/internal/types"
)

// Trigger result reasons. These surface in API responses and sweep previews,
// so they are stable strings rather than ad-hoc messages.
const (
	ReasonInactive           = "watch is inactive"
	ReasonWindowExpired      = "travel window has expired"
	ReasonNoOffers           = "no offers within stop ceiling"
	ReasonAboveTarget        = "price above target"
	ReasonAlreadyNotified    = "already notified at or below this price"
	ReasonWithinNotifyMargin = "improvement within notify margin"
	ReasonPriceDrop          = "price at or below target"
)

// WatchStateStore is the slice of the watch repository the trigger mutates.
type WatchStateStore interface {
	UpdatePriceState(ctx context.Context, id string, state types.PriceState, expectLastChecked *time.Time) error
	Deactivate(ctx context.Context, id string, reason types.DeactivateReason, now time.Time) error
}

// AlertStore records one row per NOTIFY decision.
type AlertStore interface {
	Insert(ctx context.Context, alert *types.Alert) error
}

// Notifier renders and sends the price-drop notification for one watch.
type Notifier interface {
	Notify(ctx context.Context, watch *types.Watch, best *types.BestOffer) types.SendOutcome
}

// TriggerConfig tunes the notify decision policy.
type TriggerConfig struct {
	// MinNotifyDeltaUsd is the margin by which a new price must undercut the
	// last notified price before a repeat notification is allowed.
	MinNotifyDeltaUsd float64
}

// Trigger evaluates one watch end to end: date expansion, best-offer
// selection, the notify/no-op decision, notification dispatch, and the
// atomic write-back of the watch's price state. It is the only component
// that mutates watch price state.
type Trigger struct {
	selector *Selector
	watches  WatchStateStore
	alerts   AlertStore
	notifier Notifier
	cfg      TriggerConfig
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewTrigger wires a Trigger from its collaborators.
func NewTrigger(
	selector *Selector,
	watches WatchStateStore,
	alerts AlertStore,
	notifier Notifier,
	cfg TriggerConfig,
	logger *slog.Logger,
) *Trigger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Trigger{
		selector: selector,
		watches:  watches,
		alerts:   alerts,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		nowFn:    time.Now,
	}
}

// WithNow overrides the trigger's clock. Intended for tests.
func (t *Trigger) WithNow(fn func() time.Time) *Trigger {
	t.nowFn = fn
	return t
}

// Run performs one trigger evaluation for one watch. It is safe to invoke
// repeatedly for the same watch (repeat runs at an unchanged price are
// no-ops) and concurrently for different watches. The price-state write-back
// is conditional on the last_checked value read at entry, so a concurrent
// writer on the same watch loses at most this run's state, never half of it.
func (t *Trigger) Run(ctx context.Context, watch *types.Watch) types.TriggerResult {
	result := types.TriggerResult{WatchID: watch.ID}
	now := t.nowFn()

	if !watch.Active {
		result.Action = types.ActionNoop
		result.Reason = ReasonInactive
		return result
	}

	if watch.Expired(now) {
		if err := t.watches.Deactivate(ctx, watch.ID, types.DeactivateReasonExpired, now); err != nil {
			t.logger.ErrorContext(ctx, "failed to deactivate expired watch",
				"watch_id", watch.ID, "error", err)
			result.Action = types.ActionError
			result.Reason = "failed to deactivate expired watch"
			return result
		}
		result.Action = types.ActionNoop
		result.Reason = ReasonWindowExpired
		return result
	}

	combos := GenerateCombinations(watch.Start, watch.End, watch.FlexDays, watch.TripType, now)

	best, err := t.selector.SelectBest(ctx, watch, combos)
	if err != nil {
		t.logger.ErrorContext(ctx, "fare evaluation failed",
			"watch_id", watch.ID, "route", watch.Route(), "error", err)
		result.Action = types.ActionError
		result.Reason = fmt.Sprintf("fare search failed: %v", err)
		t.persist(ctx, watch, types.PriceState{CheckedAt: now}, &result)
		return result
	}

	if best == nil {
		result.Action = types.ActionNoop
		result.Reason = ReasonNoOffers
		t.persist(ctx, watch, types.PriceState{CheckedAt: now}, &result)
		return result
	}

	result.Best = best
	price := best.Offer.PriceUsd

	state := types.PriceState{CheckedAt: now}
	if watch.LastBestUsd == nil || price < *watch.LastBestUsd {
		state.BestUsd = &price
	}

	if !t.shouldNotify(watch, price) {
		result.Action = types.ActionNoop
		switch {
		case price > watch.TargetUsd:
			result.Reason = ReasonAboveTarget
		case watch.LastNotifiedUsd != nil && price < *watch.LastNotifiedUsd:
			result.Reason = ReasonWithinNotifyMargin
		default:
			result.Reason = ReasonAlreadyNotified
		}
		t.persist(ctx, watch, state, &result)
		return result
	}

	outcome := t.notifier.Notify(ctx, watch, best)
	result.Notification = &outcome
	result.Action = types.ActionNotify
	result.Reason = ReasonPriceDrop

	// A failed send leaves last_notified_usd stale so the next run retries
	// the notification at the same or better price.
	if outcome.Status == types.SendStatusSent {
		state.NotifiedUsd = &price
	}

	t.recordAlert(ctx, watch, price, outcome)
	t.persist(ctx, watch, state, &result)
	return result
}

// shouldNotify applies the anti-spam policy: notify only at or below target,
// and only when there is no prior notification or the price undercuts the
// last notified price by at least the configured margin.
func (t *Trigger) shouldNotify(watch *types.Watch, price float64) bool {
	if price > watch.TargetUsd {
		return false
	}
	if watch.LastNotifiedUsd == nil {
		return true
	}
	return price < *watch.LastNotifiedUsd-t.cfg.MinNotifyDeltaUsd
}

// persist writes the price-state slice in one conditional update. A write
// failure flips the result to ERROR; other watches are unaffected.
func (t *Trigger) persist(ctx context.Context, watch *types.Watch, state types.PriceState, result *types.TriggerResult) {
	if err := t.watches.UpdatePriceState(ctx, watch.ID, state, watch.LastChecked); err != nil {
		t.logger.ErrorContext(ctx, "failed to persist watch price state",
			"watch_id", watch.ID, "error", err)
		result.Action = types.ActionError
		result.Reason = fmt.Sprintf("failed to persist watch state: %v", err)
	}
}

// recordAlert logs the NOTIFY decision durably. Best effort: an alert row
// failing to insert never changes the trigger outcome.
func (t *Trigger) recordAlert(ctx context.Context, watch *types.Watch, price float64, outcome types.SendOutcome) {
	old := watch.LastNotifiedUsd
	delta := 0.0
	if old != nil {
		delta = *old - price
	}

	alert := &types.Alert{
		ID:          "al_" + uuid.NewString(),
		WatchID:     watch.ID,
		Route:       watch.Route(),
		OldPriceUsd: old,
		NewPriceUsd: price,
		DeltaUsd:    delta,
		Sent:        outcome.Status == types.SendStatusSent,
		MessageID:   outcome.MessageID,
		CreatedAt:   t.nowFn(),
	}
	if err := t.alerts.Insert(ctx, alert); err != nil {
		t.logger.WarnContext(ctx, "failed to record alert",
			"watch_id", watch.ID, "error", err)
	}
}
