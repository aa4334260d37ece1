package notify

import (
	"context"
	"log/slog"

	"farewatch/internal/types"
)

// EmailSender is the transport this notifier dispatches through.
type EmailSender interface {
	Send(ctx context.Context, input types.SendInput) (string, error)
}

// DeliveryRecorder counts delivery outcomes for operational metrics.
type DeliveryRecorder interface {
	RecordDelivery(ctx context.Context, status types.SendStatus)
}

// EmailNotifier renders the alert email and sends it through the configured
// transport. It never returns an error: every path collapses into a
// SendOutcome so the trigger can record the attempt uniformly.
type EmailNotifier struct {
	renderer *Renderer
	sender   EmailSender
	metrics  DeliveryRecorder
	logger   *slog.Logger
}

// NewEmailNotifier wires an EmailNotifier.
func NewEmailNotifier(renderer *Renderer, sender EmailSender, logger *slog.Logger) *EmailNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &EmailNotifier{renderer: renderer, sender: sender, logger: logger}
}

// WithDeliveryRecorder attaches a metrics sink. Every Notify outcome,
// including skips, is counted once.
func (n *EmailNotifier) WithDeliveryRecorder(rec DeliveryRecorder) *EmailNotifier {
	n.metrics = rec
	return n
}

// Notify renders and sends the price-drop alert for one watch.
//
// Watches whose channel excludes email are skipped rather than failed: the
// decision to notify stands, there is just no email transport for it. SMS
// delivery is not implemented; a "both" watch still gets its email.
func (n *EmailNotifier) Notify(ctx context.Context, watch *types.Watch, best *types.BestOffer) types.SendOutcome {
	if !watch.Channel.WantsEmail() {
		return n.record(ctx, types.SendOutcome{
			Status: types.SendStatusSkipped,
			Reason: "watch channel does not include email",
		})
	}

	rendered, err := n.renderer.Render(watch, best)
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to render alert email",
			"watch_id", watch.ID, "error", err)
		return n.record(ctx, types.SendOutcome{
			Status: types.SendStatusFailed,
			Reason: "template rendering failed",
		})
	}

	messageID, err := n.sender.Send(ctx, types.SendInput{
		To:      watch.Email,
		Subject: rendered.Subject,
		HTML:    rendered.BodyHTML,
		Text:    rendered.BodyText,
	})
	if err != nil {
		n.logger.ErrorContext(ctx, "failed to send alert email",
			"watch_id", watch.ID, "route", watch.Route(), "error", err)
		return n.record(ctx, types.SendOutcome{
			Status: types.SendStatusFailed,
			Reason: err.Error(),
		})
	}

	n.logger.InfoContext(ctx, "alert email sent",
		"watch_id", watch.ID,
		"route", watch.Route(),
		"price_usd", best.Offer.PriceUsd,
		"message_id", messageID,
	)
	return n.record(ctx, types.SendOutcome{
		Status:    types.SendStatusSent,
		MessageID: messageID,
	})
}

// record counts the outcome when a metrics sink is attached.
func (n *EmailNotifier) record(ctx context.Context, outcome types.SendOutcome) types.SendOutcome {
	if n.metrics != nil {
		n.metrics.RecordDelivery(ctx, outcome.Status)
	}
	return outcome
}
