package types

import (
	"fmt"
	"time"
)

// Watch is the core domain entity: a user's standing request to be alerted
// when a route's best fare drops below a target price.
type Watch struct {
	ID     string `json:"id" db:"id"`
	UserID string `json:"user_id,omitempty" db:"user_id"` // empty = anonymous bucket

	// Route
	Origin      string     `json:"origin" db:"origin"`
	Destination string     `json:"destination" db:"destination"`
	Cabin       CabinClass `json:"cabin" db:"cabin"`
	Adults      int        `json:"adults" db:"adults"`
	Children    int        `json:"children" db:"children"`
	Infants     int        `json:"infants" db:"infants"`

	// Date window. Start and End are calendar dates (UTC midnight); FlexDays
	// widens the window on both sides when generating candidate dates.
	Start    time.Time `json:"start" db:"window_start"`
	End      time.Time `json:"end" db:"window_end"`
	FlexDays int       `json:"flex_days" db:"flex_days"`
	TripType TripType  `json:"trip_type" db:"trip_type"`

	// Pricing policy
	TargetUsd float64 `json:"target_usd" db:"target_usd"`
	MaxStops  int     `json:"max_stops" db:"max_stops"`

	// Contact
	Channel Channel `json:"channel" db:"channel"`
	Email   string  `json:"email,omitempty" db:"email"`
	Phone   string  `json:"phone,omitempty" db:"phone"`

	// Lifecycle
	Active           bool             `json:"active" db:"active"`
	DeactivateReason DeactivateReason `json:"deactivate_reason,omitempty" db:"deactivate_reason"`

	// Price state, mutated only by the trigger engine.
	LastBestUsd     *float64   `json:"last_best_usd,omitempty" db:"last_best_usd"`
	LastNotifiedUsd *float64   `json:"last_notified_usd,omitempty" db:"last_notified_usd"`
	LastChecked     *time.Time `json:"last_checked,omitempty" db:"last_checked"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Route renders the watch's route as "ORG-DST" for logs and subjects.
func (w *Watch) Route() string {
	return w.Origin + "-" + w.Destination
}

// Expired reports whether the entire flex-widened window lies before today.
// An expired watch has nothing left to search; the sweep deactivates it.
func (w *Watch) Expired(today time.Time) bool {
	limit := w.End.AddDate(0, 0, w.FlexDays)
	return limit.Before(DateOnly(today))
}

// Validate enforces the watch invariants at creation time:
// end >= start, start not in the past, target > 0, max stops >= 0, and
// contact details matching the selected channel.
func (w *Watch) Validate(now time.Time) error {
	if w.End.Before(w.Start) {
		return NewAppError(ErrCodeValidationDateWindow, "end date must not be before start date", nil)
	}
	if w.Start.Before(DateOnly(now)) {
		return NewAppError(ErrCodeValidationDateWindow, "start date must not be in the past", nil)
	}
	if w.TargetUsd <= 0 {
		return NewAppError(ErrCodeValidationTargetPrice, "target price must be positive", nil)
	}
	if w.MaxStops < 0 {
		return NewAppError(ErrCodeValidationMaxStops, "max stops must not be negative", nil)
	}
	if w.FlexDays < 0 {
		return NewAppError(ErrCodeValidationDateWindow, "flex days must not be negative", nil)
	}
	if !w.Cabin.Valid() {
		return NewAppError(ErrCodeValidationInvalidCabin, fmt.Sprintf("unknown cabin class %q", w.Cabin), nil)
	}
	if !w.TripType.Valid() {
		return NewAppError(ErrCodeValidationInvalidTripType, fmt.Sprintf("unknown trip type %q", w.TripType), nil)
	}
	if w.Channel.WantsEmail() && w.Email == "" {
		return NewAppError(ErrCodeValidationMissingField, "email address required for email channel", nil)
	}
	if (w.Channel == ChannelSMS || w.Channel == ChannelBoth) && w.Phone == "" {
		return NewAppError(ErrCodeValidationMissingField, "phone number required for sms channel", nil)
	}
	return nil
}

// DateOnly truncates a timestamp to its UTC calendar date (midnight).
func DateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateCombination is one candidate (depart, return?) pair submitted to the
// fare search provider. Return is nil for one-way trips.
type DateCombination struct {
	Depart time.Time  `json:"depart"`
	Return *time.Time `json:"return,omitempty"`
}

// Segment is one flight leg of an offer, sufficient to render a
// human-readable itinerary summary.
type Segment struct {
	Carrier      string    `json:"carrier"`
	FlightNumber string    `json:"flight_number"`
	Origin       string    `json:"origin"`
	Destination  string    `json:"destination"`
	DepartsAt    time.Time `json:"departs_at"`
	ArrivesAt    time.Time `json:"arrives_at"`
}

// Offer is a single priced itinerary returned by one fare search call.
// Offers are ephemeral: only the winning offer's summary survives a trigger.
type Offer struct {
	PriceUsd      float64   `json:"price_usd"`
	Currency      string    `json:"currency"`
	Carrier       string    `json:"carrier"`
	OutboundStops int       `json:"outbound_stops"`
	ReturnStops   int       `json:"return_stops"` // meaningful only when HasReturn
	HasReturn     bool      `json:"has_return"`
	Segments      []Segment `json:"segments"`
}

// TotalStops is the combined stop count used for price-tie breaking.
func (o *Offer) TotalStops() int {
	if o.HasReturn {
		return o.OutboundStops + o.ReturnStops
	}
	return o.OutboundStops
}

// BestOffer pairs the globally cheapest surviving offer with the exact
// date combination that produced it.
type BestOffer struct {
	Offer Offer           `json:"offer"`
	Dates DateCombination `json:"dates"`
}

// FareSearchRequest is the contract consumed by the fare search provider.
type FareSearchRequest struct {
	Origin      string
	Destination string
	DepartDate  time.Time
	ReturnDate  *time.Time
	Adults      int
	Children    int
	Infants     int
	Cabin       CabinClass
	Currency    string
	MaxResults  int
}

// SendInput is the contract consumed by the notification transport.
type SendInput struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// SendOutcome reports how a single notification attempt concluded.
type SendOutcome struct {
	Status    SendStatus `json:"status"`
	Reason    string     `json:"reason,omitempty"`
	MessageID string     `json:"message_id,omitempty"`
}

// TriggerResult is the outcome of one trigger evaluation for one watch.
type TriggerResult struct {
	WatchID      string        `json:"watch_id"`
	Action       TriggerAction `json:"action"`
	Reason       string        `json:"reason"`
	Best         *BestOffer    `json:"best,omitempty"`
	Notification *SendOutcome  `json:"notification,omitempty"`
}

// WatchOutcome is one entry in the bounded sweep result preview.
type WatchOutcome struct {
	WatchID  string        `json:"watch_id"`
	Route    string        `json:"route"`
	Action   TriggerAction `json:"action"`
	Reason   string        `json:"reason"`
	PriceUsd *float64      `json:"price_usd,omitempty"`
	DeltaUsd *float64      `json:"delta_usd,omitempty"`
}

// SweepSummary aggregates the outcome of one full sweep over all active
// watches. Results holds a bounded preview of per-watch outcomes.
type SweepSummary struct {
	Total     int            `json:"total"`
	Notified  int            `json:"notified"`
	Noop      int            `json:"noop"`
	Errors    int            `json:"errors"`
	StartedAt time.Time      `json:"started_at"`
	Duration  time.Duration  `json:"duration"`
	Results   []WatchOutcome `json:"results,omitempty"`
}

// PriceState is the watch price-state slice written back atomically after a
// trigger. BestUsd and NotifiedUsd are left untouched when nil.
type PriceState struct {
	BestUsd     *float64
	NotifiedUsd *float64
	CheckedAt   time.Time
}

// Alert is the persisted record of one NOTIFY decision.
type Alert struct {
	ID          string    `json:"id" db:"id"`
	WatchID     string    `json:"watch_id" db:"watch_id"`
	Route       string    `json:"route" db:"route"`
	OldPriceUsd *float64  `json:"old_price_usd,omitempty" db:"old_price_usd"`
	NewPriceUsd float64   `json:"new_price_usd" db:"new_price_usd"`
	DeltaUsd    float64   `json:"delta_usd" db:"delta_usd"`
	Sent        bool      `json:"sent" db:"sent"`
	MessageID   string    `json:"message_id,omitempty" db:"message_id"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// TriggerMessage is the queue payload for a targeted per-watch trigger
// request enqueued by the API and consumed by the sweep worker.
type TriggerMessage struct {
	WatchID     string    `json:"watch_id"`
	Reason      string    `json:"reason"`
	RequestedAt time.Time `json:"requested_at"`
	TraceID     string    `json:"trace_id"`
}
