package types

// CabinClass identifies the booking cabin requested for a fare search.
type CabinClass string

const (
	CabinEconomy        CabinClass = "economy"
	CabinPremiumEconomy CabinClass = "premium_economy"
	CabinBusiness       CabinClass = "business"
	CabinFirst          CabinClass = "first"
)

// Valid reports whether the cabin class is one of the supported values.
func (c CabinClass) Valid() bool {
	switch c {
	case CabinEconomy, CabinPremiumEconomy, CabinBusiness, CabinFirst:
		return true
	}
	return false
}

// TripType distinguishes one-way from round-trip watches. It is a hard
// filter on date-combination generation: one-way watches never carry a
// return date and round-trip watches always do.
type TripType string

const (
	TripOneWay    TripType = "oneway"
	TripRoundTrip TripType = "roundtrip"
)

// Valid reports whether the trip type is a supported value.
func (t TripType) Valid() bool {
	return t == TripOneWay || t == TripRoundTrip
}

// Channel identifies the notification delivery channel for a watch.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelBoth  Channel = "both"
)

// Valid reports whether the channel is a supported value.
func (c Channel) Valid() bool {
	return c == ChannelEmail || c == ChannelSMS || c == ChannelBoth
}

// WantsEmail reports whether the channel includes email delivery.
func (c Channel) WantsEmail() bool {
	return c == ChannelEmail || c == ChannelBoth
}

// TriggerAction is the outcome of a single trigger evaluation.
type TriggerAction string

const (
	ActionNotify TriggerAction = "NOTIFY"
	ActionNoop   TriggerAction = "NOOP"
	ActionError  TriggerAction = "ERROR"
)

// SendStatus describes the outcome of one notification send attempt.
type SendStatus string

const (
	SendStatusSent    SendStatus = "sent"
	SendStatusFailed  SendStatus = "failed"
	SendStatusSkipped SendStatus = "skipped"
)

// DeactivateReason records why a watch was switched to inactive.
type DeactivateReason string

const (
	DeactivateReasonUser    DeactivateReason = "user_action"
	DeactivateReasonExpired DeactivateReason = "window_expired"
)
