package types

import (
	"testing"
	"time"
)

func day(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func validWatch() *Watch {
	return &Watch{
		ID:          "wt_1",
		Origin:      "JFK",
		Destination: "LAX",
		Cabin:       CabinEconomy,
		Adults:      1,
		Start:       day("2025-12-01"),
		End:         day("2025-12-05"),
		TripType:    TripRoundTrip,
		TargetUsd:   500,
		MaxStops:    1,
		Channel:     ChannelEmail,
		Email:       "traveler@example.com",
		Active:      true,
	}
}

func TestWatchExpired(t *testing.T) {
	w := validWatch()
	w.FlexDays = 2

	// The flex-widened window runs through 12-07.
	if w.Expired(day("2025-12-07")) {
		t.Error("watch must not expire while the widened window is still reachable")
	}
	if !w.Expired(day("2025-12-08")) {
		t.Error("watch must expire the day after the widened window ends")
	}
}

func TestWatchValidate(t *testing.T) {
	now := day("2025-11-01")

	tests := []struct {
		name     string
		mutate   func(*Watch)
		wantCode ErrorCode
	}{
		{"valid", func(w *Watch) {}, ""},
		{"end before start", func(w *Watch) { w.End = day("2025-11-20") }, ErrCodeValidationDateWindow},
		{"start in past", func(w *Watch) { w.Start = day("2025-10-01") }, ErrCodeValidationDateWindow},
		{"zero target", func(w *Watch) { w.TargetUsd = 0 }, ErrCodeValidationTargetPrice},
		{"negative max stops", func(w *Watch) { w.MaxStops = -1 }, ErrCodeValidationMaxStops},
		{"negative flex", func(w *Watch) { w.FlexDays = -1 }, ErrCodeValidationDateWindow},
		{"bad cabin", func(w *Watch) { w.Cabin = "steerage" }, ErrCodeValidationInvalidCabin},
		{"bad trip type", func(w *Watch) { w.TripType = "multi_city" }, ErrCodeValidationInvalidTripType},
		{"email channel without address", func(w *Watch) { w.Email = "" }, ErrCodeValidationMissingField},
		{"sms channel without phone", func(w *Watch) { w.Channel = ChannelSMS; w.Phone = "" }, ErrCodeValidationMissingField},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := validWatch()
			tt.mutate(w)
			err := w.Validate(now)

			if tt.wantCode == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}

			appErr, ok := err.(*AppError)
			if !ok {
				t.Fatalf("Validate() = %v, want *AppError", err)
			}
			if appErr.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", appErr.Code, tt.wantCode)
			}
		})
	}
}

func TestOfferTotalStops(t *testing.T) {
	oneWay := Offer{OutboundStops: 2}
	if got := oneWay.TotalStops(); got != 2 {
		t.Errorf("one-way TotalStops = %d, want 2", got)
	}

	roundTrip := Offer{OutboundStops: 1, ReturnStops: 1, HasReturn: true}
	if got := roundTrip.TotalStops(); got != 2 {
		t.Errorf("round-trip TotalStops = %d, want 2", got)
	}

	// ReturnStops is ignored without a return leg.
	stale := Offer{OutboundStops: 1, ReturnStops: 3}
	if got := stale.TotalStops(); got != 1 {
		t.Errorf("TotalStops = %d, want 1", got)
	}
}

func TestDateOnly(t *testing.T) {
	ts := time.Date(2025, 12, 1, 23, 45, 12, 99, time.FixedZone("JST", 9*3600))
	got := DateOnly(ts)
	want := day("2025-12-01")
	if !got.Equal(want) {
		t.Errorf("DateOnly(%v) = %v, want %v", ts, got, want)
	}
}
