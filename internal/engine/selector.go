package engine

import (
	"context"
	"errors"
	"log/slog"

	"farewatch/internal/types"
)

// FareSearcher is the fare search collaborator consumed by the selector.
type FareSearcher interface {
	Search(ctx context.Context, req types.FareSearchRequest) ([]types.Offer, error)
}

// Selector reduces fare search results across a watch's candidate date
// combinations to the single cheapest itinerary within the stop ceiling.
type Selector struct {
	provider FareSearcher
	logger   *slog.Logger
}

// NewSelector creates a Selector backed by the given fare search provider.
func NewSelector(provider FareSearcher, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{provider: provider, logger: logger}
}

// SelectBest runs one fare search per combination, sequentially, and returns
// the globally cheapest offer whose outbound stops (and return stops, when a
// return leg exists) stay within the watch's ceiling, together with the date
// pair that produced it. Ties on price prefer fewer total stops, then the
// earlier combination.
//
// A single failed combination is logged and skipped. A nil result with a nil
// error means no combination yielded a qualifying offer. When every
// combination fails with the same hard error (an invalid route rejected by
// the provider), that error propagates so the trigger can surface it.
func (s *Selector) SelectBest(ctx context.Context, watch *types.Watch, combos []types.DateCombination) (*types.BestOffer, error) {
	var best *types.BestOffer
	routeFailures := 0
	var hardErr *types.AppError

	for _, combo := range combos {
		offers, err := s.provider.Search(ctx, types.FareSearchRequest{
			Origin:      watch.Origin,
			Destination: watch.Destination,
			DepartDate:  combo.Depart,
			ReturnDate:  combo.Return,
			Adults:      watch.Adults,
			Children:    watch.Children,
			Infants:     watch.Infants,
			Cabin:       watch.Cabin,
			Currency:    "USD",
		})
		if err != nil {
			var appErr *types.AppError
			if errors.As(err, &appErr) && appErr.Code == types.ErrCodeUpstreamInvalidRoute {
				routeFailures++
				if hardErr == nil {
					hardErr = appErr
				}
			}
			s.logger.WarnContext(ctx, "fare search failed for combination",
				"watch_id", watch.ID,
				"route", watch.Route(),
				"depart", combo.Depart.Format("2006-01-02"),
				"error", err,
			)
			continue
		}

		for _, offer := range offers {
			if offer.OutboundStops > watch.MaxStops {
				continue
			}
			if offer.HasReturn && offer.ReturnStops > watch.MaxStops {
				continue
			}
			if best == nil || cheaper(&offer, &best.Offer) {
				o := offer
				best = &types.BestOffer{Offer: o, Dates: combo}
			}
		}
	}

	// Every combination rejected the route outright; this is a watch-level
	// error, not an empty result.
	if best == nil && routeFailures > 0 && routeFailures == len(combos) {
		return nil, hardErr
	}

	return best, nil
}

// cheaper reports whether candidate beats incumbent: strictly lower price,
// or equal price with strictly fewer total stops. Equal on both keeps the
// incumbent, preserving first-encountered (chronological) order.
func cheaper(candidate, incumbent *types.Offer) bool {
	if candidate.PriceUsd != incumbent.PriceUsd {
		return candidate.PriceUsd < incumbent.PriceUsd
	}
	return candidate.TotalStops() < incumbent.TotalStops()
}
