package external

import (
	"context"

	"farewatch/internal/types"
)

// FareProvider is the fare search collaborator: given one route and date
// combination, it returns zero or more priced itineraries.
type FareProvider interface {
	Search(ctx context.Context, req types.FareSearchRequest) ([]types.Offer, error)
}

// EmailSender is the notification transport collaborator. It sends one
// email and returns the provider message id, or an error on failure.
type EmailSender interface {
	Send(ctx context.Context, input types.SendInput) (string, error)
}
