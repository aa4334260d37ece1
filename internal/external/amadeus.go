package external

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"farewatch/internal/config"
	"farewatch/internal/types"
)

// tokenExpirySlack is subtracted from the provider-reported token lifetime
// so a token is refreshed before it can expire mid-request.
const tokenExpirySlack = 60 * time.Second

// cabinCodes maps domain cabin classes to Amadeus travelClass values.
var cabinCodes = map[types.CabinClass]string{
	types.CabinEconomy:        "ECONOMY",
	types.CabinPremiumEconomy: "PREMIUM_ECONOMY",
	types.CabinBusiness:       "BUSINESS",
	types.CabinFirst:          "FIRST",
}

// AmadeusClient implements FareProvider against the Amadeus Flight Offers
// Search API. It manages its own OAuth2 client-credentials token and routes
// all requests through BaseClient for circuit breaking and retries.
type AmadeusClient struct {
	base    *BaseClient
	baseURL string
	logger  *slog.Logger

	clientID     types.SecretString
	clientSecret types.SecretString
	maxResults   int

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time

	nowFn func() time.Time // injectable for token-expiry tests
}

// NewAmadeusClient creates an AmadeusClient from configuration. The
// httpClient timeout bounds each individual search call.
func NewAmadeusClient(httpClient *http.Client, cfg config.AmadeusConfig, logger *slog.Logger) *AmadeusClient {
	if logger == nil {
		logger = slog.Default()
	}

	base := NewBaseClient(
		httpClient,
		"amadeus",
		DefaultRetryPolicy(),
		"FareWatch/1.0",
	)

	return &AmadeusClient{
		base:         base,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:       logger,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		maxResults:   cfg.MaxResults,
		nowFn:        time.Now,
	}
}

// NewAmadeusClientWithBase creates an AmadeusClient with a pre-configured
// BaseClient, for tests that want to control retry behavior.
func NewAmadeusClientWithBase(base *BaseClient, cfg config.AmadeusConfig, logger *slog.Logger) *AmadeusClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &AmadeusClient{
		base:         base,
		baseURL:      strings.TrimSuffix(cfg.BaseURL, "/"),
		logger:       logger,
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		maxResults:   cfg.MaxResults,
		nowFn:        time.Now,
	}
}

// Search performs one flight-offers search for a single date combination
// and maps the provider response to domain offers.
//
// Error mapping:
//   - 400 with a route/location error -> ErrCodeUpstreamInvalidRoute (hard)
//   - 429 -> handled by BaseClient (retry + ErrCodeUpstreamRateLimited)
//   - 5xx -> handled by BaseClient (retry + ErrCodeUpstreamUnavailable)
func (a *AmadeusClient) Search(ctx context.Context, req types.FareSearchRequest) ([]types.Offer, error) {
	token, err := a.token(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("originLocationCode", req.Origin)
	q.Set("destinationLocationCode", req.Destination)
	q.Set("departureDate", req.DepartDate.Format("2006-01-02"))
	if req.ReturnDate != nil {
		q.Set("returnDate", req.ReturnDate.Format("2006-01-02"))
	}
	q.Set("adults", fmt.Sprintf("%d", req.Adults))
	if req.Children > 0 {
		q.Set("children", fmt.Sprintf("%d", req.Children))
	}
	if req.Infants > 0 {
		q.Set("infants", fmt.Sprintf("%d", req.Infants))
	}
	if code, ok := cabinCodes[req.Cabin]; ok {
		q.Set("travelClass", code)
	}
	currency := req.Currency
	if currency == "" {
		currency = "USD"
	}
	q.Set("currencyCode", currency)
	maxResults := req.MaxResults
	if maxResults <= 0 {
		maxResults = a.maxResults
	}
	q.Set("max", fmt.Sprintf("%d", maxResults))

	reqURL := a.baseURL + "/v2/shopping/flight-offers?" + q.Encode()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create flight offers request", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.base.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(resp)
	}

	var body flightOffersResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, types.NewAppError(types.ErrCodeUpstreamFareProvider, "failed to decode flight offers response", err)
	}

	offers := make([]types.Offer, 0, len(body.Data))
	for _, raw := range body.Data {
		offer, ok := mapOffer(raw)
		if !ok {
			// Malformed entries are dropped, not fatal: upstream search
			// data is noisy and one bad itinerary must not sink the rest.
			a.logger.WarnContext(ctx, "skipping malformed flight offer",
				"origin", req.Origin,
				"destination", req.Destination,
			)
			continue
		}
		offers = append(offers, offer)
	}

	return offers, nil
}

// token returns a valid OAuth2 access token, refreshing when within the
// expiry slack. Safe for concurrent use.
func (a *AmadeusClient) token(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.accessToken != "" && a.nowFn().Before(a.tokenExpiry.Add(-tokenExpirySlack)) {
		return a.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", a.clientID.Unmask())
	form.Set("client_secret", a.clientSecret.Unmask())

	reqURL := a.baseURL + "/v1/security/oauth2/token"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", types.NewAppError(types.ErrCodeInternalUnexpected, "failed to create token request", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.base.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", types.NewAppError(
			types.ErrCodeUpstreamFareProvider,
			fmt.Sprintf("token request failed with status %d: %s", resp.StatusCode, truncate(string(body), 200)),
			nil,
		)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", types.NewAppError(types.ErrCodeUpstreamFareProvider, "failed to decode token response", err)
	}

	a.accessToken = tok.AccessToken
	a.tokenExpiry = a.nowFn().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return a.accessToken, nil
}

// handleErrorResponse maps a non-200 search response to a domain error.
// Route and location rejections are a hard, non-transient failure that the
// trigger engine surfaces as an ERROR rather than a silent no-op.
func (a *AmadeusClient) handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)

	var apiErr amadeusErrorResponse
	detail := ""
	if err := json.Unmarshal(body, &apiErr); err == nil && len(apiErr.Errors) > 0 {
		detail = apiErr.Errors[0].Detail
		if isRouteRejection(apiErr.Errors[0]) {
			return types.NewAppError(
				types.ErrCodeUpstreamInvalidRoute,
				fmt.Sprintf("route rejected by fare provider: %s", detail),
				nil,
			)
		}
	}

	if detail == "" {
		detail = truncate(string(body), 200)
	}
	return types.NewAppError(
		types.ErrCodeUpstreamFareProvider,
		fmt.Sprintf("flight offers search failed (%d): %s", resp.StatusCode, detail),
		nil,
	)
}

// isRouteRejection detects the Amadeus error codes for unknown or invalid
// origin/destination location codes.
func isRouteRejection(e amadeusErrorDetail) bool {
	switch e.Code {
	case 477, 4926, 572: // INVALID FORMAT / INVALID DATA RECEIVED / location not found
		param := strings.ToLower(e.Source.Parameter)
		return strings.Contains(param, "origin") || strings.Contains(param, "destination")
	}
	return false
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type flightOffersResponse struct {
	Data []flightOffer `json:"data"`
}

type flightOffer struct {
	Itineraries            []itinerary `json:"itineraries"`
	Price                  offerPrice  `json:"price"`
	ValidatingAirlineCodes []string    `json:"validatingAirlineCodes"`
}

type itinerary struct {
	Segments []segment `json:"segments"`
}

type segment struct {
	Departure   endpoint `json:"departure"`
	Arrival     endpoint `json:"arrival"`
	CarrierCode string   `json:"carrierCode"`
	Number      string   `json:"number"`
}

type endpoint struct {
	IataCode string `json:"iataCode"`
	At       string `json:"at"`
}

type offerPrice struct {
	GrandTotal string `json:"grandTotal"`
	Currency   string `json:"currency"`
}

type amadeusErrorResponse struct {
	Errors []amadeusErrorDetail `json:"errors"`
}

type amadeusErrorDetail struct {
	Code   int    `json:"code"`
	Detail string `json:"detail"`
	Source struct {
		Parameter string `json:"parameter"`
	} `json:"source"`
}

// mapOffer converts one provider offer into the domain shape. Returns
// ok=false when required fields are missing or unparseable.
func mapOffer(raw flightOffer) (types.Offer, bool) {
	if len(raw.Itineraries) == 0 || len(raw.Itineraries[0].Segments) == 0 {
		return types.Offer{}, false
	}

	var price float64
	if _, err := fmt.Sscanf(raw.Price.GrandTotal, "%f", &price); err != nil || price <= 0 {
		return types.Offer{}, false
	}

	carrier := raw.Itineraries[0].Segments[0].CarrierCode
	if len(raw.ValidatingAirlineCodes) > 0 {
		carrier = raw.ValidatingAirlineCodes[0]
	}

	offer := types.Offer{
		PriceUsd:      price,
		Currency:      raw.Price.Currency,
		Carrier:       carrier,
		OutboundStops: len(raw.Itineraries[0].Segments) - 1,
	}

	for _, itin := range raw.Itineraries {
		for _, seg := range itin.Segments {
			departsAt, err1 := time.Parse("2006-01-02T15:04:05", seg.Departure.At)
			arrivesAt, err2 := time.Parse("2006-01-02T15:04:05", seg.Arrival.At)
			if err1 != nil || err2 != nil {
				return types.Offer{}, false
			}
			offer.Segments = append(offer.Segments, types.Segment{
				Carrier:      seg.CarrierCode,
				FlightNumber: seg.CarrierCode + seg.Number,
				Origin:       seg.Departure.IataCode,
				Destination:  seg.Arrival.IataCode,
				DepartsAt:    departsAt,
				ArrivesAt:    arrivesAt,
			})
		}
	}

	if len(raw.Itineraries) > 1 {
		offer.HasReturn = true
		offer.ReturnStops = len(raw.Itineraries[1].Segments) - 1
	}

	return offer, true
}

// Compile-time assertion that AmadeusClient satisfies FareProvider.
var _ FareProvider = (*AmadeusClient)(nil)
