// Package handlers contains the HTTP handler implementations for the
// farewatch API: watch CRUD, alert history, and the sweep entry points.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"farewatch/internal/core"
	"farewatch/internal/types"
)

// Handlers depend on locally defined abstractions rather than concrete
// repositories, so tests can inject fakes.

// WatchRepo defines the data access contract for watch operations.
// Mirrors the concrete db.WatchRepository methods used by this handler.
type WatchRepo interface {
	Create(ctx context.Context, w *types.Watch) error
	GetByID(ctx context.Context, id string) (*types.Watch, error)
	ListByUser(ctx context.Context, userID string) ([]*types.Watch, error)
	Update(ctx context.Context, w *types.Watch) error
	Delete(ctx context.Context, id string) error
}

// WatchAlertRepo provides alert history access for the watch handler.
type WatchAlertRepo interface {
	ListByWatch(ctx context.Context, watchID string, limit int) ([]types.Alert, error)
}

// CreateWatchRequest is the request body for POST /v1/watches.
type CreateWatchRequest struct {
	Origin      string  `json:"origin" validate:"required,iata"`
	Destination string  `json:"destination" validate:"required,iata"`
	Cabin       string  `json:"cabin" validate:"omitempty,cabin_class"`
	Adults      int     `json:"adults" validate:"omitempty,min=1,max=9"`
	Children    int     `json:"children" validate:"min=0,max=9"`
	Infants     int     `json:"infants" validate:"min=0,max=9"`
	Start       string  `json:"start" validate:"required,date_string"`
	End         string  `json:"end" validate:"required,date_string"`
	FlexDays    int     `json:"flex_days" validate:"min=0,max=7"`
	TripType    string  `json:"trip_type" validate:"omitempty,trip_type"`
	TargetUsd   float64 `json:"target_usd" validate:"required,gt=0"`
	MaxStops    int     `json:"max_stops" validate:"min=0,max=3"`
	Channel     string  `json:"channel" validate:"omitempty,oneof=email sms both"`
	Email       string  `json:"email" validate:"omitempty,email"`
	Phone       string  `json:"phone" validate:"omitempty,e164"`
	UserID      string  `json:"user_id" validate:"omitempty,max=64"`
}

// UpdateWatchRequest is the request body for PATCH /v1/watches/{id}.
// Only provided fields are applied; id, created_at, and the price-state
// fields are never patchable.
type UpdateWatchRequest struct {
	Origin      *string  `json:"origin,omitempty" validate:"omitempty,iata"`
	Destination *string  `json:"destination,omitempty" validate:"omitempty,iata"`
	Cabin       *string  `json:"cabin,omitempty" validate:"omitempty,cabin_class"`
	Adults      *int     `json:"adults,omitempty" validate:"omitempty,min=1,max=9"`
	Children    *int     `json:"children,omitempty" validate:"omitempty,min=0,max=9"`
	Infants     *int     `json:"infants,omitempty" validate:"omitempty,min=0,max=9"`
	Start       *string  `json:"start,omitempty" validate:"omitempty,date_string"`
	End         *string  `json:"end,omitempty" validate:"omitempty,date_string"`
	FlexDays    *int     `json:"flex_days,omitempty" validate:"omitempty,min=0,max=7"`
	TripType    *string  `json:"trip_type,omitempty" validate:"omitempty,trip_type"`
	TargetUsd   *float64 `json:"target_usd,omitempty" validate:"omitempty,gt=0"`
	MaxStops    *int     `json:"max_stops,omitempty" validate:"omitempty,min=0,max=3"`
	Channel     *string  `json:"channel,omitempty" validate:"omitempty,oneof=email sms both"`
	Email       *string  `json:"email,omitempty" validate:"omitempty,email"`
	Phone       *string  `json:"phone,omitempty" validate:"omitempty,e164"`
	Active      *bool    `json:"active,omitempty"`
}

// WatchHandler manages watch CRUD and alert history.
type WatchHandler struct {
	watches   WatchRepo
	alerts    WatchAlertRepo
	validator *core.Validator
	logger    *slog.Logger
	nowFn     func() time.Time
}

// NewWatchHandler creates a WatchHandler with the provided dependencies.
func NewWatchHandler(watches WatchRepo, alerts WatchAlertRepo, v *core.Validator, l *slog.Logger) *WatchHandler {
	if l == nil {
		l = slog.Default()
	}
	return &WatchHandler{
		watches:   watches,
		alerts:    alerts,
		validator: v,
		logger:    l,
		nowFn:     time.Now,
	}
}

// WithNow overrides the handler clock. Intended for tests.
func (h *WatchHandler) WithNow(fn func() time.Time) *WatchHandler {
	h.nowFn = fn
	return h
}

// RegisterRoutes mounts watch routes on the provided chi.Router.
func (h *WatchHandler) RegisterRoutes(r chi.Router) {
	r.Route("/watches", func(r chi.Router) {
		r.Post("/", h.Create)
		r.Get("/", h.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Patch("/", h.Update)
			r.Delete("/", h.Delete)
			r.Get("/alerts", h.ListAlerts)
		})
	})
}

// Create handles POST /v1/watches: decode, validate, apply defaults,
// persist, 201 with the created watch.
func (h *WatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateWatchRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	start, end, err := parseWindow(req.Start, req.End)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	now := h.nowFn().UTC()
	watch := &types.Watch{
		ID:          "wt_" + uuid.NewString(),
		UserID:      req.UserID,
		Origin:      strings.ToUpper(req.Origin),
		Destination: strings.ToUpper(req.Destination),
		Cabin:       types.CabinClass(defaultStr(req.Cabin, string(types.CabinEconomy))),
		Adults:      defaultInt(req.Adults, 1),
		Children:    req.Children,
		Infants:     req.Infants,
		Start:       start,
		End:         end,
		FlexDays:    req.FlexDays,
		TripType:    types.TripType(defaultStr(req.TripType, string(types.TripRoundTrip))),
		TargetUsd:   req.TargetUsd,
		MaxStops:    req.MaxStops,
		Channel:     types.Channel(defaultStr(req.Channel, string(types.ChannelEmail))),
		Email:       req.Email,
		Phone:       req.Phone,
		Active:      true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := watch.Validate(now); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.watches.Create(r.Context(), watch); err != nil {
		core.Error(w, r, err)
		return
	}

	h.logger.InfoContext(r.Context(), "watch created",
		"watch_id", watch.ID,
		"route", watch.Route(),
		"target_usd", watch.TargetUsd,
	)
	core.JSON(w, r, http.StatusCreated, watch)
}

// Get handles GET /v1/watches/{id}.
func (h *WatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	watch, err := h.watches.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, watch)
}

// List handles GET /v1/watches?user_id=... An absent user_id selects the
// anonymous bucket.
func (h *WatchHandler) List(w http.ResponseWriter, r *http.Request) {
	watches, err := h.watches.ListByUser(r.Context(), r.URL.Query().Get("user_id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if watches == nil {
		watches = []*types.Watch{}
	}
	core.JSON(w, r, http.StatusOK, watches)
}

// Update handles PATCH /v1/watches/{id}: partial field patch on the policy
// fields, re-validating the combined result.
func (h *WatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateWatchRequest
	if err := core.DecodeJSON(w, r, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.validator.ValidateStruct(req); err != nil {
		core.Error(w, r, err)
		return
	}

	watch, err := h.watches.GetByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if err := h.applyPatch(watch, &req); err != nil {
		core.Error(w, r, err)
		return
	}

	// Re-validate against the original creation time: a watch mid-window
	// keeps its possibly-elapsed start date unless the patch moved it.
	validateAt := watch.CreatedAt
	if req.Start != nil {
		validateAt = h.nowFn()
	}
	if err := watch.Validate(validateAt); err != nil {
		core.Error(w, r, err)
		return
	}

	watch.UpdatedAt = h.nowFn().UTC()
	if err := h.watches.Update(r.Context(), watch); err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, watch)
}

// Delete handles DELETE /v1/watches/{id}.
func (h *WatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.watches.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		core.Error(w, r, err)
		return
	}
	core.JSON(w, r, http.StatusOK, map[string]any{"deleted": true})
}

// ListAlerts handles GET /v1/watches/{id}/alerts?limit=N.
func (h *WatchHandler) ListAlerts(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	// 404 on unknown watch, not an empty list.
	if _, err := h.watches.GetByID(r.Context(), id); err != nil {
		core.Error(w, r, err)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 100 {
			limit = n
		}
	}

	alerts, err := h.alerts.ListByWatch(r.Context(), id, limit)
	if err != nil {
		core.Error(w, r, err)
		return
	}
	if alerts == nil {
		alerts = []types.Alert{}
	}
	core.JSON(w, r, http.StatusOK, alerts)
}

// applyPatch copies provided fields onto the watch. Deactivation through the
// patch records a user-action reason; reactivation clears it.
func (h *WatchHandler) applyPatch(watch *types.Watch, req *UpdateWatchRequest) error {
	if req.Origin != nil {
		watch.Origin = strings.ToUpper(*req.Origin)
	}
	if req.Destination != nil {
		watch.Destination = strings.ToUpper(*req.Destination)
	}
	if req.Cabin != nil {
		watch.Cabin = types.CabinClass(*req.Cabin)
	}
	if req.Adults != nil {
		watch.Adults = *req.Adults
	}
	if req.Children != nil {
		watch.Children = *req.Children
	}
	if req.Infants != nil {
		watch.Infants = *req.Infants
	}
	if req.Start != nil {
		start, err := parseDate(*req.Start)
		if err != nil {
			return err
		}
		watch.Start = start
	}
	if req.End != nil {
		end, err := parseDate(*req.End)
		if err != nil {
			return err
		}
		watch.End = end
	}
	if req.FlexDays != nil {
		watch.FlexDays = *req.FlexDays
	}
	if req.TripType != nil {
		watch.TripType = types.TripType(*req.TripType)
	}
	if req.TargetUsd != nil {
		watch.TargetUsd = *req.TargetUsd
	}
	if req.MaxStops != nil {
		watch.MaxStops = *req.MaxStops
	}
	if req.Channel != nil {
		watch.Channel = types.Channel(*req.Channel)
	}
	if req.Email != nil {
		watch.Email = *req.Email
	}
	if req.Phone != nil {
		watch.Phone = *req.Phone
	}
	if req.Active != nil {
		watch.Active = *req.Active
		if *req.Active {
			watch.DeactivateReason = ""
		} else {
			watch.DeactivateReason = types.DeactivateReasonUser
		}
	}
	return nil
}

func parseWindow(startRaw, endRaw string) (time.Time, time.Time, error) {
	start, err := parseDate(startRaw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := parseDate(endRaw)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return start, end, nil
}

func parseDate(raw string) (time.Time, error) {
	t, err := time.ParseInLocation("2006-01-02", raw, time.UTC)
	if err != nil {
		return time.Time{}, types.NewAppError(
			types.ErrCodeValidationDateWindow,
			"dates must be formatted as YYYY-MM-DD",
			err,
		)
	}
	return t, nil
}

func defaultStr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func defaultInt(v, fallback int) int {
	if v == 0 {
		return fallback
	}
	return v
}
