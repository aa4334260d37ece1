package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"farewatch/internal/core"
	"farewatch/internal/types"
)

// SweepRunner fires one sweep outside the tick cadence. ran is false when a
// sweep was already in flight.
type SweepRunner interface {
	RunNow(ctx context.Context) (summary types.SweepSummary, ran bool, err error)
}

// WatchCounter reports (active, total) watch counts for the info endpoint.
type WatchCounter interface {
	CountByActive(ctx context.Context) (active int, total int, err error)
}

// TriggerService evaluates one watch. Satisfied by *engine.Trigger.
type TriggerService interface {
	Run(ctx context.Context, watch *types.Watch) types.TriggerResult
}

// WatchGetter loads one watch for targeted triggering.
type WatchGetter interface {
	GetByID(ctx context.Context, id string) (*types.Watch, error)
}

// TriggerEnqueuer defers a targeted trigger to the sweep worker via the
// queue. May be nil, in which case triggers run inline.
type TriggerEnqueuer interface {
	Enqueue(ctx context.Context, watchID string, reason string) error
}

// SweepResponse is the body returned by POST /v1/sweep.
type SweepResponse struct {
	Success   bool                 `json:"success"`
	Message   string               `json:"message,omitempty"`
	Summary   *SweepSummaryBody    `json:"summary,omitempty"`
	Timestamp time.Time            `json:"timestamp"`
	Duration  string               `json:"duration,omitempty"`
	Results   []types.WatchOutcome `json:"results,omitempty"`
}

// SweepSummaryBody is the aggregate-count slice of a sweep summary.
type SweepSummaryBody struct {
	Total    int `json:"total"`
	Notified int `json:"notified"`
	Noop     int `json:"noop"`
	Errors   int `json:"errors"`
}

// SweepInfoResponse is the body returned by GET /v1/sweep.
type SweepInfoResponse struct {
	Schedule      string `json:"schedule"`
	ActiveWatches int    `json:"active_watches"`
	TotalWatches  int    `json:"total_watches"`
}

// SweepHandler exposes the sweep and targeted-trigger entry points.
type SweepHandler struct {
	runner   SweepRunner
	counter  WatchCounter
	trigger  TriggerService
	watches  WatchGetter
	enqueuer TriggerEnqueuer
	interval time.Duration
	logger   *slog.Logger
	nowFn    func() time.Time
}

// NewSweepHandler creates a SweepHandler. enqueuer may be nil to run
// targeted triggers inline.
func NewSweepHandler(
	runner SweepRunner,
	counter WatchCounter,
	trigger TriggerService,
	watches WatchGetter,
	enqueuer TriggerEnqueuer,
	interval time.Duration,
	l *slog.Logger,
) *SweepHandler {
	if l == nil {
		l = slog.Default()
	}
	return &SweepHandler{
		runner:   runner,
		counter:  counter,
		trigger:  trigger,
		watches:  watches,
		enqueuer: enqueuer,
		interval: interval,
		logger:   l,
		nowFn:    time.Now,
	}
}

// RegisterRoutes mounts the sweep routes on the provided chi.Router.
func (h *SweepHandler) RegisterRoutes(r chi.Router) {
	r.Post("/sweep", h.RunSweep)
	r.Get("/sweep", h.Info)
	r.Post("/watches/{id}/trigger", h.TriggerWatch)
}

// RunSweep handles POST /v1/sweep. Partial success is the normal case:
// individual watch errors are counted in the summary, and only a failure to
// list the watches at all produces a non-200 response.
func (h *SweepHandler) RunSweep(w http.ResponseWriter, r *http.Request) {
	summary, ran, err := h.runner.RunNow(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if !ran {
		core.JSON(w, r, http.StatusOK, SweepResponse{
			Success:   false,
			Message:   "a sweep is already in flight",
			Timestamp: h.nowFn().UTC(),
		})
		return
	}

	core.JSON(w, r, http.StatusOK, SweepResponse{
		Success: true,
		Summary: &SweepSummaryBody{
			Total:    summary.Total,
			Notified: summary.Notified,
			Noop:     summary.Noop,
			Errors:   summary.Errors,
		},
		Timestamp: h.nowFn().UTC(),
		Duration:  summary.Duration.String(),
		Results:   summary.Results,
	})
}

// Info handles GET /v1/sweep: schedule description and watch counts, without
// running anything.
func (h *SweepHandler) Info(w http.ResponseWriter, r *http.Request) {
	active, total, err := h.counter.CountByActive(r.Context())
	if err != nil {
		core.Error(w, r, err)
		return
	}

	core.JSON(w, r, http.StatusOK, SweepInfoResponse{
		Schedule:      "every " + h.interval.String(),
		ActiveWatches: active,
		TotalWatches:  total,
	})
}

// TriggerWatch handles POST /v1/watches/{id}/trigger. With a queue
// configured the request is enqueued for the sweep worker and answered 202;
// otherwise the trigger runs inline and the evaluation result is returned.
func (h *SweepHandler) TriggerWatch(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	watch, err := h.watches.GetByID(r.Context(), id)
	if err != nil {
		core.Error(w, r, err)
		return
	}

	if h.enqueuer != nil {
		if err := h.enqueuer.Enqueue(r.Context(), watch.ID, "manual_trigger"); err != nil {
			h.logger.ErrorContext(r.Context(), "failed to enqueue trigger, falling back to inline",
				"watch_id", watch.ID, "error", err)
		} else {
			core.JSON(w, r, http.StatusAccepted, map[string]any{
				"watch_id": watch.ID,
				"queued":   true,
			})
			return
		}
	}

	result := h.trigger.Run(r.Context(), watch)
	core.JSON(w, r, http.StatusOK, result)
}
