package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farewatch/internal/types"
)

type fakeSweepRunner struct {
	summary types.SweepSummary
	ran     bool
	err     error
}

func (f *fakeSweepRunner) RunNow(_ context.Context) (types.SweepSummary, bool, error) {
	return f.summary, f.ran, f.err
}

type fakeCounter struct {
	active, total int
}

func (f *fakeCounter) CountByActive(_ context.Context) (int, int, error) {
	return f.active, f.total, nil
}

type fakeTriggerService struct {
	result types.TriggerResult
	calls  int
}

func (f *fakeTriggerService) Run(_ context.Context, _ *types.Watch) types.TriggerResult {
	f.calls++
	return f.result
}

type fakeEnqueuer struct {
	enqueued []string
	err      error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, watchID string, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.enqueued = append(f.enqueued, watchID)
	return nil
}

func newSweepRouter(runner *fakeSweepRunner, counter *fakeCounter, trigger *fakeTriggerService, watches *fakeWatchRepo, enqueuer TriggerEnqueuer) chi.Router {
	if counter == nil {
		counter = &fakeCounter{}
	}
	if trigger == nil {
		trigger = &fakeTriggerService{}
	}
	if watches == nil {
		watches = newFakeWatchRepo()
	}
	h := NewSweepHandler(runner, counter, trigger, watches, enqueuer, 15*time.Minute, slog.Default())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return r
}

func TestRunSweep(t *testing.T) {
	runner := &fakeSweepRunner{
		ran: true,
		summary: types.SweepSummary{
			Total:    5,
			Notified: 1,
			Noop:     3,
			Errors:   1,
			Duration: 2 * time.Second,
			Results: []types.WatchOutcome{
				{WatchID: "wt_1", Route: "JFK-LAX", Action: types.ActionNotify},
			},
		},
	}
	router := newSweepRouter(runner, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/sweep", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SweepResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	require.NotNil(t, resp.Summary)
	assert.Equal(t, 5, resp.Summary.Total)
	assert.Equal(t, 1, resp.Summary.Notified)
	assert.Equal(t, 3, resp.Summary.Noop)
	assert.Equal(t, 1, resp.Summary.Errors)
	assert.Equal(t, "2s", resp.Duration)
	require.Len(t, resp.Results, 1)
}

func TestRunSweepBusy(t *testing.T) {
	router := newSweepRouter(&fakeSweepRunner{ran: false}, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/sweep", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	// An in-flight sweep is not a client error.
	require.Equal(t, http.StatusOK, rec.Code)

	var resp SweepResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.Equal(t, "a sweep is already in flight", resp.Message)
	assert.Nil(t, resp.Summary)
}

func TestRunSweepListFailure(t *testing.T) {
	runner := &fakeSweepRunner{err: errors.New("connection refused")}
	router := newSweepRouter(runner, nil, nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/sweep", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestSweepInfo(t *testing.T) {
	router := newSweepRouter(&fakeSweepRunner{}, &fakeCounter{active: 3, total: 7}, nil, nil, nil)

	req := httptest.NewRequest(http.MethodGet, "/sweep", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp SweepInfoResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "every 15m0s", resp.Schedule)
	assert.Equal(t, 3, resp.ActiveWatches)
	assert.Equal(t, 7, resp.TotalWatches)
}

func TestTriggerWatchInline(t *testing.T) {
	trigger := &fakeTriggerService{result: types.TriggerResult{
		WatchID: "wt_1",
		Action:  types.ActionNotify,
		Reason:  "price at or below target",
	}}
	watches := newFakeWatchRepo(existingWatch("wt_1"))
	router := newSweepRouter(&fakeSweepRunner{}, nil, trigger, watches, nil)

	req := httptest.NewRequest(http.MethodPost, "/watches/wt_1/trigger", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, trigger.calls)

	var result types.TriggerResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, types.ActionNotify, result.Action)
}

func TestTriggerWatchQueued(t *testing.T) {
	trigger := &fakeTriggerService{}
	enqueuer := &fakeEnqueuer{}
	watches := newFakeWatchRepo(existingWatch("wt_1"))
	router := newSweepRouter(&fakeSweepRunner{}, nil, trigger, watches, enqueuer)

	req := httptest.NewRequest(http.MethodPost, "/watches/wt_1/trigger", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, []string{"wt_1"}, enqueuer.enqueued)
	assert.Zero(t, trigger.calls, "queued triggers must not run inline")

	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, true, resp["queued"])
}

func TestTriggerWatchEnqueueFailureFallsBackInline(t *testing.T) {
	trigger := &fakeTriggerService{result: types.TriggerResult{Action: types.ActionNoop}}
	enqueuer := &fakeEnqueuer{err: errors.New("queue unavailable")}
	watches := newFakeWatchRepo(existingWatch("wt_1"))
	router := newSweepRouter(&fakeSweepRunner{}, nil, trigger, watches, enqueuer)

	req := httptest.NewRequest(http.MethodPost, "/watches/wt_1/trigger", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, trigger.calls)
}

func TestTriggerWatchNotFound(t *testing.T) {
	router := newSweepRouter(&fakeSweepRunner{}, nil, &fakeTriggerService{}, newFakeWatchRepo(), nil)

	req := httptest.NewRequest(http.MethodPost, "/watches/wt_missing/trigger", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
}
