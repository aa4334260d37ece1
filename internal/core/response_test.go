package core

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"farewatch/internal/types"
)

func TestJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	JSON(rec, req, http.StatusCreated, map[string]string{"id": "wt_1"})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"id": "wt_1"}`, rec.Body.String())
}

func TestErrorWithAppError(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(types.WithRequestID(req.Context(), "req-1"))

	Error(rec, req, types.NewAppError(types.ErrCodeNotFoundWatch, "watch not found", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "not_found_watch", resp.Error.Code)
	assert.Equal(t, "watch not found", resp.Error.Message)
	assert.Equal(t, "req-1", resp.Error.RequestID)
}

func TestErrorWithGenericErrorDoesNotLeak(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)

	Error(rec, req, assert.AnError)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var resp APIErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(types.ErrCodeInternalUnexpected), resp.Error.Code)
	assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
}

func TestDecodeJSON(t *testing.T) {
	type dto struct {
		Name string `json:"name"`
	}

	tests := []struct {
		name    string
		body    string
		wantErr string
	}{
		{"valid", `{"name": "ok"}`, ""},
		{"empty body", ``, "must not be empty"},
		{"malformed", `{"name":`, "invalid JSON"},
		{"syntax error", `{name}`, "malformed JSON"},
		{"unknown field", `{"name": "ok", "extra": 1}`, "unknown field"},
		{"trailing value", `{"name": "ok"}{"name": "again"}`, "single JSON object"},
		{"wrong type", `{"name": 42}`, "invalid value for field"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(tt.body))

			var dst dto
			err := DecodeJSON(rec, req, &dst)

			if tt.wantErr == "" {
				require.NoError(t, err)
				assert.Equal(t, "ok", dst.Name)
				return
			}

			require.Error(t, err)
			var appErr *types.AppError
			require.ErrorAs(t, err, &appErr)
			assert.Equal(t, types.ErrCodeValidationInvalidJSON, appErr.Code)
			assert.Contains(t, appErr.Message, tt.wantErr)
		})
	}
}
