package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
	"github.com/utafrali/EcommerceGo/pkg/logger"
	"github.com/utafrali/EcommerceGo/pkg/validator"
)

func bufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func searchRequest() *http.Request {
	return httptest.NewRequest(http.MethodGet, "/api/v1/forum/search", nil)
}

// ─── WriteJSON ──────────────────────────────────────────────────────────────

func TestWriteJSON(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteJSON(rec, http.StatusAccepted, Response{Data: map[string]any{"total_count": 3}})

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"data":{"total_count":3}}`, rec.Body.String())
}

func TestResponse_OmitsEmptyFields(t *testing.T) {
	tests := []struct {
		name string
		resp Response
		want string
	}{
		{name: "data only", resp: Response{Data: []int{1}}, want: `{"data":[1]}`},
		{name: "error only", resp: Response{Error: &ErrorResponse{Code: "NOT_FOUND", Message: "gone"}}, want: `{"error":{"code":"NOT_FOUND","message":"gone"}}`},
		{name: "notices", resp: Response{Data: "ok", Notices: []string{"fallback search used"}}, want: `{"data":"ok","notices":["fallback search used"]}`},
		{name: "request id", resp: Response{Error: &ErrorResponse{Code: "X", Message: "y", RequestID: "req-1"}}, want: `{"error":{"code":"X","message":"y","request_id":"req-1"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw, err := json.Marshal(tt.resp)
			require.NoError(t, err)
			assert.JSONEq(t, tt.want, string(raw))
		})
	}
}

// ─── WriteError ─────────────────────────────────────────────────────────────

func TestWriteError(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantStatus  int
		wantCode    string
		wantMessage string
		wantLogged  bool
	}{
		{
			name:        "app error",
			err:         apperrors.NotFound("topic 42 not found"),
			wantStatus:  http.StatusNotFound,
			wantCode:    "NOT_FOUND",
			wantMessage: "topic 42 not found",
		},
		{
			name:        "wrapped not found",
			err:         fmt.Errorf("load topic: %w", apperrors.ErrNotFound),
			wantStatus:  http.StatusNotFound,
			wantCode:    "NOT_FOUND",
			wantMessage: "resource not found",
		},
		{
			name:        "conflict",
			err:         fmt.Errorf("reindex: %w", apperrors.ErrConflict),
			wantStatus:  http.StatusConflict,
			wantCode:    "CONFLICT",
			wantMessage: "resource is busy",
		},
		{
			name:        "invalid input shows its text",
			err:         fmt.Errorf("search_in %q: %w", "title", apperrors.ErrInvalidInput),
			wantStatus:  http.StatusBadRequest,
			wantCode:    "INVALID_INPUT",
			wantMessage: `search_in "title": invalid input`,
		},
		{
			name:        "unavailable is not logged",
			err:         fmt.Errorf("elasticsearch: %w", apperrors.ErrServiceUnavail),
			wantStatus:  http.StatusServiceUnavailable,
			wantCode:    "SERVICE_UNAVAILABLE",
			wantMessage: "service unavailable",
		},
		{
			name:        "unknown error is hidden and logged",
			err:         errors.New("pq: relation topics does not exist"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    "INTERNAL_ERROR",
			wantMessage: "an internal error occurred",
			wantLogged:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, buf := bufferLogger()
			rec := httptest.NewRecorder()
			WriteError(rec, searchRequest(), tt.err, l)

			assert.Equal(t, tt.wantStatus, rec.Code)
			resp := decode(t, rec)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			assert.Equal(t, tt.wantMessage, resp.Error.Message)
			assert.Nil(t, resp.Data)

			if tt.wantLogged {
				assert.Contains(t, buf.String(), "relation topics does not exist")
				assert.Contains(t, buf.String(), `"path":"/api/v1/forum/search"`)
			} else {
				assert.Empty(t, buf.String())
			}
		})
	}
}

func TestWriteError_PrefersRequestLogger(t *testing.T) {
	fallback, fallbackBuf := bufferLogger()
	scoped, scopedBuf := bufferLogger()

	req := searchRequest()
	req = req.WithContext(logger.NewContext(req.Context(), scoped))
	WriteError(httptest.NewRecorder(), req, errors.New("boom"), fallback)

	assert.Contains(t, scopedBuf.String(), "boom")
	assert.Empty(t, fallbackBuf.String())
}

func TestWriteError_RequestID(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{name: "app error", err: apperrors.InvalidInput("bad from")},
		{name: "sentinel", err: apperrors.ErrNotFound},
		{name: "internal", err: errors.New("boom")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := searchRequest()
			req = req.WithContext(logger.WithCorrelationID(req.Context(), "corr-77"))

			rec := httptest.NewRecorder()
			WriteError(rec, req, tt.err, nil)
			assert.Equal(t, "corr-77", decode(t, rec).Error.RequestID)
		})
	}

	rec := httptest.NewRecorder()
	WriteError(rec, searchRequest(), apperrors.ErrNotFound, nil)
	assert.NotContains(t, rec.Body.String(), "request_id")
}

// ─── WriteValidationError ───────────────────────────────────────────────────

func TestWriteValidationError(t *testing.T) {
	type indexRequest struct {
		ID      int64 `json:"id" validate:"required,gt=0"`
		TopicID int64 `json:"topic_id" validate:"required,gt=0"`
	}

	rec := httptest.NewRecorder()
	WriteValidationError(rec, validator.Validate(indexRequest{ID: 3}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	assert.Equal(t, map[string]string{"topic_id": "is required"}, resp.Error.Fields)
}

func TestWriteValidationError_MalformedBody(t *testing.T) {
	rec := httptest.NewRecorder()
	WriteValidationError(rec, fmt.Errorf("%w: unexpected EOF", validator.ErrMalformedBody))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	resp := decode(t, rec)
	assert.Equal(t, "INVALID_INPUT", resp.Error.Code)
	assert.Equal(t, "invalid request body: unexpected EOF", resp.Error.Message)
	assert.Empty(t, resp.Error.Fields)
}

// ─── ParseID ────────────────────────────────────────────────────────────────

func TestParseID(t *testing.T) {
	tests := []struct {
		param  string
		wantID int64
		wantOK bool
	}{
		{param: "1", wantID: 1, wantOK: true},
		{param: "9007199254740993", wantID: 9007199254740993, wantOK: true},
		{param: "0"},
		{param: "-3"},
		{param: "abc"},
		{param: ""},
		{param: "1.5"},
		{param: "99999999999999999999"},
	}

	for _, tt := range tests {
		t.Run(tt.param, func(t *testing.T) {
			rec := httptest.NewRecorder()
			id, ok := ParseID(rec, tt.param)

			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantID, id)
			if tt.wantOK {
				assert.Zero(t, rec.Body.Len())
				return
			}
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode(t, rec)
			assert.Equal(t, "INVALID_PARAMETER", resp.Error.Code)
			assert.Equal(t, "invalid id: "+tt.param, resp.Error.Message)
		})
	}
}
