// Package httputil writes the JSON envelopes shared by every endpoint.
package httputil

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
	"github.com/utafrali/EcommerceGo/pkg/logger"
	"github.com/utafrali/EcommerceGo/pkg/validator"
)

// Response is the body of every API response. Notices carries the advisory
// messages collected while serving the request.
type Response struct {
	Data    any            `json:"data,omitempty"`
	Error   *ErrorResponse `json:"error,omitempty"`
	Notices any            `json:"notices,omitempty"`
}

// ErrorResponse is the error member of Response. RequestID echoes the
// correlation id so clients can quote it.
type ErrorResponse struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Fields    map[string]string `json:"fields,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// WriteJSON writes v with the given status. Encoding failures are ignored:
// the status line is already on the wire.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeErrorBody(w http.ResponseWriter, status int, body ErrorResponse) {
	WriteJSON(w, status, Response{Error: &body})
}

// WriteError reports err to the client. An *AppError keeps its own code and
// message. Other errors are classified with apperrors.KindOf; internal ones
// are logged, preferring the request logger over fallback, and their text
// is never sent.
func WriteError(w http.ResponseWriter, r *http.Request, err error, fallback *slog.Logger) {
	ctx := r.Context()
	requestID := logger.CorrelationIDFromContext(ctx)

	var appErr *apperrors.AppError
	if errors.As(err, &appErr) {
		writeErrorBody(w, appErr.Status, ErrorResponse{Code: appErr.Code, Message: appErr.Message, RequestID: requestID})
		return
	}

	kind := apperrors.KindOf(err)
	message := kind.Message
	if message == "" {
		message = err.Error()
	}

	if kind.Status >= http.StatusInternalServerError && kind.Sentinel != apperrors.ErrServiceUnavail {
		l := logger.FromContext(ctx)
		if l == slog.Default() && fallback != nil {
			l = fallback
		}
		l.LogAttrs(ctx, slog.LevelError, "internal error",
			slog.String("error", err.Error()),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
	}

	writeErrorBody(w, kind.Status, ErrorResponse{Code: kind.Code, Message: message, RequestID: requestID})
}

// WriteValidationError answers 400 for a request body that failed
// validator.DecodeAndValidate. Field failures are listed under fields.
func WriteValidationError(w http.ResponseWriter, err error) {
	var valErr *validator.ValidationError
	if errors.As(err, &valErr) {
		writeErrorBody(w, http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "request validation failed",
			Fields:  valErr.Fields(),
		})
		return
	}
	writeErrorBody(w, http.StatusBadRequest, ErrorResponse{Code: "INVALID_INPUT", Message: err.Error()})
}

// ParseID parses a positive integer path id. On failure it has already
// answered 400 INVALID_PARAMETER and returns false.
func ParseID(w http.ResponseWriter, param string) (int64, bool) {
	id, err := strconv.ParseInt(param, 10, 64)
	if err == nil && id > 0 {
		return id, true
	}
	writeErrorBody(w, http.StatusBadRequest, ErrorResponse{Code: "INVALID_PARAMETER", Message: "invalid id: " + param})
	return 0, false
}
