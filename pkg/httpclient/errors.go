package httpclient

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apperrors "github.com/utafrali/EcommerceGo/pkg/errors"
)

// maxErrorBody bounds how much of an error response is read.
const maxErrorBody = 1 << 20

// statusSentinels are the downstream statuses whose meaning carries over to
// the caller. 429 is reported as unavailability.
var statusSentinels = map[int]error{
	http.StatusNotFound:            apperrors.ErrNotFound,
	http.StatusBadRequest:          apperrors.ErrInvalidInput,
	http.StatusUnprocessableEntity: apperrors.ErrInvalidInput,
	http.StatusConflict:            apperrors.ErrConflict,
	http.StatusTooManyRequests:     apperrors.ErrServiceUnavail,
	http.StatusServiceUnavailable:  apperrors.ErrServiceUnavail,
}

// errorBody accepts both the httputil envelope ({"error":{"code","message"}})
// and the Elasticsearch one ({"error":{"type","reason"}}).
type errorBody struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Type    string `json:"type"`
		Reason  string `json:"reason"`
	} `json:"error"`
}

func (b errorBody) codeAndMessage() (code, message string) {
	code, message = b.Error.Code, b.Error.Message
	if code == "" {
		code = b.Error.Type
	}
	if message == "" {
		message = b.Error.Reason
		if b.Error.Type != "" {
			message = b.Error.Type + ": " + message
		}
	}
	return code, message
}

// ParseResponseError turns a non-2xx response from service into an error.
// The body is consumed and closed.
func ParseResponseError(resp *http.Response, service string) error {
	return ParseErrorBody(resp.StatusCode, resp.Body, service)
}

// ParseErrorBody is ParseResponseError for clients that hand out the status
// and body separately. Statuses in statusSentinels become an *AppError with
// the matching sentinel; other 4xx keep their status and downstream code;
// 5xx become plain errors.
func ParseErrorBody(status int, body io.ReadCloser, service string) error {
	defer func() { _ = body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", service, status, err)
	}

	var parsed errorBody
	if json.Unmarshal(raw, &parsed) != nil || parsed.Error == nil {
		text := strings.TrimSpace(string(raw))
		if text == "" {
			text = http.StatusText(status)
		}
		return statusError(status, "", text, service)
	}
	code, message := parsed.codeAndMessage()
	return statusError(status, code, message, service)
}

func statusError(status int, code, message, service string) error {
	qualified := service + ": " + message

	if sentinel, ok := statusSentinels[status]; ok {
		kind := apperrors.KindOf(sentinel)
		return &apperrors.AppError{Code: kind.Code, Message: qualified, Status: kind.Status, Err: sentinel}
	}
	if status >= http.StatusInternalServerError {
		if code != "" {
			return fmt.Errorf("%s server error (%d/%s): %s", service, status, code, message)
		}
		return fmt.Errorf("%s server error (%d): %s", service, status, message)
	}
	if code == "" {
		code = strings.ToUpper(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
	return &apperrors.AppError{Code: code, Message: qualified, Status: status, Err: errors.New(message)}
}
