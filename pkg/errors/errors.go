// Package errors defines the error taxonomy shared by the service's layers
// and its mapping onto HTTP responses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors. Wrap them, or return an *AppError carrying one, so callers
// can test the kind with errors.Is.
var (
	ErrNotFound       = errors.New("resource not found")
	ErrInvalidInput   = errors.New("invalid input")
	ErrInternal       = errors.New("internal error")
	ErrConflict       = errors.New("conflict")
	ErrServiceUnavail = errors.New("service unavailable")
)

// Kind describes how one sentinel is reported to clients.
type Kind struct {
	Sentinel error
	Status   int
	Code     string
	// Message is shown when the error carries no message of its own. Empty
	// means the error text itself is safe to show.
	Message string
}

var kinds = []Kind{
	{Sentinel: ErrNotFound, Status: http.StatusNotFound, Code: "NOT_FOUND", Message: "resource not found"},
	{Sentinel: ErrConflict, Status: http.StatusConflict, Code: "CONFLICT", Message: "resource is busy"},
	{Sentinel: ErrInvalidInput, Status: http.StatusBadRequest, Code: "INVALID_INPUT"},
	{Sentinel: ErrServiceUnavail, Status: http.StatusServiceUnavailable, Code: "SERVICE_UNAVAILABLE", Message: "service unavailable"},
}

var internalKind = Kind{
	Sentinel: ErrInternal,
	Status:   http.StatusInternalServerError,
	Code:     "INTERNAL_ERROR",
	Message:  "an internal error occurred",
}

// KindOf classifies err by the first sentinel in its chain. Unknown errors
// are internal.
func KindOf(err error) Kind {
	for _, k := range kinds {
		if errors.Is(err, k.Sentinel) {
			return k
		}
	}
	return internalKind
}

// AppError is an error with a client-facing code, message and status.
type AppError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func newAppError(sentinel error, message string) *AppError {
	k := KindOf(sentinel)
	return &AppError{Code: k.Code, Message: message, Status: k.Status, Err: sentinel}
}

// NotFound creates a 404 error.
func NotFound(message string) *AppError { return newAppError(ErrNotFound, message) }

// InvalidInput creates a 400 error.
func InvalidInput(message string) *AppError { return newAppError(ErrInvalidInput, message) }

// Conflict creates a 409 error.
func Conflict(message string) *AppError { return newAppError(ErrConflict, message) }

// ServiceUnavailable creates a 503 error for a missing or unreachable backend.
func ServiceUnavailable(message string) *AppError {
	return newAppError(ErrServiceUnavail, message)
}

// Internal creates a 500 error that hides err from clients.
func Internal(err error) *AppError {
	return &AppError{
		Code:    internalKind.Code,
		Message: internalKind.Message,
		Status:  internalKind.Status,
		Err:     err,
	}
}

// HTTPStatus returns the HTTP status code for err.
func HTTPStatus(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Status
	}
	return KindOf(err).Status
}
