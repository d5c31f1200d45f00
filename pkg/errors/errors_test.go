package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
	}{
		{"not found", NotFound("topic 9 not found"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"invalid input", InvalidInput("query must not be empty"), "INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput},
		{"conflict", Conflict("a reindex is already running"), "CONFLICT", http.StatusConflict, ErrConflict},
		{"unavailable", ServiceUnavailable("no index provider configured"), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, ErrServiceUnavail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.status, HTTPStatus(fmt.Errorf("reindex: %w", tt.err)))
		})
	}
}

func TestInternal_HidesCause(t *testing.T) {
	cause := errors.New("bleve: index closed")
	err := Internal(cause)

	assert.Equal(t, "INTERNAL_ERROR", err.Code)
	assert.Equal(t, "an internal error occurred", err.Message)
	assert.Equal(t, http.StatusInternalServerError, err.Status)
	assert.ErrorIs(t, err, cause)
}

func TestAppError_Error(t *testing.T) {
	assert.Equal(t, "CONFLICT: busy", (&AppError{Code: "CONFLICT", Message: "busy"}).Error())
	assert.Equal(t, "INVALID_INPUT: bad origin: invalid input", InvalidInput("bad origin").Error())
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		err  error
		code string
	}{
		{ErrNotFound, "NOT_FOUND"},
		{fmt.Errorf("search: %w", ErrInvalidInput), "INVALID_INPUT"},
		{fmt.Errorf("reindex: %w", ErrConflict), "CONFLICT"},
		{fmt.Errorf("es: %w", ErrServiceUnavail), "SERVICE_UNAVAILABLE"},
		{ErrInternal, "INTERNAL_ERROR"},
		{errors.New("boom"), "INTERNAL_ERROR"},
		{nil, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.code, KindOf(tt.err).Code, "%v", tt.err)
	}
}

func TestHTTPStatus(t *testing.T) {
	assert.Equal(t, http.StatusTeapot, HTTPStatus(&AppError{Status: http.StatusTeapot}))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(fmt.Errorf("get topic: %w", ErrNotFound)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("unexpected")))
}
