package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_ErrorString(t *testing.T) {
	e := NotFound("user", "u-1")
	assert.Contains(t, e.Error(), "NOT_FOUND")
	assert.Contains(t, e.Error(), "u-1")

	wrapped := &AppError{Code: "X", Message: "m", Err: errors.New("cause")}
	assert.Contains(t, wrapped.Error(), "cause")
}

func TestAppError_Unwrap(t *testing.T) {
	assert.ErrorIs(t, NotFound("user", "u-1"), ErrNotFound)
	assert.ErrorIs(t, AlreadyExists("user", "email", "a@x.com"), ErrAlreadyExists)
	assert.ErrorIs(t, InvalidInput("bad"), ErrInvalidInput)
	assert.ErrorIs(t, Unauthorized("no"), ErrUnauthorized)
	assert.ErrorIs(t, Forbidden("no"), ErrForbidden)
}

func TestAlreadyExists_NamesField(t *testing.T) {
	e := AlreadyExists("user", "username", "alice")
	assert.Contains(t, e.Message, "username")
	assert.Contains(t, e.Message, "alice")
	assert.Equal(t, http.StatusConflict, e.Status)
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"app error", Unauthorized("no"), http.StatusUnauthorized},
		{"wrapped app error", fmt.Errorf("ctx: %w", NotFound("user", "u-1")), http.StatusNotFound},
		{"sentinel not found", fmt.Errorf("x: %w", ErrNotFound), http.StatusNotFound},
		{"sentinel conflict", ErrAlreadyExists, http.StatusConflict},
		{"sentinel invalid", ErrInvalidInput, http.StatusBadRequest},
		{"sentinel unauthorized", ErrUnauthorized, http.StatusUnauthorized},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, HTTPStatus(tt.err))
		})
	}
}
