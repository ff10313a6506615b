package main

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindStatus(t *testing.T) {
	tests := []struct {
		kind ErrorKind
		want int
	}{
		{KindUnauthenticated, http.StatusUnauthorized},
		{KindValidation, http.StatusBadRequest},
		{KindAccessDenied, http.StatusForbidden},
		{KindNotFound, http.StatusNotFound},
		{KindConflict, http.StatusConflict},
		{KindBackend, http.StatusInternalServerError},
		{ErrorKind("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := tt.kind.Status(); got != tt.want {
			t.Errorf("%s.Status() = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), kindOf(nil))
	assert.Equal(t, KindNotFound, kindOf(notFound("x")))
	assert.Equal(t, KindConflict, kindOf(fmt.Errorf("wrapped: %w", conflict("dup"))))
	assert.Equal(t, KindBackend, kindOf(errors.New("plain")))
}

func TestBackendErrorUnwraps(t *testing.T) {
	cause := errors.New("connection refused")
	err := backendError(cause, "could not load")
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestWriteError(t *testing.T) {
	t.Run("user facing message kept", func(t *testing.T) {
		rr := httptest.NewRecorder()
		writeError(rr, accessDenied("you are not part of this conversation"))
		assert.Equal(t, http.StatusForbidden, rr.Code)
		assert.JSONEq(t, `{"error":"access_denied","message":"you are not part of this conversation"}`, rr.Body.String())
	})

	t.Run("backend detail hidden", func(t *testing.T) {
		rr := httptest.NewRecorder()
		writeError(rr, errors.New("pq: password authentication failed"))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
		assert.JSONEq(t, `{"error":"backend_error","message":"internal error"}`, rr.Body.String())
	})
}
