package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapping(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("user not found"), http.StatusNotFound},
		{Forbidden("nope"), http.StatusForbidden},
		{Conflict("taken"), http.StatusConflict},
		{Validation("bad input"), http.StatusUnprocessableEntity},
		{Internal("boom", errors.New("pg down")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Status(tt.err))
	}
}

func TestStatusUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("loading message: %w", NotFound("message not found"))
	assert.Equal(t, http.StatusNotFound, Status(wrapped))
	assert.True(t, IsKind(wrapped, KindNotFound))
}

func TestPublicHidesInternalDetail(t *testing.T) {
	err := Internal("failed to query store", errors.New("dial tcp: connection refused"))
	assert.Equal(t, "internal error", Public(err))
	assert.NotContains(t, Public(err), "dial tcp")

	assert.Equal(t, "username already taken", Public(Conflict("username already taken")))
	assert.Equal(t, "internal error", Public(errors.New("raw")))
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Internal("failed to query store", errors.New("timeout"))
	assert.Contains(t, err.Error(), "timeout")
	assert.ErrorContains(t, err, "failed to query store")
}
