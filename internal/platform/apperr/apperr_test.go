package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid", Invalid("bad"), http.StatusBadRequest},
		{"expired", Expired("late"), http.StatusBadRequest},
		{"unauthenticated", Unauthenticated("who"), http.StatusUnauthorized},
		{"forbidden", Forbidden("no"), http.StatusForbidden},
		{"not found", NotFound("gone"), http.StatusNotFound},
		{"conflict", Conflict("twice"), http.StatusConflict},
		{"internal", Internal("boom"), http.StatusInternalServerError},
		{"plain error", errors.New("driver: bad connection"), http.StatusInternalServerError},
		{"wrapped", fmt.Errorf("redeem: %w", Conflict("twice")), http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, HTTPStatus(tc.err))
		})
	}
}

func TestPublicMessageHidesDriverErrors(t *testing.T) {
	assert.Equal(t, "internal error", PublicMessage(errors.New("dial tcp 10.0.0.1:3306: refused")))
	assert.Equal(t, "session not found", PublicMessage(NotFound("session not found")))
	assert.Equal(t, "could not allocate code", PublicMessage(Internal("could not allocate code")))
}

func TestIs(t *testing.T) {
	assert.True(t, Is(fmt.Errorf("wrap: %w", Expired("x")), CodeExpired))
	assert.False(t, Is(nil, CodeInternal))
	assert.True(t, Is(errors.New("x"), CodeInternal))
}
