package cube

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusNotFound, ErrPageNotFound},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusInternalServerError, ErrSomethingWentWrong},
		{http.StatusBadGateway, ErrSomethingWentWrong},
		{http.StatusBadRequest, ErrSomethingWentWrong},
	}

	for _, tc := range cases {
		err := statusError(http.MethodGet, "https://united-cube.com/v1/me", tc.status)
		assert.ErrorIs(t, err, tc.want, "status %d", tc.status)
		assert.Equal(t, tc.status, err.Status)
	}
}

func TestAPIErrorMessage(t *testing.T) {
	err := statusError(http.MethodGet, "https://united-cube.com/v1/clubs/x", http.StatusNotFound)
	assert.Contains(t, err.Error(), "GET")
	assert.Contains(t, err.Error(), "HTTP 404")
	assert.Contains(t, err.Error(), "page not found")
}

func TestTransportErrorKeepsCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := transportError(http.MethodGet, "https://united-cube.com/v1/me", cause)

	assert.ErrorIs(t, err, ErrSomethingWentWrong)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}
