package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEchoContext(header string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if header != "" {
		req.Header.Set(OwnerHeader, header)
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestOwnerMiddleware(t *testing.T) {
	handler := Owner()(func(c echo.Context) error {
		ownerID, ok := OwnerID(c)
		require.True(t, ok)
		assert.Equal(t, int32(7), ownerID)
		return c.NoContent(http.StatusOK)
	})

	c, _ := newEchoContext("7")
	assert.NoError(t, handler(c))

	for _, header := range []string{"", "abc", "-1", "0"} {
		c, _ := newEchoContext(header)
		err := handler(c)
		var httpErr *echo.HTTPError
		require.ErrorAs(t, err, &httpErr, "header %q must be rejected", header)
		assert.Equal(t, http.StatusUnauthorized, httpErr.Code)
	}
}

func TestRateLimiter(t *testing.T) {
	limiter := RateLimiter(RateLimiterConfig{RPS: 1, Burst: 2, TTL: time.Minute})
	handler := limiter(func(c echo.Context) error {
		return c.NoContent(http.StatusOK)
	})

	// The burst allows two immediate requests; the third is rejected.
	for i := 0; i < 2; i++ {
		c, _ := newEchoContext("1")
		require.NoError(t, handler(c))
	}
	c, _ := newEchoContext("1")
	err := handler(c)
	var httpErr *echo.HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Code)

	// A different owner has an independent budget.
	c, _ = newEchoContext("2")
	assert.NoError(t, handler(c))
}
