package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIPRateLimitBurst(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	})
	handler := IPRateLimit(NewRateLimiter(1, 2))(next)

	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/images", nil)
		req.Header.Set("X-Real-IP", ip)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusCreated, send("10.0.0.1"))
	require.Equal(t, http.StatusCreated, send("10.0.0.1"))
	require.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))

	// A different client has its own bucket.
	require.Equal(t, http.StatusCreated, send("10.0.0.2"))
}

func TestRealIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.7:1234"
	require.Equal(t, "192.0.2.7", realIPFromRequest(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 192.0.2.7")
	require.Equal(t, "203.0.113.9", realIPFromRequest(req))

	req.Header.Set("X-Real-IP", "198.51.100.3")
	require.Equal(t, "198.51.100.3", realIPFromRequest(req))
}
