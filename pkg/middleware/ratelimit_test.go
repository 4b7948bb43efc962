package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiterRefills(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewLimiter(2, time.Minute)
	l.now = func() time.Time { return now }

	assert.True(t, l.Allow("a"))
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
	assert.True(t, l.Allow("b"), "clients have separate buckets")

	now = now.Add(30 * time.Second)
	assert.True(t, l.Allow("a"))
	assert.False(t, l.Allow("a"))
}

func TestPerSecondWindow(t *testing.T) {
	now := time.Unix(1000, 0)
	l := PerSecond(4)
	l.now = func() time.Time { return now }

	for range 4 {
		require.True(t, l.Allow("a"))
	}
	assert.False(t, l.Allow("a"))

	now = now.Add(250 * time.Millisecond)
	assert.True(t, l.Allow("a"), "a quarter second refills one request")
	assert.False(t, l.Allow("a"))
}

func TestLimiterEvictsIdleClients(t *testing.T) {
	now := time.Unix(1000, 0)
	l := NewLimiter(1, time.Minute)
	l.now = func() time.Time { return now }
	require.True(t, l.Allow("a"))

	now = now.Add(3 * time.Minute)
	l.evict()
	assert.Empty(t, l.buckets)
}

func TestRateLimitMiddleware(t *testing.T) {
	l := NewLimiter(1, time.Minute)
	h := RateLimit(l)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	do := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = "10.0.0.1:5000"
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, do("/api/v1/lookup?q=paris").Code)
	rec := do("/api/v1/lookup?q=paris")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	assert.Equal(t, http.StatusOK, do("/health/ready").Code)
	assert.Equal(t, http.StatusOK, do("/metrics").Code)
}
