package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCORS(t *testing.T) {
	called := 0
	h := CORS([]string{"https://maps.example.org"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called++
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/lookup?q=paris", nil)
	req.Header.Set("Origin", "https://maps.example.org")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "https://maps.example.org", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, 1, called)

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/lookup/batch", nil)
	req.Header.Set("Origin", "https://maps.example.org")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, 1, called, "preflight is answered without the handler")

	req = httptest.NewRequest(http.MethodGet, "/api/v1/lookup?q=paris", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, 2, called)
}
