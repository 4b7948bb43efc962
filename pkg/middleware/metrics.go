// Package middleware holds the HTTP middleware of the lookup API: request
// IDs, Prometheus metrics, request timeouts, CORS and per-client rate
// limits.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/metrics"
)

// Metrics records request count, latency and in-flight requests on m.
// Paths outside the served prefixes share the "other" label.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			rec := &recorder{ResponseWriter: w}
			began := time.Now()
			defer func() {
				m.HTTPRequestsInFlight.Dec()
				route := routeLabel(r.URL.Path)
				m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(began).Seconds())
				m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(rec.code())).Inc()
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// recorder remembers the first status written through it.
type recorder struct {
	http.ResponseWriter
	status int
}

func (rw *recorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	return rw.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (rw *recorder) Unwrap() http.ResponseWriter { return rw.ResponseWriter }

func (rw *recorder) code() int {
	if rw.status == 0 {
		return http.StatusOK
	}
	return rw.status
}

var servedPrefixes = []string{"/api/v1/", "/health/", "/metrics"}

func routeLabel(path string) string {
	for _, p := range servedPrefixes {
		if strings.HasPrefix(path, p) {
			return path
		}
	}
	return "other"
}
