// Package middleware provides reusable HTTP middleware for request IDs,
// Prometheus metrics, rate limiting and request timeouts.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/wikidump/pkg/metrics"
)

const (
	articlesPrefix = "/api/v1/articles/"
	unmatchedPath  = "other"
)

// routes are the paths recorded under their own label.
var routes = map[string]bool{
	"/api/v1/cache/stats":      true,
	"/api/v1/cache/invalidate": true,
	"/api/v1/analytics":        true,
	"/health/live":             true,
	"/health/ready":            true,
}

// Metrics records request count and latency per method, route and status,
// and the number of requests in flight.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			duration := time.Since(start).Seconds()
			path := normalizePath(r.URL.Path)

			m.HTTPRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(sw.status),
			).Inc()

			m.HTTPRequestDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(duration)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

// normalizePath maps a request path to a bounded label set: every title
// shares one label and paths outside the API share another.
func normalizePath(path string) string {
	switch {
	case strings.HasPrefix(path, articlesPrefix):
		return articlesPrefix + "{title}"
	case routes[path]:
		return path
	default:
		return unmatchedPath
	}
}
