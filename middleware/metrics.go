package middleware

import (
	"net/http"
	"time"

	"github.com/Keksclan/zoraprofiles/internal/httpx"
	"github.com/Keksclan/zoraprofiles/metrics"
)

// Metrics records request counts and latency. A nil m disables it.
func Metrics(m *metrics.Collectors) Middleware {
	return func(next http.Handler) http.Handler {
		if m == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := httpx.NewStatusWriter(w)
			next.ServeHTTP(sw, r)
			m.ObserveHTTP(r.Method, sw.Status, time.Since(start))
		})
	}
}
