package middleware

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/Keksclan/zoraprofiles/contextx"
	"github.com/Keksclan/zoraprofiles/internal/httpx"
)

// Logger writes one access log line per request using the request-scoped
// logger. 5xx responses are logged at warn level.
func Logger() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := httpx.NewStatusWriter(w)
			next.ServeHTTP(sw, r)

			log := contextx.LoggerFromContext(r.Context())
			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.Status),
				zap.Int("bytes", sw.Written),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote_addr", r.RemoteAddr),
			}
			if sw.Status >= http.StatusInternalServerError {
				log.Warn("request", fields...)
				return
			}
			log.Info("request", fields...)
		})
	}
}
