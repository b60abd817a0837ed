package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/Keksclan/zoraprofiles/contextx"
	"github.com/Keksclan/zoraprofiles/httpapi"
)

// Recover turns a panic in the wrapped handler into a JSON 500 response
// instead of a dropped connection. http.ErrAbortHandler is re-panicked.
func Recover() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				contextx.LoggerFromContext(r.Context()).Error("handler panicked",
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()),
				)
				httpapi.WriteError(w, http.StatusInternalServerError, "Server error", fmt.Sprint(rec))
			}()
			next.ServeHTTP(w, r)
		})
	}
}
