// Package handler is the Vercel Go runtime entrypoint. The server, and with
// it the response cache and inflight table, is built once per function
// instance and shared by every invocation that instance serves.
package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	zp "github.com/Keksclan/zoraprofiles"
	"github.com/Keksclan/zoraprofiles/httpapi"
	"github.com/Keksclan/zoraprofiles/internal/settings"
	"github.com/Keksclan/zoraprofiles/profiles"
)

var defaultHandler http.Handler

func init() {
	defaultHandler = build()
}

func build() http.Handler {
	logger, err := zap.NewProduction()
	if err != nil {
		logger = zap.NewNop()
	}

	s, err := settings.Load()
	if err != nil {
		logger.Error("invalid configuration", zap.Error(err))
		return httpapi.New(httpapi.DefaultConfig(), misconfigured{err: err})
	}

	opts := append(zp.DefaultOptions(), zp.WithLogger(logger))
	opts = append(opts, zp.FromSettings(s)...)
	return zp.NewServer(opts...).ProfilesHandler()
}

// misconfigured reports a settings error through the regular handler so
// error responses keep their CORS headers.
type misconfigured struct{ err error }

func (m misconfigured) Ready() error { return m.err }

func (m misconfigured) Aggregate(context.Context, []string) (*profiles.Response, error) {
	return nil, m.err
}

// Handler is the entry point for Vercel's Go runtime.
func Handler(w http.ResponseWriter, r *http.Request) {
	defaultHandler.ServeHTTP(w, r)
}
