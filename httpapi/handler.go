// Package httpapi exposes the profile aggregator over HTTP. It owns request
// validation and the JSON error contract; every response, errors included,
// carries CORS headers and a JSON body.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/Keksclan/zoraprofiles/contextx"
	"github.com/Keksclan/zoraprofiles/profiles"
	"github.com/Keksclan/zoraprofiles/upstream"
)

// DefaultCacheControl lets a CDN serve a response for two minutes and then
// revalidate in the background for two more.
const DefaultCacheControl = "s-maxage=120, stale-while-revalidate=120"

// Aggregator is the part of [profiles.Service] the handler depends on.
type Aggregator interface {
	Ready() error
	Aggregate(ctx context.Context, identifiers []string) (*profiles.Response, error)
}

// Config controls request validation.
type Config struct {
	// MaxHandles is the largest number of distinct identifiers accepted.
	MaxHandles int

	// URLMaxLength bounds the request URI of GET requests.
	URLMaxLength int

	// AllowedOrigins is the CORS allow-list. Defaults to ["*"].
	AllowedOrigins []string

	// CacheControl is sent on every response. Defaults to DefaultCacheControl.
	CacheControl string

	// MaxBodyBytes caps POST bodies. Defaults to 64 KiB.
	MaxBodyBytes int64
}

// DefaultConfig returns the production limits.
func DefaultConfig() Config {
	return Config{
		MaxHandles:     20,
		URLMaxLength:   2000,
		AllowedOrigins: []string{"*"},
		CacheControl:   DefaultCacheControl,
		MaxBodyBytes:   64 << 10,
	}
}

// Handler serves the aggregation endpoint.
type Handler struct {
	cfg Config
	agg Aggregator
}

// New creates a Handler. Zero-valued fields of cfg take their defaults.
func New(cfg Config, agg Aggregator) *Handler {
	def := DefaultConfig()
	if cfg.MaxHandles <= 0 {
		cfg.MaxHandles = def.MaxHandles
	}
	if cfg.URLMaxLength <= 0 {
		cfg.URLMaxLength = def.URLMaxLength
	}
	if len(cfg.AllowedOrigins) == 0 {
		cfg.AllowedOrigins = def.AllowedOrigins
	}
	if cfg.CacheControl == "" {
		cfg.CacheControl = def.CacheControl
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = def.MaxBodyBytes
	}
	return &Handler{cfg: cfg, agg: agg}
}

type errorBody struct {
	Error    string `json:"error"`
	Message  string `json:"message,omitempty"`
	Max      int    `json:"max,omitempty"`
	Received int    `json:"received,omitempty"`
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.WriteCORS(w, r)
	w.Header().Set("Cache-Control", h.cfg.CacheControl)

	switch r.Method {
	case http.MethodOptions, http.MethodHead:
		w.WriteHeader(http.StatusNoContent)
		return
	case http.MethodGet, http.MethodPost:
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS, HEAD")
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "Method not allowed"})
		return
	}

	log := contextx.LoggerFromContext(r.Context())

	if err := h.agg.Ready(); err != nil {
		log.Error("aggregator not ready", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Server misconfig: " + err.Error()})
		return
	}

	var raw []string
	if r.Method == http.MethodPost {
		if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
			writeJSON(w, http.StatusUnsupportedMediaType, errorBody{Error: "Use application/json body"})
			return
		}
		var err error
		raw, err = bodyHandles(r, w, h.cfg.MaxBodyBytes)
		switch {
		case errors.Is(err, errBodyTooLarge):
			writeJSON(w, http.StatusRequestEntityTooLarge, errorBody{
				Error: fmt.Sprintf("Request body too large; max %d bytes", h.cfg.MaxBodyBytes),
			})
			return
		case err != nil:
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "Invalid JSON body", Message: err.Error()})
			return
		}
	} else {
		if len(requestURI(r)) > h.cfg.URLMaxLength {
			writeJSON(w, http.StatusRequestURITooLong, errorBody{Error: "URL too long; use POST / JSON body"})
			return
		}
		raw = queryHandles(r)
	}

	if len(raw) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Missing handles (POST {handles} or ?handles=...)"})
		return
	}

	ids := profiles.NormalizeIdentifiers(raw)
	if len(ids) == 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "No valid handles provided"})
		return
	}
	if len(ids) > h.cfg.MaxHandles {
		writeJSON(w, http.StatusBadRequest, errorBody{
			Error:    fmt.Sprintf("Too many handles; max %d", h.cfg.MaxHandles),
			Max:      h.cfg.MaxHandles,
			Received: len(ids),
		})
		return
	}

	resp, err := h.agg.Aggregate(r.Context(), ids)
	if err != nil {
		log.Error("aggregation failed", zap.Strings("identifiers", ids), zap.Error(err))
		if errors.Is(err, upstream.ErrMissingAPIKey) {
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Server misconfig: " + err.Error()})
			return
		}
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "Server error", Message: err.Error()})
		return
	}
	if resp.Meta.HadErrors {
		log.Info("aggregation finished with per-identifier errors",
			zap.Int("count", resp.Meta.Count),
			zap.Int64("duration_ms", resp.Meta.DurationMs),
		)
	}
	writeJSON(w, http.StatusOK, resp)
}

// requestURI is the path plus query as sent by the client.
func requestURI(r *http.Request) string {
	if r.RequestURI != "" {
		return r.RequestURI
	}
	return r.URL.RequestURI()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteError writes a JSON error body in the handler's format. It is used by
// middleware that has to answer before the handler runs.
func WriteError(w http.ResponseWriter, status int, msg, detail string) {
	writeJSON(w, status, errorBody{Error: msg, Message: detail})
}
