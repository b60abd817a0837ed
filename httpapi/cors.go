package httpapi

import (
	"net/http"
	"slices"
)

// WriteCORS echoes the request origin when it is allowed and falls back to
// the first allowed origin otherwise. Headers are set on every response,
// errors included. Routes outside the handler call it for their own error
// responses.
func (h *Handler) WriteCORS(w http.ResponseWriter, r *http.Request) {
	origin := r.Header.Get("Origin")
	allowed := h.cfg.AllowedOrigins[0]
	if origin != "" && slices.Contains(h.cfg.AllowedOrigins, origin) {
		allowed = origin
	}
	hdr := w.Header()
	hdr.Set("Vary", "Origin")
	hdr.Set("Access-Control-Allow-Origin", allowed)
	hdr.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, HEAD")
	hdr.Set("Access-Control-Allow-Headers", "Content-Type")
}
