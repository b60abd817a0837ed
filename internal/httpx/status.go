// Package httpx holds small net/http helpers shared by the middleware.
package httpx

import "net/http"

// StatusWriter records the status code and the number of body bytes written
// through it.
type StatusWriter struct {
	http.ResponseWriter
	Status  int
	Written int
}

// NewStatusWriter wraps w. If the handler never calls WriteHeader the
// recorded status stays 200.
func NewStatusWriter(w http.ResponseWriter) *StatusWriter {
	if sw, ok := w.(*StatusWriter); ok {
		return sw
	}
	return &StatusWriter{ResponseWriter: w, Status: http.StatusOK}
}

func (w *StatusWriter) WriteHeader(code int) {
	w.Status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *StatusWriter) Write(p []byte) (int, error) {
	n, err := w.ResponseWriter.Write(p)
	w.Written += n
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (w *StatusWriter) Unwrap() http.ResponseWriter { return w.ResponseWriter }
