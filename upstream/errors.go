package upstream

import (
	"errors"
	"fmt"
)

var (
	// ErrMissingAPIKey is returned when the client has no API key. It is a
	// server configuration problem, not an upstream failure.
	ErrMissingAPIKey = errors.New("ZORA_API_KEY is not defined")

	// ErrCircuitOpen is returned without contacting the upstream while the
	// circuit breaker is open.
	ErrCircuitOpen = errors.New("upstream circuit breaker is open")
)

// StatusError is returned for a non-2xx upstream response.
type StatusError struct {
	Endpoint string
	Code     int
	Body     string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream %s returned status %d", e.Endpoint, e.Code)
	}
	return fmt.Sprintf("upstream %s returned status %d: %s", e.Endpoint, e.Code, e.Body)
}
