package profiles

import (
	"encoding/json"

	"github.com/Keksclan/zoraprofiles/inflight"
)

// Sources records which layer served each half of a result.
type Sources struct {
	Profile inflight.Source `json:"profile"`
	Posts   inflight.Source `json:"posts"`
}

// Result is the outcome for one identifier. Profile and Posts hold the
// upstream JSON untouched; on failure they are null and [] and Error is set.
type Result struct {
	Handle  string          `json:"handle"`
	OK      bool            `json:"ok"`
	Profile json.RawMessage `json:"profile"`
	Posts   json.RawMessage `json:"posts"`
	Sources *Sources        `json:"sources,omitempty"`
	Error   string          `json:"error,omitempty"`
}

// Meta summarises an aggregation.
type Meta struct {
	Count       int   `json:"count"`
	HadErrors   bool  `json:"hadErrors"`
	DurationMs  int64 `json:"durationMs"`
	Concurrency int   `json:"concurrency"`
	CacheTTLMs  int64 `json:"cacheTtlMs"`
}

// Response is the body returned for a successful aggregation request.
type Response struct {
	Profiles []Result `json:"profiles"`
	Meta     Meta     `json:"meta"`
}

func failed(handle string, err error) Result {
	msg := err.Error()
	if msg == "" {
		msg = "Unknown error"
	}
	return Result{
		Handle:  handle,
		OK:      false,
		Profile: json.RawMessage("null"),
		Posts:   json.RawMessage("[]"),
		Error:   msg,
	}
}
