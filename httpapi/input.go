package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
)

var errBodyTooLarge = errors.New("request body too large")

// queryHandles reads ?handles=. A single value is a comma-separated list;
// repeated parameters are taken one identifier each.
func queryHandles(r *http.Request) []string {
	vals := r.URL.Query()["handles"]
	switch len(vals) {
	case 0:
		return nil
	case 1:
		if vals[0] == "" {
			return nil
		}
		return strings.Split(vals[0], ",")
	default:
		return vals
	}
}

// bodyHandles reads {"handles": ...} where handles is either an array or a
// comma-separated string. An empty body counts as missing handles.
func bodyHandles(r *http.Request, w http.ResponseWriter, limit int64) ([]string, error) {
	var body struct {
		Handles json.RawMessage `json:"handles"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, limit))
	if err := dec.Decode(&body); err != nil {
		var mbe *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return nil, nil
		case errors.As(err, &mbe):
			return nil, errBodyTooLarge
		default:
			return nil, err
		}
	}
	return rawHandles(body.Handles), nil
}

func rawHandles(raw json.RawMessage) []string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil || s == "" {
			return nil
		}
		return strings.Split(s, ",")
	case '[':
		var items []json.RawMessage
		if err := json.Unmarshal(raw, &items); err != nil {
			return nil
		}
		out := make([]string, 0, len(items))
		for _, it := range items {
			if s, ok := scalar(it); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		if s, ok := scalar(raw); ok && s != "false" {
			return strings.Split(s, ",")
		}
		return nil
	}
}

// scalar renders a JSON string, number or boolean as text.
func scalar(raw json.RawMessage) (string, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", false
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return "", false
		}
		return s, true
	case '{', '[', 'n':
		return "", false
	default:
		return string(raw), true
	}
}
