// Package inflight coalesces concurrent loads of the same key so that at most
// one upstream computation per key is outstanding at any time.
package inflight

import (
	"encoding/json"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Source names the layer that served a value.
type Source string

const (
	// SourceCache means the value came from the cache without any load.
	SourceCache Source = "cache"
	// SourceInflight means the caller joined a load started by someone else.
	SourceInflight Source = "inflight"
	// SourceLive means the caller ran the load itself.
	SourceLive Source = "live"
)

// Group deduplicates concurrent loads. The zero value is ready to use.
type Group struct {
	sf singleflight.Group
}

// New returns an empty Group.
func New() *Group {
	return &Group{}
}

// Do runs fn for key unless a load for key is already running, in which case
// it waits for that load and returns its outcome. Every caller sharing a load
// observes the same value and error. The key is forgotten as soon as fn
// returns, so the next call after that starts a fresh load.
//
// The returned Source is SourceLive for the caller whose fn ran and
// SourceInflight for callers that joined it.
func (g *Group) Do(key string, fn func() (json.RawMessage, error)) (json.RawMessage, Source, error) {
	// fn runs on the calling goroutine of the leader only.
	leader := false
	v, err, _ := g.sf.Do(key, func() (val any, err error) {
		leader = true
		defer func() {
			if r := recover(); r != nil {
				val, err = nil, fmt.Errorf("inflight: load for %q panicked: %v", key, r)
			}
		}()
		return fn()
	})

	src := SourceInflight
	if leader {
		src = SourceLive
	}
	if err != nil {
		return nil, src, err
	}
	raw, _ := v.(json.RawMessage)
	return raw, src, nil
}
