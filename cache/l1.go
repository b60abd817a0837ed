package cache

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// L1 is an in-process store backed by ristretto. Admission and eviction are
// approximate (TinyLFU), so a Set may be dropped under contention; use [TTL]
// when exact LRU behaviour matters.
type L1 struct {
	rc  *ristretto.Cache[string, []byte]
	ttl time.Duration
}

// NewL1 creates a ristretto-backed store. maxEntries controls the maximum
// number of entries the cache can hold.
func NewL1(maxEntries int64, ttl time.Duration) (*L1, error) {
	rc, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters:        maxEntries * 10,
		MaxCost:            maxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &L1{rc: rc, ttl: ttl}, nil
}

// Get retrieves a value by key.
func (l *L1) Get(key string) (json.RawMessage, bool) {
	v, ok := l.rc.Get(key)
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// Set stores val under key for the configured TTL.
func (l *L1) Set(key string, val json.RawMessage) {
	l.rc.SetWithTTL(key, bytes.Clone(val), 1, l.ttl)
	l.rc.Wait()
}

// Close stops ristretto's background goroutines.
func (l *L1) Close() {
	l.rc.Close()
}

var _ Store = (*L1)(nil)
