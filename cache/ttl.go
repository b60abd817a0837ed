package cache

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// TTL is a bounded key-value store with per-entry expiration and LRU
// ordering. Reads bump an entry to the most-recently-used position; writes
// that would exceed maxEntries evict the least-recently-used entry first.
type TTL struct {
	lru *expirable.LRU[string, json.RawMessage]
}

// NewTTL creates a TTL store holding at most maxEntries values, each living
// for ttl after its last write.
func NewTTL(maxEntries int, ttl time.Duration) *TTL {
	if maxEntries < 1 {
		maxEntries = 1
	}
	return &TTL{lru: expirable.NewLRU[string, json.RawMessage](maxEntries, nil, ttl)}
}

// Get returns the value for key. Expired entries are reported as a miss.
func (c *TTL) Get(key string) (json.RawMessage, bool) {
	v, ok := c.lru.Get(key)
	if !ok {
		return nil, false
	}
	return bytes.Clone(v), true
}

// Set inserts or overwrites key with a fresh expiry.
func (c *TTL) Set(key string, val json.RawMessage) {
	c.lru.Add(key, bytes.Clone(val))
}

// Len reports the number of entries, including expired ones not yet swept.
func (c *TTL) Len() int {
	return c.lru.Len()
}

var _ Store = (*TTL)(nil)
