// Package cache provides the process-local stores that keep upstream
// responses between requests. The default store is an exact TTL+LRU map; an
// approximate ristretto-backed store is available for larger deployments.
package cache

import "encoding/json"

// Store is the contract the aggregator relies on. Implementations must be
// safe for concurrent use and must never return an expired value.
type Store interface {
	// Get returns the value stored under key. The boolean reports a hit.
	Get(key string) (json.RawMessage, bool)

	// Set stores val under key using the store's configured TTL.
	Set(key string, val json.RawMessage)
}
