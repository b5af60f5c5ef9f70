// Package store provides the key-value store behind the engine's caches.
// Values are JSON-serialized; entries carry their own TTL. Implementations
// are last-write-wins with no cross-key transactions.
package store

import "time"

// Key prefixes for the three logical cache namespaces.
const (
	PrefixAvailability = "avail:"
	PrefixStreamList   = "list:"
	PrefixResolvedURL  = "url:"
)

// Store is a TTL-aware key-value store. Get decodes the stored JSON into
// value and reports the entry age so callers can advertise staleness.
type Store interface {
	Get(key string, value interface{}) (ok bool, age time.Duration)
	Set(key string, value interface{}, ttl time.Duration) error
	Delete(key string) error
	CleanExpired()
	Close() error
}
