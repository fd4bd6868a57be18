// Package cache holds the in-process TTL caches: market listings, wallet
// snapshots and wallet history.
package cache

import "time"

// Cache is a best-effort TTL cache. Set may drop a write, so a miss is
// always possible and callers recompute.
type Cache interface {
	Get(key string) (interface{}, bool)
	Set(key string, value interface{}, ttl time.Duration) bool
	Delete(key string)
	Clear()
	Close()
}

// Lookup returns the value under key when present and of type T. A value
// of another type counts as a miss.
func Lookup[T any](c Cache, key string) (T, bool) {
	var zero T
	if c == nil {
		return zero, false
	}

	value, found := c.Get(key)
	if !found {
		return zero, false
	}

	typed, ok := value.(T)
	if !ok {
		CacheTypeMismatchesTotal.Inc()
		return zero, false
	}
	return typed, true
}

// Key joins a namespace and an id, e.g. Key("wallet", address).
func Key(namespace string, id string) string {
	return namespace + ":" + id
}
