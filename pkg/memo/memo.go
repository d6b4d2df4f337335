// Package memo provides TTL memoization for idempotent external lookups.
//
// Keys are a content hash of the call arguments, so callers memoize by value
// and never by receiver identity. Entries expire purely by TTL; the only
// invalidation hook is a manual clear-all.
package memo

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
)

// Store is a concurrent-safe TTL cache keyed by argument content.
type Store struct {
	c *cache.Cache
}

// New creates a store whose entries live for ttl. Expired entries are swept
// every cleanup interval.
func New(ttl, cleanup time.Duration) *Store {
	return &Store{c: cache.New(ttl, cleanup)}
}

// Key builds a deterministic cache key from the call arguments.
func Key(args ...interface{}) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%#v", args)))
	return hex.EncodeToString(sum[:])
}

// Get returns the cached value for key, if present and unexpired.
func (s *Store) Get(key string) (interface{}, bool) {
	return s.c.Get(key)
}

// Set stores value under key with the store's default TTL.
func (s *Store) Set(key string, value interface{}) {
	s.c.SetDefault(key, value)
}

// Do returns the memoized result for the given arguments, calling fn on a
// miss. Errors are never cached, and neither are nil results, so a transient
// upstream failure does not poison the cache.
func (s *Store) Do(key string, fn func() (interface{}, error)) (interface{}, bool, error) {
	if v, ok := s.c.Get(key); ok {
		return v, true, nil
	}
	v, err := fn()
	if err != nil {
		return nil, false, err
	}
	if v != nil {
		s.c.SetDefault(key, v)
	}
	return v, false, nil
}

// Flush drops every entry.
func (s *Store) Flush() {
	s.c.Flush()
}

// Len reports the number of live entries, expired included until sweep.
func (s *Store) Len() int {
	return s.c.ItemCount()
}
