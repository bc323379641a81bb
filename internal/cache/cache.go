// Package cache provides the two-tier snapshot cache: a fast in-process
// tier in front of an optional persistent key-value tier with TTL
// support. The persistent tier being down degrades the system to
// in-process-only caching, never to a failure.
package cache

import (
	"context"
	"time"
)

// Cache is the contract for a byte-oriented cache tier.
type Cache interface {
	// Get retrieves a value from the cache
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value in the cache with a TTL
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a value from the cache
	Delete(ctx context.Context, key string) error

	// Clear removes all values from the cache
	Clear(ctx context.Context) error

	// Exists checks if a key exists in the cache
	Exists(ctx context.Context, key string) (bool, error)
}

// Config holds common configuration for cache tiers.
type Config struct {
	// DefaultTTL is applied when Set is called with a zero TTL.
	DefaultTTL time.Duration
	// Prefix is prepended to all cache keys.
	Prefix string
}

// DefaultConfig returns the default cache configuration. The two-day
// TTL matches the snapshot write-through expiry.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: 48 * time.Hour,
		Prefix:     "omniview:",
	}
}

// ErrCacheMiss is returned when a key is not found in the cache.
type ErrCacheMiss struct {
	Key string
}

func (e ErrCacheMiss) Error() string {
	return "cache miss: " + e.Key
}

// IsCacheMiss checks if an error is a cache miss.
func IsCacheMiss(err error) bool {
	_, ok := err.(ErrCacheMiss)
	return ok
}
