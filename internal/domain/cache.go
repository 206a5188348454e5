package domain

import (
	"context"
	"time"
)

// CacheError represents an error originating from the cache.
type CacheError string

func (e CacheError) Error() string {
	return string(e)
}

// ErrCacheMiss is returned when a key is not found in the cache.
const ErrCacheMiss = CacheError("cache: key not found")

// Cache is the key/value store used for read-mostly exam content.
type Cache interface {
	// Get returns ErrCacheMiss if the key is not found.
	Get(ctx context.Context, key string) (string, error)
	// Set overwrites any existing value; an expiration of 0 keeps it forever.
	Set(ctx context.Context, key string, value string, expiration time.Duration) error
	// Delete removes the keys and ignores the ones that do not exist.
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
}
