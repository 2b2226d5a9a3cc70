// Package keystore provides a small key/value store with per-key expiry.
// Callers treat an expired key exactly like an absent one.
package keystore

import (
	"context"
	"time"
)

// Store is a TTL-aware keyed store
type Store interface {
	// Get returns the value and true, or "" and false when the key is absent or expired
	Get(ctx context.Context, key string) (string, bool, error)
	// Set stores value under key for ttl
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only when key is absent or expired; reports whether it did
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Delete removes key; deleting an absent key is not an error
	Delete(ctx context.Context, key string) error
	// Incr increments a counter and returns the new value. An absent or expired
	// counter restarts at 1 with a fresh ttl; a live one keeps its expiry.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
}
