// Package kv abstracts the shared counter/registry store the auth core
// depends on: a key-value cache with per-key TTL and atomic
// increment/compare-and-swap primitives. Rate-limit windows and refresh
// token family state both live behind this interface.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable reports that the backing store could not be reached.
// Callers decide whether to fail open or closed; the condition itself
// is never surfaced to API clients verbatim.
var ErrUnavailable = errors.New("kv: store unavailable")

// Store is the contract every backend must satisfy. All mutating
// operations are atomic with respect to concurrent callers on the same
// key; none of them may be implemented as read-then-write at a layer
// above the backend.
type Store interface {
	// Get returns the value for key, reporting presence separately so
	// an empty value is distinguishable from a miss.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Set unconditionally writes value with the given TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// SetNX writes value only if the key is absent (or expired) and
	// reports whether the write happened.
	SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error)

	// CompareAndSwap replaces the current value with next only if it
	// byte-equals prev. The TTL is refreshed on success.
	CompareAndSwap(ctx context.Context, key string, prev, next []byte, ttl time.Duration) (bool, error)

	// IncrWindow atomically increments the counter scoped to the
	// current fixed window, creating the window when absent or rolled
	// over. It returns the post-increment count and the instant the
	// window resets.
	IncrWindow(ctx context.Context, key string, window time.Duration) (int64, time.Time, error)

	// Delete removes the key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
