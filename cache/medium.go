// Package cache provides the persistent key-value media behind the durable
// cache tier.
package cache

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Medium.Get when the key does not exist.
var ErrNotFound = errors.New("cache: key not found")

// Medium is a persistent key-value store. The durable tier is built entirely
// on these four operations and never assumes multi-key atomicity.
type Medium interface {
	// Get returns the value stored under key, or ErrNotFound.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key string, value []byte) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// ListKeys returns every key that starts with prefix.
	ListKeys(ctx context.Context, prefix string) ([]string, error)
}
