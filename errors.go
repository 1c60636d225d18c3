package storecache

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidKey is returned for malformed cache keys (empty endpoint or locale).
	ErrInvalidKey = errors.New("invalid cache key")

	// ErrUnsupportedLocale is returned when a locale code is not in the registry.
	ErrUnsupportedLocale = errors.New("unsupported locale")

	errEpochUnknown = errors.New("persisted invalidation epoch could not be read")
)

// StorageError indicates the durable medium failed a read, write, delete or
// listing. The cache degrades to ephemeral-only behavior for that operation.
type StorageError struct {
	Op    string // "get", "set", "delete" or "list"
	Key   string
	Cause error
}

func (e *StorageError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("storage error: %s %s: %v", e.Op, e.Key, e.Cause)
	}
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Cause)
}

func (e *StorageError) Unwrap() error {
	return e.Cause
}

// CorruptEntryError indicates a durable payload could not be decoded.
// Corrupt entries are removed and reported as misses.
type CorruptEntryError struct {
	Key   string
	Cause error
}

func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("corrupt entry %s: %v", e.Key, e.Cause)
}

func (e *CorruptEntryError) Unwrap() error {
	return e.Cause
}

// InvalidationError indicates a locale-scoped bulk delete stopped partway.
// Surviving entries are already unreachable through the locale epoch; the
// error only reports storage that was not reclaimed.
type InvalidationError struct {
	Locale string // Empty for a global invalidation
	Failed int    // Number of keys that could not be deleted
	Cause  error
}

func (e *InvalidationError) Error() string {
	scope := "all locales"
	if e.Locale != "" {
		scope = "locale " + e.Locale
	}
	if e.Failed > 0 {
		return fmt.Sprintf("partial invalidation of %s: %d keys not deleted: %v", scope, e.Failed, e.Cause)
	}
	return fmt.Sprintf("partial invalidation of %s: %v", scope, e.Cause)
}

func (e *InvalidationError) Unwrap() error {
	return e.Cause
}
