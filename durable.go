package storecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/ZaguanLabs/storecache/cache"
)

// DurableStore is the persistent tier. It only uses the four Medium
// operations, so any key-value backend can carry it.
type DurableStore struct {
	medium        cache.Medium
	schemaVersion string
}

// NewDurableStore creates a durable tier on medium. Entries written under a
// different schema version are treated as absent.
func NewDurableStore(medium cache.Medium, schemaVersion string) *DurableStore {
	return &DurableStore{
		medium:        medium,
		schemaVersion: schemaVersion,
	}
}

// Medium returns the underlying medium.
func (s *DurableStore) Medium() cache.Medium {
	return s.medium
}

// Get reads the entry stored under key. Absent keys, corrupt payloads and
// schema mismatches all report ok=false; the latter two are deleted. A
// non-nil error is a *StorageError or *CorruptEntryError and is
// informational.
func (s *DurableStore) Get(ctx context.Context, key string) (DurableEntry, bool, error) {
	data, err := s.medium.Get(ctx, key)
	if errors.Is(err, cache.ErrNotFound) {
		return DurableEntry{}, false, nil
	}
	if err != nil {
		return DurableEntry{}, false, &StorageError{Op: "get", Key: key, Cause: err}
	}

	var entry DurableEntry
	if err := json.Unmarshal(data, &entry); err != nil {
		_ = s.medium.Delete(ctx, key)
		return DurableEntry{}, false, &CorruptEntryError{Key: key, Cause: err}
	}

	if entry.SchemaVersion != s.schemaVersion {
		if err := s.medium.Delete(ctx, key); err != nil {
			return DurableEntry{}, false, &StorageError{Op: "delete", Key: key, Cause: err}
		}
		return DurableEntry{}, false, nil
	}

	return entry, true, nil
}

// Put writes entry under key, stamping the configured schema version.
func (s *DurableStore) Put(ctx context.Context, key string, entry Entry) error {
	data, err := json.Marshal(DurableEntry{Entry: entry, SchemaVersion: s.schemaVersion})
	if err != nil {
		return fmt.Errorf("encoding entry %s: %w", key, err)
	}
	if err := s.medium.Set(ctx, key, data); err != nil {
		return &StorageError{Op: "set", Key: key, Cause: err}
	}
	return nil
}

// Delete removes key.
func (s *DurableStore) Delete(ctx context.Context, key string) error {
	if err := s.medium.Delete(ctx, key); err != nil {
		return &StorageError{Op: "delete", Key: key, Cause: err}
	}
	return nil
}

// DeleteLocale removes every entry of locale and returns how many keys were
// deleted. Keys are deleted one by one; if any fail, the returned error is an
// *InvalidationError.
func (s *DurableStore) DeleteLocale(ctx context.Context, locale string) (int, error) {
	deleted, err := s.deletePrefix(ctx, LocalePrefix(locale))
	if err != nil {
		err.Locale = locale
		return deleted, err
	}
	return deleted, nil
}

// DeleteAll removes every response entry, whatever its locale.
func (s *DurableStore) DeleteAll(ctx context.Context) (int, error) {
	deleted, err := s.deletePrefix(ctx, EntryKeyPrefix)
	if err != nil {
		return deleted, err
	}
	return deleted, nil
}

func (s *DurableStore) deletePrefix(ctx context.Context, prefix string) (int, *InvalidationError) {
	keys, err := s.medium.ListKeys(ctx, prefix)
	if err != nil {
		return 0, &InvalidationError{Cause: &StorageError{Op: "list", Key: prefix, Cause: err}}
	}

	var (
		deleted int
		failed  int
		errs    []error
	)
	for _, key := range keys {
		if err := ctx.Err(); err != nil {
			failed += len(keys) - deleted - failed
			errs = append(errs, err)
			break
		}
		if err := s.medium.Delete(ctx, key); err != nil {
			failed++
			errs = append(errs, &StorageError{Op: "delete", Key: key, Cause: err})
			continue
		}
		deleted++
	}

	if failed > 0 {
		return deleted, &InvalidationError{Failed: failed, Cause: errors.Join(errs...)}
	}
	return deleted, nil
}

// Keys lists every response entry key.
func (s *DurableStore) Keys(ctx context.Context) ([]string, error) {
	keys, err := s.medium.ListKeys(ctx, EntryKeyPrefix)
	if err != nil {
		return nil, &StorageError{Op: "list", Key: EntryKeyPrefix, Cause: err}
	}
	return keys, nil
}

// SampledEntry describes one durable entry read during sampling.
type SampledEntry struct {
	Key           string
	Size          int
	SchemaVersion string
	Locale        string
	Corrupt       bool
}

// Sample reads up to n entries from keys without modifying the medium.
// Keys that vanish between listing and reading are skipped.
func (s *DurableStore) Sample(ctx context.Context, keys []string, n int) ([]SampledEntry, error) {
	if n > len(keys) {
		n = len(keys)
	}

	out := make([]SampledEntry, 0, n)
	for _, key := range keys[:n] {
		data, err := s.medium.Get(ctx, key)
		if errors.Is(err, cache.ErrNotFound) {
			continue
		}
		if err != nil {
			return out, &StorageError{Op: "get", Key: key, Cause: err}
		}

		sampled := SampledEntry{Key: key, Size: len(key) + len(data)}
		var entry DurableEntry
		if err := json.Unmarshal(data, &entry); err != nil {
			sampled.Corrupt = true
		} else {
			sampled.SchemaVersion = entry.SchemaVersion
			sampled.Locale = entry.Locale
		}
		out = append(out, sampled)
	}
	return out, nil
}

// LoadEpoch reads the persisted invalidation epoch of locale. A missing
// record reports zero.
func (s *DurableStore) LoadEpoch(ctx context.Context, locale string) (uint64, error) {
	key := epochKey(locale)
	data, err := s.medium.Get(ctx, key)
	if errors.Is(err, cache.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, &StorageError{Op: "get", Key: key, Cause: err}
	}

	epoch, err := strconv.ParseUint(string(data), 10, 64)
	if err != nil {
		return 0, &CorruptEntryError{Key: key, Cause: err}
	}
	return epoch, nil
}

// SaveEpoch persists the invalidation epoch of locale.
func (s *DurableStore) SaveEpoch(ctx context.Context, locale string, epoch uint64) error {
	key := epochKey(locale)
	if err := s.medium.Set(ctx, key, []byte(strconv.FormatUint(epoch, 10))); err != nil {
		return &StorageError{Op: "set", Key: key, Cause: err}
	}
	return nil
}
