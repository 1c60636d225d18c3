package storecache

import (
	"sync"
)

// EphemeralStore is the in-process tier. It performs no I/O and is bounded
// by time-to-live rather than size: stale entries are dropped when read.
type EphemeralStore struct {
	entries map[string]Entry
	mu      sync.RWMutex
}

// NewEphemeralStore creates an empty ephemeral tier.
func NewEphemeralStore() *EphemeralStore {
	return &EphemeralStore{
		entries: make(map[string]Entry),
	}
}

// Get returns the entry stored under key.
func (s *EphemeralStore) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[key]
	return e, ok
}

// Put stores entry under key, replacing any previous entry.
func (s *EphemeralStore) Put(key string, entry Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
}

// Delete removes key.
func (s *EphemeralStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// deleteIf removes key only while it still holds an entry written at
// writtenAt, so a concurrent replacement is not discarded.
func (s *EphemeralStore) deleteIf(key string, stale Entry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cur, ok := s.entries[key]; ok && cur.WrittenAt.Equal(stale.WrittenAt) && cur.Epoch == stale.Epoch {
		delete(s.entries, key)
	}
}

// restamp moves entries of locale stamped with epoch from to epoch to.
func (s *EphemeralStore) restamp(locale string, from, to uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.entries {
		if e.Locale == locale && e.Epoch == from {
			e.Epoch = to
			s.entries[key] = e
		}
	}
}

// DeleteLocale removes every entry tagged with locale and returns how many
// were removed.
func (s *EphemeralStore) DeleteLocale(locale string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for key, e := range s.entries {
		if e.Locale == locale {
			delete(s.entries, key)
			removed++
		}
	}
	return removed
}

// Clear removes all entries.
func (s *EphemeralStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]Entry)
}

// Len returns the number of entries, including stale ones not yet read.
func (s *EphemeralStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// CountByLocale returns the number of entries per locale.
func (s *EphemeralStore) CountByLocale() map[string]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int)
	for _, e := range s.entries {
		counts[e.Locale]++
	}
	return counts
}
