package storecache

import (
	"encoding/json"
	"time"
)

// TTLClass is a named freshness duration applied to a cache read.
type TTLClass int

const (
	// Standard is the default, shorter freshness window.
	Standard TTLClass = iota
	// Critical is for data that changes rarely, such as navigation taxonomy.
	Critical
	// Durable is the longest window; it is only reachable through the durable tier.
	Durable
)

func (c TTLClass) String() string {
	switch c {
	case Critical:
		return "critical"
	case Durable:
		return "durable"
	default:
		return "standard"
	}
}

// Tier identifies a cache tier.
type Tier int

const (
	// EphemeralTier is the in-process tier.
	EphemeralTier Tier = iota
	// DurableTier is the tier backed by a persistent medium.
	DurableTier
)

func (t Tier) String() string {
	if t == DurableTier {
		return "durable"
	}
	return "ephemeral"
}

// Policy holds the freshness durations.
type Policy struct {
	Standard time.Duration
	Critical time.Duration
	Durable  time.Duration
}

// DefaultPolicy returns the default freshness durations.
func DefaultPolicy() Policy {
	return Policy{
		Standard: 5 * time.Minute,
		Critical: 30 * time.Minute,
		Durable:  24 * time.Hour,
	}
}

// TTL returns the freshness window of class in tier. Standard and Critical
// are the same in both tiers; Durable data is held in memory for the
// Critical window and on disk for the Durable window.
func (p Policy) TTL(class TTLClass, tier Tier) time.Duration {
	switch class {
	case Critical:
		return p.Critical
	case Durable:
		if tier == DurableTier {
			return p.Durable
		}
		return p.Critical
	default:
		return p.Standard
	}
}

// Entry is a stored response. Entries are never mutated after they are
// written; a new write for the same key replaces the entry.
type Entry struct {
	Payload   json.RawMessage `json:"payload"`
	WrittenAt time.Time       `json:"written_at"`
	Locale    string          `json:"locale"`
	Epoch     uint64          `json:"epoch"`
}

// FreshAt reports whether the entry is younger than ttl at now.
func (e Entry) FreshAt(now time.Time, ttl time.Duration) bool {
	return now.Sub(e.WrittenAt) < ttl
}

// Age returns how old the entry is at now.
func (e Entry) Age(now time.Time) time.Duration {
	return now.Sub(e.WrittenAt)
}

// DurableEntry is an Entry as persisted in the durable tier.
type DurableEntry struct {
	Entry
	SchemaVersion string `json:"schema_version"`
}

// Clock returns the current time. It is swappable for tests.
type Clock func() time.Time
