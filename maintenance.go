package storecache

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// Remedies suggested by Diagnose.
const (
	RemedyClearLocale = "clear-locale"
	RemedyClearAll    = "clear-all"
	RemedyRestart     = "restart"
)

// Issue codes reported by Diagnose.
const (
	IssueDuplicateLocale     = "duplicate-locale-records"
	IssueDirectionMismatch   = "direction-mismatch"
	IssueTooManyEntries      = "too-many-entries"
	IssueDurableUnavailable  = "durable-unavailable"
	IssuePartialInvalidation = "partial-invalidation"
	IssueStaleSchema         = "stale-schema"
)

// Issue is one problem found by Diagnose.
type Issue struct {
	Code    string
	Message string
	Remedy  string
}

// Report is the result of Diagnose.
type Report struct {
	Issues []Issue
}

// Healthy reports whether no issue was found.
func (r Report) Healthy() bool {
	return len(r.Issues) == 0
}

// ClearResult reports what ClearAll managed to clear.
type ClearResult struct {
	Ephemeral bool
	Durable   bool
	Direction bool
	Errors    []error
}

// Stats is a snapshot of cache occupancy.
type Stats struct {
	EphemeralEntries     int
	EphemeralByLocale    map[string]int
	DurableEntries       int
	DurableBytesEstimate int64
	DurableAvailable     bool
	Sampled              int
	Hits                 int64
	Misses               int64
}

// Maintenance is the support surface: clearing, statistics and diagnostics.
type Maintenance struct {
	cache     *ResponseCache
	prefetch  *Prefetcher
	direction LayoutDirection
	prefs     *Preferences

	// SampleSize is the number of durable entries read to estimate sizes.
	SampleSize int
	// EntryThreshold is the entry count above which Diagnose warns.
	EntryThreshold int
}

// NewMaintenance creates the support surface. prefetch may be nil.
func NewMaintenance(rc *ResponseCache, prefetch *Prefetcher, direction LayoutDirection, prefs *Preferences) *Maintenance {
	return &Maintenance{
		cache:          rc,
		prefetch:       prefetch,
		direction:      direction,
		prefs:          prefs,
		SampleSize:     20,
		EntryThreshold: 500,
	}
}

// ClearAll empties both tiers, forgets which locales were prefetched and
// resets the layout direction to LTR.
func (m *Maintenance) ClearAll(ctx context.Context) ClearResult {
	var result ClearResult

	m.cache.Flush()
	if err := m.cache.InvalidateAll(ctx); err != nil {
		result.Errors = append(result.Errors, err)
	} else {
		result.Durable = true
	}
	result.Ephemeral = m.cache.Ephemeral().Len() == 0

	if m.prefetch != nil {
		m.prefetch.ResetAll()
	}

	if err := m.direction.SetDirection(ctx, LTR); err != nil {
		result.Errors = append(result.Errors, err)
	} else {
		result.Direction = true
	}

	m.cache.Logger().Info("cache cleared", "ephemeral", result.Ephemeral, "durable", result.Durable, "direction", result.Direction)
	return result
}

// ClearLocale invalidates every entry of one locale.
func (m *Maintenance) ClearLocale(ctx context.Context, code string) error {
	locale, err := m.cache.Registry().Lookup(code)
	if err != nil {
		return err
	}
	if m.prefetch != nil {
		m.prefetch.Reset(locale.Code)
	}
	return m.cache.InvalidateLocale(ctx, locale.Code)
}

// Stats returns occupancy counts. Durable sizes are estimated from a sample;
// an unavailable durable tier yields zero durable counts, not an error.
func (m *Maintenance) Stats(ctx context.Context) Stats {
	byLocale := m.cache.Ephemeral().CountByLocale()
	total := 0
	for _, n := range byLocale {
		total += n
	}

	hits, misses := m.cache.Counters()
	stats := Stats{
		EphemeralEntries:  total,
		EphemeralByLocale: byLocale,
		Hits:              hits,
		Misses:            misses,
	}

	keys, err := m.cache.Durable().Keys(ctx)
	if err != nil {
		return stats
	}

	sample, err := m.cache.Durable().Sample(ctx, keys, m.SampleSize)
	if err != nil {
		m.cache.Logger().Warn("durable sampling failed", "err", err)
		return stats
	}

	stats.DurableAvailable = true
	stats.DurableEntries = len(keys)
	stats.Sampled = len(sample)
	if len(sample) > 0 {
		var sum int64
		for _, s := range sample {
			sum += int64(s.Size)
		}
		stats.DurableBytesEstimate = sum * int64(len(keys)) / int64(len(sample))
	}
	return stats
}

// Diagnose inspects the cache and its records without modifying anything.
func (m *Maintenance) Diagnose(ctx context.Context) Report {
	var report Report
	add := func(code, remedy, format string, args ...any) {
		report.Issues = append(report.Issues, Issue{
			Code:    code,
			Message: fmt.Sprintf(format, args...),
			Remedy:  remedy,
		})
	}

	records, err := m.prefs.Records(ctx)
	if err == nil && len(records) > 1 {
		keys := make([]string, 0, len(records))
		for k := range records {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		add(IssueDuplicateLocale, RemedyClearAll, "%d locale preference records: %s", len(records), strings.Join(keys, ", "))
	}

	code, ok, err := m.prefs.Load(ctx)
	if err == nil && ok {
		if locale, err := m.cache.Registry().Lookup(code); err == nil {
			if flag, err := m.direction.Direction(ctx); err == nil && flag != locale.Direction {
				add(IssueDirectionMismatch, RemedyRestart, "layout direction is %s but persisted locale %s is %s", flag, locale.Code, locale.Direction)
			}
		}
	}

	keys, err := m.cache.Durable().Keys(ctx)
	if err != nil {
		add(IssueDurableUnavailable, RemedyRestart, "durable tier unavailable: %v", err)
	}

	entries := m.cache.Ephemeral().Len()
	if len(keys) > entries {
		entries = len(keys)
	}
	if entries > m.EntryThreshold {
		add(IssueTooManyEntries, RemedyClearAll, "%d cached entries exceed the threshold of %d", entries, m.EntryThreshold)
	}

	for _, p := range m.cache.PartialInvalidations() {
		if p.Locale != "" {
			add(IssuePartialInvalidation, RemedyClearLocale, "%v", p)
		} else {
			add(IssuePartialInvalidation, RemedyClearAll, "%v", p)
		}
	}

	if len(keys) > 0 {
		sample, err := m.cache.Durable().Sample(ctx, keys, m.SampleSize)
		if err == nil {
			stale := 0
			for _, s := range sample {
				if s.Corrupt || s.SchemaVersion != m.cache.SchemaVersion() {
					stale++
				}
			}
			if stale > 0 {
				add(IssueStaleSchema, RemedyClearAll, "%d of %d sampled entries do not match schema %s", stale, len(sample), m.cache.SchemaVersion())
			}
		}
	}

	return report
}
