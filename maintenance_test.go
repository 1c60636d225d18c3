package storecache

import (
	"context"
	"testing"

	"github.com/ZaguanLabs/storecache/cache"
	"github.com/ZaguanLabs/storecache/commerce"
)

func hasIssue(r Report, code string) (Issue, bool) {
	for _, issue := range r.Issues {
		if issue.Code == code {
			return issue, true
		}
	}
	return Issue{}, false
}

func seedEntries(t *testing.T, rc *ResponseCache, l Locale, endpoints ...string) {
	t.Helper()
	for _, ep := range endpoints {
		if err := rc.Set(context.Background(), NewKey(ep, nil, l), map[string]string{"endpoint": ep}); err != nil {
			t.Fatal(err)
		}
	}
	rc.Flush()
}

func newTestMaintenance(medium cache.Medium, opts ...Option) (*Maintenance, *ResponseCache) {
	rc := newTestCache(medium, nil, opts...)
	return NewMaintenance(rc, nil, NewStoredDirection(medium), NewPreferences(medium)), rc
}

func TestMaintenance_Stats(t *testing.T) {
	ctx := context.Background()
	m, rc := newTestMaintenance(cache.NewMemoryMedium())
	seedEntries(t, rc, English, "a", "b", "c")
	seedEntries(t, rc, Arabic, "a", "b")
	rc.Get(ctx, NewKey("a", nil, English), Standard)

	stats := m.Stats(ctx)
	if stats.EphemeralEntries != 5 {
		t.Errorf("EphemeralEntries = %d, want 5", stats.EphemeralEntries)
	}
	if stats.EphemeralByLocale["en"] != 3 || stats.EphemeralByLocale["ar"] != 2 {
		t.Errorf("EphemeralByLocale = %v", stats.EphemeralByLocale)
	}
	if !stats.DurableAvailable || stats.DurableEntries != 5 {
		t.Errorf("durable = %v/%d, want available with 5 entries", stats.DurableAvailable, stats.DurableEntries)
	}
	if stats.Sampled != 5 || stats.DurableBytesEstimate <= 0 {
		t.Errorf("Sampled = %d, DurableBytesEstimate = %d", stats.Sampled, stats.DurableBytesEstimate)
	}
	if stats.Hits != 1 {
		t.Errorf("Hits = %d, want 1", stats.Hits)
	}
}

func TestMaintenance_StatsSampleLimit(t *testing.T) {
	ctx := context.Background()
	m, rc := newTestMaintenance(cache.NewMemoryMedium())
	m.SampleSize = 2
	seedEntries(t, rc, English, "a", "b", "c", "d")

	stats := m.Stats(ctx)
	if stats.Sampled != 2 {
		t.Errorf("Sampled = %d, want 2", stats.Sampled)
	}
	if stats.DurableEntries != 4 {
		t.Errorf("DurableEntries = %d, want 4", stats.DurableEntries)
	}
}

func TestMaintenance_StatsDurableUnavailable(t *testing.T) {
	m, rc := newTestMaintenance(failingMedium{})
	seedEntries(t, rc, English, "a")

	stats := m.Stats(context.Background())
	if stats.DurableAvailable {
		t.Error("DurableAvailable should be false")
	}
	if stats.DurableEntries != 0 || stats.DurableBytesEstimate != 0 {
		t.Errorf("durable counts = %d/%d, want zero", stats.DurableEntries, stats.DurableBytesEstimate)
	}
	if stats.EphemeralEntries != 1 {
		t.Errorf("EphemeralEntries = %d, want 1", stats.EphemeralEntries)
	}
}

func TestMaintenance_ClearAll(t *testing.T) {
	ctx := context.Background()
	medium := cache.NewMemoryMedium()
	rc := newTestCache(medium, nil)
	prefetch := NewPrefetcher(rc, commerce.NewMockSource(), WithDelay(0))
	direction := NewStoredDirection(medium)
	m := NewMaintenance(rc, prefetch, direction, NewPreferences(medium))

	prefetch.Warm(ctx, Arabic)
	seedEntries(t, rc, English, "a")
	_ = direction.SetDirection(ctx, RTL)

	result := m.ClearAll(ctx)
	if !result.Ephemeral || !result.Durable || !result.Direction || len(result.Errors) != 0 {
		t.Errorf("ClearAll() = %+v", result)
	}

	if rc.Ephemeral().Len() != 0 {
		t.Error("ephemeral tier should be empty")
	}
	if keys, _ := medium.ListKeys(ctx, EntryKeyPrefix); len(keys) != 0 {
		t.Errorf("durable entries left: %v", keys)
	}
	if d, _ := direction.Direction(ctx); d != LTR {
		t.Errorf("direction = %s, want ltr", d)
	}
	if prefetch.Warmed(Arabic.Code) {
		t.Error("prefetch flags should be reset")
	}
}

func TestMaintenance_ClearAllDurableUnavailable(t *testing.T) {
	m, rc := newTestMaintenance(failingMedium{})
	seedEntries(t, rc, English, "a")

	result := m.ClearAll(context.Background())
	if !result.Ephemeral {
		t.Error("ephemeral tier should be cleared")
	}
	if result.Durable || result.Direction {
		t.Errorf("ClearAll() = %+v, want durable and direction failures", result)
	}
	if len(result.Errors) != 2 {
		t.Errorf("len(Errors) = %d, want 2", len(result.Errors))
	}
}

func TestMaintenance_ClearLocale(t *testing.T) {
	ctx := context.Background()
	m, rc := newTestMaintenance(cache.NewMemoryMedium())
	seedEntries(t, rc, English, "a")
	seedEntries(t, rc, Arabic, "a")

	if err := m.ClearLocale(ctx, "ar-SA"); err != nil {
		t.Fatalf("ClearLocale() error = %v", err)
	}
	if _, ok := rc.Get(ctx, NewKey("a", nil, Arabic), Standard); ok {
		t.Error("ar entry should be cleared")
	}
	if _, ok := rc.Get(ctx, NewKey("a", nil, English), Standard); !ok {
		t.Error("en entry should survive")
	}

	if err := m.ClearLocale(ctx, "zz"); err == nil {
		t.Error("ClearLocale() with an unknown locale should fail")
	}
}

func TestMaintenance_DiagnoseHealthy(t *testing.T) {
	ctx := context.Background()
	m, rc := newTestMaintenance(cache.NewMemoryMedium())
	seedEntries(t, rc, English, "a")

	if r := m.Diagnose(ctx); !r.Healthy() {
		t.Errorf("Diagnose() = %+v, want healthy", r.Issues)
	}
}

func TestMaintenance_Diagnose(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		setup  func(t *testing.T) *Maintenance
		code   string
		remedy string
	}{
		{
			name: "duplicate locale records",
			setup: func(t *testing.T) *Maintenance {
				medium := cache.NewMemoryMedium()
				_ = medium.Set(ctx, PreferenceKey, []byte("en"))
				_ = medium.Set(ctx, PreferenceKey+":legacy", []byte("ar"))
				m, _ := newTestMaintenance(medium)
				return m
			},
			code:   IssueDuplicateLocale,
			remedy: RemedyClearAll,
		},
		{
			name: "direction mismatch",
			setup: func(t *testing.T) *Maintenance {
				medium := cache.NewMemoryMedium()
				_ = medium.Set(ctx, PreferenceKey, []byte("ar"))
				_ = medium.Set(ctx, DirectionKey, []byte("ltr"))
				m, _ := newTestMaintenance(medium)
				return m
			},
			code:   IssueDirectionMismatch,
			remedy: RemedyRestart,
		},
		{
			name: "too many entries",
			setup: func(t *testing.T) *Maintenance {
				m, rc := newTestMaintenance(cache.NewMemoryMedium())
				m.EntryThreshold = 2
				seedEntries(t, rc, English, "a", "b", "c")
				return m
			},
			code:   IssueTooManyEntries,
			remedy: RemedyClearAll,
		},
		{
			name: "durable unavailable",
			setup: func(t *testing.T) *Maintenance {
				m, _ := newTestMaintenance(failingMedium{})
				return m
			},
			code:   IssueDurableUnavailable,
			remedy: RemedyRestart,
		},
		{
			name: "partial invalidation",
			setup: func(t *testing.T) *Maintenance {
				medium := &flakyMedium{MemoryMedium: cache.NewMemoryMedium(), failDeleteSubstr: "rc:ar:"}
				m, rc := newTestMaintenance(medium)
				seedEntries(t, rc, Arabic, "a")
				_ = rc.InvalidateLocale(ctx, Arabic.Code)
				return m
			},
			code:   IssuePartialInvalidation,
			remedy: RemedyClearLocale,
		},
		{
			name: "stale schema",
			setup: func(t *testing.T) *Maintenance {
				medium := cache.NewMemoryMedium()
				old := newTestCache(medium, nil, WithSchemaVersion("1.0.0"))
				seedEntries(t, old, English, "a")
				m, _ := newTestMaintenance(medium, WithSchemaVersion("2.0.0"))
				return m
			},
			code:   IssueStaleSchema,
			remedy: RemedyClearAll,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := tt.setup(t)
			issue, ok := hasIssue(m.Diagnose(ctx), tt.code)
			if !ok {
				t.Fatalf("Diagnose() did not report %s", tt.code)
			}
			if issue.Remedy != tt.remedy {
				t.Errorf("Remedy = %s, want %s", issue.Remedy, tt.remedy)
			}
			if issue.Message == "" {
				t.Error("Message should not be empty")
			}
		})
	}
}

func TestMaintenance_DiagnoseDoesNotMutate(t *testing.T) {
	ctx := context.Background()
	medium := cache.NewMemoryMedium()
	old := newTestCache(medium, nil)
	seedEntries(t, old, English, "a", "b")
	_ = medium.Set(ctx, PreferenceKey, []byte("ar"))

	m, _ := newTestMaintenance(medium, WithSchemaVersion("2.0.0"))
	before := medium.Len()
	m.Diagnose(ctx)
	if medium.Len() != before {
		t.Errorf("Diagnose() changed the medium: %d keys before, %d after", before, medium.Len())
	}
}
