package storecache

import (
	"context"
	"errors"
	"testing"

	"github.com/ZaguanLabs/storecache/cache"
)

func TestMemoryDirection(t *testing.T) {
	ctx := context.Background()
	d := NewMemoryDirection(LTR)

	if got, _ := d.Direction(ctx); got != LTR {
		t.Errorf("Direction() = %s, want ltr", got)
	}
	_ = d.SetDirection(ctx, RTL)
	if got, _ := d.Direction(ctx); got != RTL {
		t.Errorf("Direction() = %s, want rtl", got)
	}
}

func TestStoredDirection(t *testing.T) {
	ctx := context.Background()
	medium := cache.NewMemoryMedium()
	d := NewStoredDirection(medium)

	if got, err := d.Direction(ctx); err != nil || got != LTR {
		t.Errorf("Direction() on empty medium = %s, %v", got, err)
	}

	if err := d.SetDirection(ctx, RTL); err != nil {
		t.Fatal(err)
	}
	// A second instance reads the persisted flag.
	if got, _ := NewStoredDirection(medium).Direction(ctx); got != RTL {
		t.Errorf("persisted Direction() = %s, want rtl", got)
	}

	_ = medium.Set(ctx, DirectionKey, []byte("sideways"))
	var ce *CorruptEntryError
	if _, err := d.Direction(ctx); !errors.As(err, &ce) {
		t.Errorf("Direction() error = %v, want *CorruptEntryError", err)
	}

	var se *StorageError
	if err := NewStoredDirection(failingMedium{}).SetDirection(ctx, LTR); !errors.As(err, &se) {
		t.Errorf("SetDirection() error = %v, want *StorageError", err)
	}
}

func TestPreferences(t *testing.T) {
	ctx := context.Background()
	medium := cache.NewMemoryMedium()
	p := NewPreferences(medium)

	if _, ok, err := p.Load(ctx); ok || err != nil {
		t.Errorf("Load() on empty medium: ok=%v err=%v", ok, err)
	}

	if err := p.Save(ctx, "ar"); err != nil {
		t.Fatal(err)
	}
	code, ok, err := p.Load(ctx)
	if err != nil || !ok || code != "ar" {
		t.Errorf("Load() = %q, %v, %v", code, ok, err)
	}

	_ = medium.Set(ctx, PreferenceKey+".bak", []byte("en"))
	_ = medium.Set(ctx, "pref:currency", []byte("SAR"))
	records, err := p.Records(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 2 || records[PreferenceKey] != "ar" || records[PreferenceKey+".bak"] != "en" {
		t.Errorf("Records() = %v, want the locale record and its duplicate", records)
	}
	if _, ok := records["pref:currency"]; ok {
		t.Error("Records() should not list unrelated preferences")
	}

	if _, _, err := NewPreferences(failingMedium{}).Load(ctx); err == nil {
		t.Error("Load() on a failing medium should return an error")
	}
}
