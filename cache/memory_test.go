package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMemoryMedium_GetSet(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryMedium()

	if err := m.Set(ctx, "key1", []byte("value1")); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	val, err := m.Get(ctx, "key1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(val) != "value1" {
		t.Errorf("Get returned %q, want %q", val, "value1")
	}

	_, err = m.Get(ctx, "nonexistent")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("Get on missing key should return ErrNotFound, got %v", err)
	}
}

func TestMemoryMedium_ValuesAreCopied(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryMedium()

	buf := []byte("value")
	m.Set(ctx, "key", buf)
	buf[0] = 'X'

	val, _ := m.Get(ctx, "key")
	if string(val) != "value" {
		t.Errorf("stored value was mutated through caller buffer: %q", val)
	}

	val[0] = 'Y'
	again, _ := m.Get(ctx, "key")
	if string(again) != "value" {
		t.Errorf("stored value was mutated through returned buffer: %q", again)
	}
}

func TestMemoryMedium_Delete(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryMedium()

	m.Set(ctx, "key1", []byte("value1"))
	if err := m.Delete(ctx, "key1"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := m.Delete(ctx, "key1"); err != nil {
		t.Errorf("Deleting a missing key should not fail: %v", err)
	}
	if m.Len() != 0 {
		t.Errorf("Medium should be empty, got %d keys", m.Len())
	}
}

func TestMemoryMedium_ListKeys(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryMedium()

	m.Set(ctx, "rc:en:b", nil)
	m.Set(ctx, "rc:en:a", nil)
	m.Set(ctx, "rc:ar:a", nil)
	m.Set(ctx, "pref:locale", nil)

	keys, err := m.ListKeys(ctx, "rc:en:")
	if err != nil {
		t.Fatalf("ListKeys failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "rc:en:a" || keys[1] != "rc:en:b" {
		t.Errorf("ListKeys returned %v", keys)
	}

	all, _ := m.ListKeys(ctx, "")
	if len(all) != 4 {
		t.Errorf("ListKeys with empty prefix should return all keys, got %v", all)
	}
}

func TestMemoryMedium_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewMemoryMedium()
	if err := m.Set(ctx, "key", []byte("v")); !errors.Is(err, context.Canceled) {
		t.Errorf("Set should honour cancellation, got %v", err)
	}
}

func TestMemoryMedium_Concurrent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryMedium()
	var wg sync.WaitGroup

	for i := 0; i < 100; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			m.Set(ctx, string(rune('a'+i%26)), []byte("value"))
		}(i)
		go func(i int) {
			defer wg.Done()
			m.Get(ctx, string(rune('a'+i%26)))
			m.ListKeys(ctx, "")
		}(i)
	}

	wg.Wait()
}
