package storecache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ZaguanLabs/storecache/cache"
)

var errMediumDown = errors.New("medium unavailable")

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// failingMedium fails every operation.
type failingMedium struct{}

func (failingMedium) Get(context.Context, string) ([]byte, error) { return nil, errMediumDown }
func (failingMedium) Set(context.Context, string, []byte) error { return errMediumDown }
func (failingMedium) Delete(context.Context, string) error { return errMediumDown }
func (failingMedium) ListKeys(context.Context, string) ([]string, error) { return nil, errMediumDown }

// flakyMedium wraps a MemoryMedium and fails deletes of keys containing
// failDeleteSubstr.
type flakyMedium struct {
	*cache.MemoryMedium
	failDeleteSubstr string
}

func (m *flakyMedium) Delete(ctx context.Context, key string) error {
	if m.failDeleteSubstr != "" && strings.Contains(key, m.failDeleteSubstr) {
		return errMediumDown
	}
	return m.MemoryMedium.Delete(ctx, key)
}

// countingMedium wraps a MemoryMedium and counts reads. Reads can be held
// until hold is closed or made to fail.
type countingMedium struct {
	*cache.MemoryMedium
	gets           atomic.Int64
	failGets       atomic.Bool
	failEpochReads atomic.Int64 // number of epoch reads left to fail
	hold           chan struct{}
}

func (m *countingMedium) Get(ctx context.Context, key string) ([]byte, error) {
	m.gets.Add(1)
	if m.hold != nil {
		select {
		case <-m.hold:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.failGets.Load() {
		return nil, errMediumDown
	}
	if strings.HasPrefix(key, epochKeyPrefix) && m.failEpochReads.Add(-1) >= 0 {
		return nil, errMediumDown
	}
	return m.MemoryMedium.Get(ctx, key)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(medium cache.Medium, clock *fakeClock, opts ...Option) *ResponseCache {
	base := []Option{WithLogger(discardLogger())}
	if clock != nil {
		base = append(base, WithClock(clock.Now))
	}
	return New(medium, append(base, opts...)...)
}
