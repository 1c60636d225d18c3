package storecache

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"github.com/ZaguanLabs/storecache/cache"
)

// DirectionKey is the medium key StoredDirection persists the flag under.
const DirectionKey = "layout:direction"

// LayoutDirection is the process-wide layout-direction flag the host UI
// reads at startup.
type LayoutDirection interface {
	Direction(ctx context.Context) (Direction, error)
	SetDirection(ctx context.Context, d Direction) error
}

// MemoryDirection keeps the flag in memory.
type MemoryDirection struct {
	rtl atomic.Bool
}

// NewMemoryDirection creates a flag set to d.
func NewMemoryDirection(d Direction) *MemoryDirection {
	m := &MemoryDirection{}
	m.rtl.Store(d == RTL)
	return m
}

// Direction returns the current flag.
func (m *MemoryDirection) Direction(context.Context) (Direction, error) {
	if m.rtl.Load() {
		return RTL, nil
	}
	return LTR, nil
}

// SetDirection sets the flag.
func (m *MemoryDirection) SetDirection(_ context.Context, d Direction) error {
	m.rtl.Store(d == RTL)
	return nil
}

// StoredDirection persists the flag on a medium, for hosts that read it
// from storage on the next launch. An absent record reads as LTR.
type StoredDirection struct {
	medium cache.Medium
}

// NewStoredDirection creates a flag persisted on medium.
func NewStoredDirection(medium cache.Medium) *StoredDirection {
	return &StoredDirection{medium: medium}
}

// Direction reads the persisted flag.
func (s *StoredDirection) Direction(ctx context.Context) (Direction, error) {
	data, err := s.medium.Get(ctx, DirectionKey)
	if errors.Is(err, cache.ErrNotFound) {
		return LTR, nil
	}
	if err != nil {
		return LTR, &StorageError{Op: "get", Key: DirectionKey, Cause: err}
	}

	d, err := ParseDirection(strings.TrimSpace(string(data)))
	if err != nil {
		return LTR, &CorruptEntryError{Key: DirectionKey, Cause: err}
	}
	return d, nil
}

// SetDirection persists the flag.
func (s *StoredDirection) SetDirection(ctx context.Context, d Direction) error {
	if err := s.medium.Set(ctx, DirectionKey, []byte(d.String())); err != nil {
		return &StorageError{Op: "set", Key: DirectionKey, Cause: err}
	}
	return nil
}

var (
	_ LayoutDirection = (*MemoryDirection)(nil)
	_ LayoutDirection = (*StoredDirection)(nil)
)
