package storecache

import (
	"context"
	"errors"
	"strings"

	"github.com/ZaguanLabs/storecache/cache"
)

// PreferenceKey is the medium key of the persisted locale choice.
const PreferenceKey = "pref:locale"

// Preferences persists the user's locale choice.
type Preferences struct {
	medium cache.Medium
}

// NewPreferences creates a preference store on medium.
func NewPreferences(medium cache.Medium) *Preferences {
	return &Preferences{medium: medium}
}

// Load returns the persisted locale code. ok is false when nothing was saved.
func (p *Preferences) Load(ctx context.Context) (code string, ok bool, err error) {
	data, err := p.medium.Get(ctx, PreferenceKey)
	if errors.Is(err, cache.ErrNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, &StorageError{Op: "get", Key: PreferenceKey, Cause: err}
	}

	code = strings.TrimSpace(string(data))
	if code == "" {
		return "", false, nil
	}
	return code, true, nil
}

// Save persists code as the chosen locale.
func (p *Preferences) Save(ctx context.Context, code string) error {
	if err := p.medium.Set(ctx, PreferenceKey, []byte(code)); err != nil {
		return &StorageError{Op: "set", Key: PreferenceKey, Cause: err}
	}
	return nil
}

// Records returns every stored locale preference record, keyed by medium
// key. Older clients left duplicates under PreferenceKey plus a suffix, such
// as "pref:locale.bak" or "pref:locale:legacy", so every key extending
// PreferenceKey is a locale record. Other "pref:" keys hold unrelated
// settings and are not listed. More than one record means a duplicate.
func (p *Preferences) Records(ctx context.Context) (map[string]string, error) {
	keys, err := p.medium.ListKeys(ctx, PreferenceKey)
	if err != nil {
		return nil, &StorageError{Op: "list", Key: PreferenceKey, Cause: err}
	}

	records := make(map[string]string, len(keys))
	for _, key := range keys {
		data, err := p.medium.Get(ctx, key)
		if errors.Is(err, cache.ErrNotFound) {
			continue
		}
		if err != nil {
			return records, &StorageError{Op: "get", Key: key, Cause: err}
		}
		records[key] = strings.TrimSpace(string(data))
	}
	return records, nil
}
