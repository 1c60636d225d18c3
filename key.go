package storecache

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

const (
	// EntryKeyPrefix prefixes every durable response entry.
	EntryKeyPrefix = "rc:"

	// epochKeyPrefix prefixes the persisted per-locale invalidation epochs.
	epochKeyPrefix = "rcmeta:epoch:"
)

// Key identifies a cached response: a logical endpoint, its parameters and
// the locale it was requested under.
type Key struct {
	Endpoint string
	Params   map[string]any
	Locale   string
}

// NewKey creates a key for endpoint and params under locale.
func NewKey(endpoint string, params map[string]any, locale Locale) Key {
	return Key{Endpoint: endpoint, Params: params, Locale: locale.Code}
}

// Validate reports ErrInvalidKey for keys without endpoint or locale.
func (k Key) Validate() error {
	if strings.TrimSpace(k.Endpoint) == "" {
		return fmt.Errorf("%w: empty endpoint", ErrInvalidKey)
	}
	if strings.TrimSpace(k.Locale) == "" {
		return fmt.Errorf("%w: empty locale for %s", ErrInvalidKey, k.Endpoint)
	}
	if strings.Contains(k.Locale, ":") {
		return fmt.Errorf("%w: locale %q contains ':'", ErrInvalidKey, k.Locale)
	}
	return nil
}

// Canonical returns the order-independent endpoint key:
// endpoint?k1=v1&k2=v2 with parameter names sorted and values stringified.
func (k Key) Canonical() string {
	return k.Endpoint + "?" + CanonicalParams(k.Params)
}

// Storage returns the key used in both tiers: prefix + locale + endpoint key.
func (k Key) Storage() string {
	return LocalePrefix(k.Locale) + k.Canonical()
}

func (k Key) String() string {
	return k.Storage()
}

// LocalePrefix returns the storage prefix shared by every entry of locale.
func LocalePrefix(locale string) string {
	return EntryKeyPrefix + locale + ":"
}

// CanonicalParams serializes params with sorted names. Values are
// stringified with fmt.Sprint; names and values are query-escaped so
// separators inside values cannot collide.
func CanonicalParams(params map[string]any) string {
	if len(params) == 0 {
		return ""
	}

	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	for i, name := range names {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(name))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(fmt.Sprint(params[name])))
	}
	return b.String()
}

func epochKey(locale string) string {
	return epochKeyPrefix + locale
}
