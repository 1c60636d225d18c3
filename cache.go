package storecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ZaguanLabs/storecache/cache"
)

// DefaultSchemaVersion is the schema version stamped on durable entries.
const DefaultSchemaVersion = "1.0.0"

// ResponseCache is the two-tier, locale-aware response cache.
//
// Reads consult the ephemeral tier first and then the durable tier; a durable
// hit is copied back into the ephemeral tier. Writes land in the ephemeral
// tier immediately and in the durable tier in the background. Every entry is
// tagged with its locale and the locale's invalidation epoch, and reads only
// accept entries whose tag and epoch match.
type ResponseCache struct {
	ephemeral     *EphemeralStore
	durable       *DurableStore
	registry      *Registry
	policy        Policy
	schemaVersion string
	logger        *slog.Logger
	now           Clock
	writeTimeout  time.Duration
	medium        cache.Medium

	// epochs are read without I/O. A locale's persisted epoch is loaded
	// lazily on the durable path; until then durable entries of that locale
	// are not served.
	epochMu sync.Mutex
	epochs  map[string]uint64
	loaded  map[string]bool
	rebased map[string]epochRebase
	bumpMu  sync.Mutex

	writes sync.WaitGroup
	group  singleflight.Group

	hits   atomic.Int64
	misses atomic.Int64

	partialMu sync.Mutex
	partial   []*InvalidationError
}

// Option is a functional option for configuring the ResponseCache.
type Option func(*ResponseCache)

// WithPolicy sets the freshness durations.
func WithPolicy(p Policy) Option {
	return func(c *ResponseCache) {
		c.policy = p
	}
}

// WithSchemaVersion sets the schema version durable entries must carry.
func WithSchemaVersion(v string) Option {
	return func(c *ResponseCache) {
		c.schemaVersion = v
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *ResponseCache) {
		c.logger = l
	}
}

// WithClock replaces the wall clock.
func WithClock(clock Clock) Option {
	return func(c *ResponseCache) {
		c.now = clock
	}
}

// WithRegistry sets the supported locales.
func WithRegistry(r *Registry) Option {
	return func(c *ResponseCache) {
		c.registry = r
	}
}

// WithWriteTimeout bounds each background durable write.
func WithWriteTimeout(d time.Duration) Option {
	return func(c *ResponseCache) {
		c.writeTimeout = d
	}
}

// New creates a ResponseCache whose durable tier lives on medium.
func New(medium cache.Medium, opts ...Option) *ResponseCache {
	c := &ResponseCache{
		ephemeral:     NewEphemeralStore(),
		registry:      DefaultRegistry(),
		policy:        DefaultPolicy(),
		schemaVersion: DefaultSchemaVersion,
		logger:        slog.Default(),
		now:           time.Now,
		writeTimeout:  10 * time.Second,
		medium:        medium,
		epochs:        make(map[string]uint64),
		loaded:        make(map[string]bool),
		rebased:       make(map[string]epochRebase),
	}

	for _, opt := range opts {
		opt(c)
	}

	c.durable = NewDurableStore(medium, c.schemaVersion)
	return c
}

// Registry returns the supported locales.
func (c *ResponseCache) Registry() *Registry {
	return c.registry
}

// Policy returns the freshness durations.
func (c *ResponseCache) Policy() Policy {
	return c.policy
}

// SchemaVersion returns the schema version durable entries must carry.
func (c *ResponseCache) SchemaVersion() string {
	return c.schemaVersion
}

// Medium returns the durable medium.
func (c *ResponseCache) Medium() cache.Medium {
	return c.medium
}

// Durable returns the durable tier.
func (c *ResponseCache) Durable() *DurableStore {
	return c.durable
}

// Ephemeral returns the ephemeral tier.
func (c *ResponseCache) Ephemeral() *EphemeralStore {
	return c.ephemeral
}

// Logger returns the configured logger.
func (c *ResponseCache) Logger() *slog.Logger {
	return c.logger
}

// Get returns the payload cached under key if either tier holds a fresh
// entry for the key's locale. Misses are not errors; storage failures are
// logged and reported as misses.
func (c *ResponseCache) Get(ctx context.Context, key Key, class TTLClass) (json.RawMessage, bool) {
	if err := key.Validate(); err != nil {
		c.logger.Error("cache get with invalid key", "key", key.String(), "err", err)
		c.misses.Add(1)
		return nil, false
	}

	payload, ok := c.get(ctx, key, class)
	if ok {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}
	return payload, ok
}

func (c *ResponseCache) get(ctx context.Context, key Key, class TTLClass) (json.RawMessage, bool) {
	sk := key.Storage()
	now := c.now()

	if e, ok := c.ephemeral.Get(sk); ok {
		if c.valid(e, key.Locale, c.currentEpoch(key.Locale), now, c.policy.TTL(class, EphemeralTier)) {
			return e.Payload, true
		}
		c.ephemeral.deleteIf(sk, e)
	}

	// Durable entries may predate an invalidation made by an earlier
	// process, so they are only judged against the persisted epoch.
	if !c.ensureEpoch(ctx, key.Locale) {
		return nil, false
	}
	epoch := c.currentEpoch(key.Locale)

	de, ok, err := c.durable.Get(ctx, sk)
	if err != nil {
		c.logger.Warn("durable read failed", "key", sk, "err", err)
	}
	if !ok {
		return nil, false
	}

	if !c.valid(de.Entry, key.Locale, epoch, now, c.policy.TTL(class, DurableTier)) {
		if err := c.durable.Delete(ctx, sk); err != nil {
			c.logger.Warn("removing stale durable entry failed", "key", sk, "err", err)
		}
		return nil, false
	}

	c.ephemeral.Put(sk, de.Entry)
	return de.Payload, true
}

func (c *ResponseCache) valid(e Entry, locale string, epoch uint64, now time.Time, ttl time.Duration) bool {
	return e.Locale == locale && e.Epoch == epoch && e.FreshAt(now, ttl)
}

// Set stores payload under key. payload is JSON-encoded; a json.RawMessage is
// stored as is. The ephemeral tier is written before Set returns and the
// durable tier in the background. Only an invalid key or an unencodable
// payload produce an error.
func (c *ResponseCache) Set(ctx context.Context, key Key, payload any) error {
	if err := key.Validate(); err != nil {
		return err
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding payload for %s: %w", key.Storage(), err)
	}

	sk := key.Storage()
	entry := Entry{
		Payload:   data,
		WrittenAt: c.now(),
		Locale:    key.Locale,
		Epoch:     c.currentEpoch(key.Locale),
	}
	c.ephemeral.Put(sk, entry)

	c.writes.Add(1)
	go func() {
		defer c.writes.Done()

		wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.writeTimeout)
		defer cancel()

		if !c.ensureEpoch(wctx, entry.Locale) {
			c.logger.Warn("durable write skipped, invalidation epoch unavailable", "key", sk)
			return
		}
		durable := entry
		epoch, ok := c.durableEpoch(entry.Locale, entry.Epoch)
		if !ok {
			c.logger.Debug("dropping durable write made before an invalidation", "key", sk)
			return
		}
		durable.Epoch = epoch

		if err := c.durable.Put(wctx, sk, durable); err != nil {
			c.logger.Warn("durable write failed", "key", sk, "err", err)
			return
		}
		c.logger.Debug("durable write", "key", sk, "bytes", len(data))
	}()

	return nil
}

// Flush waits for background durable writes to finish.
func (c *ResponseCache) Flush() {
	c.writes.Wait()
}

// InvalidateLocale makes every entry of locale unreachable and deletes them
// from both tiers. Entries of other locales are untouched. When the durable
// delete stops partway the surviving entries still never reach a reader; the
// returned *InvalidationError is recorded for diagnostics.
func (c *ResponseCache) InvalidateLocale(ctx context.Context, locale string) error {
	epochErr := c.bumpEpoch(ctx, locale)
	removed := c.ephemeral.DeleteLocale(locale)

	deleted, err := c.durable.DeleteLocale(ctx, locale)
	if err != nil {
		var inv *InvalidationError
		if !errors.As(err, &inv) {
			inv = &InvalidationError{Locale: locale, Cause: err}
		}
		if epochErr != nil {
			inv.Cause = errors.Join(inv.Cause, epochErr)
		}
		c.recordPartial(inv)
		c.logger.Warn("partial invalidation", "locale", locale, "deleted", deleted, "failed", inv.Failed, "err", inv.Cause)
		return inv
	}
	if epochErr != nil {
		c.logger.Warn("persisting invalidation epoch failed", "locale", locale, "err", epochErr)
	}

	c.clearPartial(locale)
	c.logger.Info("locale invalidated", "locale", locale, "ephemeral", removed, "durable", deleted)
	return nil
}

// InvalidateAll removes every entry of every locale.
func (c *ResponseCache) InvalidateAll(ctx context.Context) error {
	var epochErrs []error
	for _, locale := range c.knownLocales() {
		if err := c.bumpEpoch(ctx, locale); err != nil {
			epochErrs = append(epochErrs, err)
		}
	}
	c.ephemeral.Clear()

	deleted, err := c.durable.DeleteAll(ctx)
	if err != nil {
		var inv *InvalidationError
		if !errors.As(err, &inv) {
			inv = &InvalidationError{Cause: err}
		}
		if len(epochErrs) > 0 {
			inv.Cause = errors.Join(append([]error{inv.Cause}, epochErrs...)...)
		}
		c.recordPartial(inv)
		c.logger.Warn("partial invalidation", "deleted", deleted, "failed", inv.Failed, "err", inv.Cause)
		return inv
	}
	if len(epochErrs) > 0 {
		c.logger.Warn("persisting invalidation epochs failed", "err", errors.Join(epochErrs...))
	}

	c.clearPartial("")
	c.logger.Info("all locales invalidated", "durable", deleted)
	return nil
}

// PartialInvalidations returns the invalidations that did not complete
// since the last successful invalidation of the same scope.
func (c *ResponseCache) PartialInvalidations() []*InvalidationError {
	c.partialMu.Lock()
	defer c.partialMu.Unlock()

	out := make([]*InvalidationError, len(c.partial))
	copy(out, c.partial)
	return out
}

func (c *ResponseCache) recordPartial(err *InvalidationError) {
	c.partialMu.Lock()
	defer c.partialMu.Unlock()
	c.partial = append(c.partial, err)
}

// clearPartial forgets recorded failures covered by a successful
// invalidation of locale; an empty locale covers all of them.
func (c *ResponseCache) clearPartial(locale string) {
	c.partialMu.Lock()
	defer c.partialMu.Unlock()

	if locale == "" {
		c.partial = nil
		return
	}

	kept := c.partial[:0]
	for _, p := range c.partial {
		if p.Locale != locale {
			kept = append(kept, p)
		}
	}
	c.partial = kept
}

// Epoch returns the current invalidation epoch of locale, loading the
// persisted epoch first if needed.
func (c *ResponseCache) Epoch(ctx context.Context, locale string) uint64 {
	c.ensureEpoch(ctx, locale)
	return c.currentEpoch(locale)
}

// epochRebase records how a locale's in-memory epoch moved when its
// persisted epoch was loaded.
type epochRebase struct {
	from, to uint64
}

func (c *ResponseCache) currentEpoch(locale string) uint64 {
	c.epochMu.Lock()
	defer c.epochMu.Unlock()
	return c.epochs[locale]
}

// ensureEpoch loads the persisted epoch of locale once and reports whether
// it is known. A failed read is retried on the next call. The medium is
// never read while epochMu is held.
func (c *ResponseCache) ensureEpoch(ctx context.Context, locale string) bool {
	c.epochMu.Lock()
	done := c.loaded[locale]
	c.epochMu.Unlock()
	if done {
		return true
	}

	persisted, err := c.durable.LoadEpoch(ctx, locale)
	if err != nil {
		var corrupt *CorruptEntryError
		if !errors.As(err, &corrupt) {
			c.logger.Debug("loading invalidation epoch failed", "locale", locale, "err", err)
			return false
		}
		c.logger.Warn("invalidation epoch unreadable", "locale", locale, "err", err)
	}

	c.epochMu.Lock()
	if c.loaded[locale] {
		c.epochMu.Unlock()
		return true
	}
	// Until now every increment of the in-memory epoch was a local
	// invalidation, so it stacks on top of the persisted value.
	local := c.epochs[locale]
	next := persisted + local
	if next != local {
		c.epochs[locale] = next
		c.rebased[locale] = epochRebase{from: local, to: next}
		c.ephemeral.restamp(locale, local, next)
	}
	c.loaded[locale] = true
	c.epochMu.Unlock()

	if local > 0 {
		if err := c.durable.SaveEpoch(ctx, locale, next); err != nil {
			c.logger.Warn("persisting invalidation epoch failed", "locale", locale, "err", err)
		}
	}
	return true
}

// durableEpoch maps the epoch an entry was stamped with in memory to the
// epoch it is persisted under. It reports false when the entry was written
// before an invalidation of its locale.
func (c *ResponseCache) durableEpoch(locale string, stamp uint64) (uint64, bool) {
	c.epochMu.Lock()
	defer c.epochMu.Unlock()

	cur := c.epochs[locale]
	if stamp == cur {
		return cur, true
	}
	if r, ok := c.rebased[locale]; ok && stamp == r.from && cur == r.to {
		return cur, true
	}
	return 0, false
}

// bumpEpoch advances the epoch of locale and persists it. The in-memory
// epoch always advances; it is only persisted once the previous persisted
// value is known, so the record never moves backwards.
func (c *ResponseCache) bumpEpoch(ctx context.Context, locale string) error {
	c.bumpMu.Lock()
	defer c.bumpMu.Unlock()

	known := c.ensureEpoch(ctx, locale)

	c.epochMu.Lock()
	c.epochs[locale]++
	next := c.epochs[locale]
	c.epochMu.Unlock()

	if !known {
		return &StorageError{Op: "set", Key: epochKey(locale), Cause: errEpochUnknown}
	}
	return c.durable.SaveEpoch(ctx, locale, next)
}

func (c *ResponseCache) knownLocales() []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range c.registry.All() {
		if !seen[l.Code] {
			seen[l.Code] = true
			out = append(out, l.Code)
		}
	}

	c.epochMu.Lock()
	for locale := range c.epochs {
		if !seen[locale] {
			seen[locale] = true
			out = append(out, locale)
		}
	}
	c.epochMu.Unlock()

	for locale := range c.ephemeral.CountByLocale() {
		if !seen[locale] {
			seen[locale] = true
			out = append(out, locale)
		}
	}
	return out
}

// CacheStats is a snapshot of the tier sizes and read counters.
type CacheStats struct {
	EphemeralEntries  int
	EphemeralByLocale map[string]int
	DurableEntries    int
	DurableAvailable  bool
	Hits              int64
	Misses            int64
}

// Stats returns tier sizes and hit/miss counters. A failing durable tier
// reports zero entries and DurableAvailable=false.
func (c *ResponseCache) Stats(ctx context.Context) CacheStats {
	byLocale := c.ephemeral.CountByLocale()
	total := 0
	for _, n := range byLocale {
		total += n
	}

	stats := CacheStats{
		EphemeralEntries:  total,
		EphemeralByLocale: byLocale,
		Hits:              c.hits.Load(),
		Misses:            c.misses.Load(),
	}

	keys, err := c.durable.Keys(ctx)
	if err != nil {
		c.logger.Warn("durable tier unavailable", "err", err)
		return stats
	}
	stats.DurableEntries = len(keys)
	stats.DurableAvailable = true
	return stats
}

// Counters returns the hit and miss counts.
func (c *ResponseCache) Counters() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// ResetCounters zeroes the hit and miss counters.
func (c *ResponseCache) ResetCounters() {
	c.hits.Store(0)
	c.misses.Store(0)
}

// FetchRaw returns the payload cached under key or, on a miss, calls
// producer, stores its result and returns it. Concurrent misses for the same
// key share one producer call. Producer errors are returned unchanged and
// nothing is cached.
func FetchRaw(ctx context.Context, c *ResponseCache, key Key, class TTLClass, producer func(context.Context) (json.RawMessage, error)) (json.RawMessage, error) {
	if err := key.Validate(); err != nil {
		return nil, err
	}
	if payload, ok := c.Get(ctx, key, class); ok {
		return payload, nil
	}

	v, err, _ := c.group.Do(key.Storage(), func() (any, error) {
		raw, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		if err := c.Set(ctx, key, raw); err != nil {
			return nil, err
		}
		return raw, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(json.RawMessage), nil
}

// Fetch is the typed form of FetchRaw.
func Fetch[T any](ctx context.Context, c *ResponseCache, key Key, class TTLClass, producer func(context.Context) (T, error)) (T, error) {
	var zero T

	raw, err := FetchRaw(ctx, c, key, class, func(ctx context.Context) (json.RawMessage, error) {
		v, err := producer(ctx)
		if err != nil {
			return nil, err
		}
		return json.Marshal(v)
	})
	if err != nil {
		return zero, err
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, fmt.Errorf("decoding %s: %w", key.Storage(), err)
	}
	return out, nil
}

// Lookup returns the cached value under key decoded as T. It never calls a
// producer.
func Lookup[T any](ctx context.Context, c *ResponseCache, key Key, class TTLClass) (T, bool, error) {
	var zero T

	raw, ok := c.Get(ctx, key, class)
	if !ok {
		return zero, false, nil
	}

	var out T
	if err := json.Unmarshal(raw, &out); err != nil {
		return zero, false, fmt.Errorf("decoding %s: %w", key.Storage(), err)
	}
	return out, true, nil
}
