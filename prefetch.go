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

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/ZaguanLabs/storecache/commerce"
)

// Target is one endpoint the prefetcher warms.
type Target struct {
	Name     string
	Endpoint string
	Params   map[string]any
	Class    TTLClass
}

// DefaultTargets returns the storefront home-screen set: primary navigation
// categories, promotional banners and the first three pages of best sellers.
func DefaultTargets() []Target {
	targets := []Target{
		{Name: "categories", Endpoint: "catalog/categories", Params: map[string]any{"depth": 2}, Class: Critical},
		{Name: "banners", Endpoint: "marketing/banners", Params: map[string]any{"placement": "home"}, Class: Standard},
	}
	for page := 1; page <= 3; page++ {
		targets = append(targets, Target{
			Name:     fmt.Sprintf("bestsellers-p%d", page),
			Endpoint: "catalog/bestsellers",
			Params:   map[string]any{"page": page, "pageSize": 20},
			Class:    Standard,
		})
	}
	return targets
}

// WarmReport summarizes one warm-up of a locale.
type WarmReport struct {
	Locale   string
	Skipped  bool // Locale was already warm
	Targets  int
	Fetched  int // Targets that reached the source
	Failed   int
	Duration time.Duration
	Err      error // errors.Join of every target failure
}

// Prefetcher warms the cache for whole locales in the background. Warming
// goes through the same read-through path as interactive requests, so a
// target that is already cached costs nothing.
type Prefetcher struct {
	cache       *ResponseCache
	source      commerce.Source
	targets     []Target
	delay       time.Duration
	concurrency int
	logger      *slog.Logger

	mu     sync.Mutex
	warmed map[string]bool
	gen    map[string]uint64

	group singleflight.Group
	wg    sync.WaitGroup
}

// PrefetchOption is a functional option for configuring the Prefetcher.
type PrefetchOption func(*Prefetcher)

// WithTargets replaces the default targets.
func WithTargets(targets []Target) PrefetchOption {
	return func(p *Prefetcher) {
		p.targets = targets
	}
}

// WithDelay sets the pause between warming the active locale and the others.
func WithDelay(d time.Duration) PrefetchOption {
	return func(p *Prefetcher) {
		p.delay = d
	}
}

// WithConcurrency caps concurrent fetches per warm-up. Zero or less means
// one goroutine per target.
func WithConcurrency(n int) PrefetchOption {
	return func(p *Prefetcher) {
		p.concurrency = n
	}
}

// WithPrefetchLogger sets the logger. The cache's logger is used by default.
func WithPrefetchLogger(l *slog.Logger) PrefetchOption {
	return func(p *Prefetcher) {
		p.logger = l
	}
}

// NewPrefetcher creates a prefetcher that fills c from source.
func NewPrefetcher(c *ResponseCache, source commerce.Source, opts ...PrefetchOption) *Prefetcher {
	p := &Prefetcher{
		cache:   c,
		source:  source,
		targets: DefaultTargets(),
		delay:   2 * time.Second,
		logger:  c.Logger(),
		warmed:  make(map[string]bool),
		gen:     make(map[string]uint64),
	}

	for _, opt := range opts {
		opt(p)
	}

	return p
}

// Targets returns the configured targets.
func (p *Prefetcher) Targets() []Target {
	out := make([]Target, len(p.targets))
	copy(out, p.targets)
	return out
}

// Warmed reports whether locale has been fully warmed since its last reset.
func (p *Prefetcher) Warmed(locale string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.warmed[locale]
}

// Reset forgets that locale was warmed, so the next Warm fetches again.
// A warm-up already running for the locale will not mark it warm.
func (p *Prefetcher) Reset(locale string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.warmed, locale)
	p.gen[locale]++
}

// ResetAll forgets every warmed locale.
func (p *Prefetcher) ResetAll() {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.warmed)
	for _, l := range p.cache.Registry().All() {
		if _, ok := p.gen[l.Code]; !ok {
			p.gen[l.Code] = 0
		}
	}
	for locale := range p.gen {
		p.gen[locale]++
	}
}

// Warm fetches every target for locale. It is a no-op for a locale that is
// already warm; concurrent calls for the same locale share one warm-up.
// Failures of individual targets never stop the others.
func (p *Prefetcher) Warm(ctx context.Context, locale Locale) WarmReport {
	p.mu.Lock()
	if p.warmed[locale.Code] {
		p.mu.Unlock()
		return WarmReport{Locale: locale.Code, Skipped: true, Targets: len(p.targets)}
	}
	gen := p.gen[locale.Code]
	p.mu.Unlock()

	v, _, _ := p.group.Do(fmt.Sprintf("%s#%d", locale.Code, gen), func() (any, error) {
		report := p.warm(ctx, locale)

		p.mu.Lock()
		if report.Failed == 0 && p.gen[locale.Code] == gen {
			p.warmed[locale.Code] = true
		}
		p.mu.Unlock()

		return report, nil
	})
	return v.(WarmReport)
}

// Rewarm resets locale and warms it again.
func (p *Prefetcher) Rewarm(ctx context.Context, locale Locale) WarmReport {
	p.Reset(locale.Code)
	return p.Warm(ctx, locale)
}

func (p *Prefetcher) warm(ctx context.Context, locale Locale) WarmReport {
	start := time.Now()
	ctx = commerce.WithPriority(ctx, commerce.Background)

	var (
		g       errgroup.Group
		fetched atomic.Int64
		mu      sync.Mutex
		errs    []error
	)
	if p.concurrency > 0 {
		g.SetLimit(p.concurrency)
	}

	for _, target := range p.targets {
		g.Go(func() error {
			key := NewKey(target.Endpoint, target.Params, locale)
			_, err := FetchRaw(ctx, p.cache, key, target.Class, func(ctx context.Context) (json.RawMessage, error) {
				fetched.Add(1)
				return p.source.Fetch(ctx, commerce.Request{
					Endpoint:  target.Endpoint,
					Params:    target.Params,
					CultureID: locale.CultureID,
				})
			})
			if err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("prefetch %s for %s: %w", target.Name, locale.Code, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	report := WarmReport{
		Locale:   locale.Code,
		Targets:  len(p.targets),
		Fetched:  int(fetched.Load()),
		Failed:   len(errs),
		Duration: time.Since(start),
		Err:      errors.Join(errs...),
	}

	if report.Err != nil {
		p.logger.Warn("prefetch incomplete", "locale", locale.Code, "failed", report.Failed, "targets", report.Targets, "err", report.Err)
	} else {
		p.logger.Info("prefetch complete", "locale", locale.Code, "fetched", report.Fetched, "targets", report.Targets, "duration", report.Duration)
	}
	return report
}

// WarmBothLocales warms active first and, after the configured delay, every
// other supported locale. It stops early when ctx is cancelled.
func (p *Prefetcher) WarmBothLocales(ctx context.Context, active Locale) []WarmReport {
	reports := []WarmReport{p.Warm(ctx, active)}

	others := p.cache.Registry().Others(active)
	if len(others) == 0 {
		return reports
	}

	if p.delay > 0 {
		timer := time.NewTimer(p.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return reports
		case <-timer.C:
		}
	}

	for _, l := range others {
		if ctx.Err() != nil {
			break
		}
		reports = append(reports, p.Warm(ctx, l))
	}
	return reports
}

// Start runs WarmBothLocales in the background and returns immediately.
func (p *Prefetcher) Start(ctx context.Context, active Locale) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.WarmBothLocales(ctx, active)
	}()
}

// Kick runs Warm for locale in the background and returns immediately.
func (p *Prefetcher) Kick(ctx context.Context, locale Locale) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.Warm(ctx, locale)
	}()
}

// Wait blocks until all background work started by Start and Kick is done.
func (p *Prefetcher) Wait() {
	p.wg.Wait()
}
