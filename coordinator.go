package storecache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/felixgeelhaar/statekit"
)

// Change describes a completed locale switch.
type Change struct {
	From            Locale
	To              Locale
	Direction       Direction
	RequiresRestart bool
}

// RestartHook is called when a switch needs the host to restart its UI
// before the new layout direction takes effect.
type RestartHook func(Change)

// Coordinator owns the active locale. It switches locales, invalidates the
// new locale's cached data, re-triggers prefetching and tells the host when
// the layout direction changes.
type Coordinator struct {
	cache     *ResponseCache
	prefetch  *Prefetcher
	direction LayoutDirection
	prefs     *Preferences
	registry  *Registry
	logger    *slog.Logger

	liveRelayout bool
	restartHook  RestartHook

	// switchMu serializes Initialize and SelectLocale.
	switchMu sync.Mutex

	mu          sync.RWMutex
	current     Locale
	rendered    Direction
	initialized bool
	subs        map[int]func(Change)
	nextSub     int

	machineMu sync.Mutex
	interp    *statekit.Interpreter[*switchContext]
	history   *switchContext
}

// CoordinatorOption is a functional option for configuring the Coordinator.
type CoordinatorOption func(*Coordinator)

// WithLiveRelayout declares that the host can re-layout without a restart.
func WithLiveRelayout(live bool) CoordinatorOption {
	return func(c *Coordinator) {
		c.liveRelayout = live
	}
}

// WithRestartHook sets the function called when a restart is required.
func WithRestartHook(hook RestartHook) CoordinatorOption {
	return func(c *Coordinator) {
		c.restartHook = hook
	}
}

// WithCoordinatorLogger sets the logger. The cache's logger is used by default.
func WithCoordinatorLogger(l *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = l
	}
}

// WithHistoryLimit bounds the number of transitions History keeps.
func WithHistoryLimit(n int) CoordinatorOption {
	return func(c *Coordinator) {
		c.history.limit = n
	}
}

// NewCoordinator creates a coordinator. prefetch may be nil, in which case
// switches do not warm the new locale.
func NewCoordinator(rc *ResponseCache, prefetch *Prefetcher, direction LayoutDirection, prefs *Preferences, opts ...CoordinatorOption) (*Coordinator, error) {
	if rc == nil || direction == nil || prefs == nil {
		return nil, fmt.Errorf("coordinator needs a cache, a direction flag and preferences")
	}

	machine, err := newSwitchMachine()
	if err != nil {
		return nil, fmt.Errorf("building locale-switch machine: %w", err)
	}

	c := &Coordinator{
		cache:     rc,
		prefetch:  prefetch,
		direction: direction,
		prefs:     prefs,
		registry:  rc.Registry(),
		logger:    rc.Logger(),
		subs:      make(map[int]func(Change)),
		history:   &switchContext{now: rc.now, limit: 100},
	}

	for _, opt := range opts {
		opt(c)
	}

	c.interp = statekit.NewInterpreter(machine)
	c.interp.UpdateContext(func(sc **switchContext) {
		*sc = c.history
	})
	c.interp.Start()

	return c, nil
}

// Initialize restores the persisted locale, or the registry default when
// none is saved or it cannot be read, and makes sure the direction flag
// agrees with it. It never invalidates, prefetches or persists, and calling
// it again has no effect.
func (c *Coordinator) Initialize(ctx context.Context) Locale {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()
	return c.initializeLocked(ctx)
}

func (c *Coordinator) initializeLocked(ctx context.Context) Locale {
	c.mu.RLock()
	if c.initialized {
		current := c.current
		c.mu.RUnlock()
		return current
	}
	c.mu.RUnlock()

	locale := c.registry.Default()
	code, ok, err := c.prefs.Load(ctx)
	switch {
	case err != nil:
		c.logger.Warn("reading locale preference failed", "err", err)
	case ok:
		l, err := c.registry.Lookup(code)
		if err != nil {
			c.logger.Warn("ignoring persisted locale", "locale", code, "err", err)
		} else {
			locale = l
		}
	}

	flag, err := c.direction.Direction(ctx)
	if err != nil {
		c.logger.Warn("reading layout direction failed", "err", err)
	}
	if err != nil || flag != locale.Direction {
		if err := c.direction.SetDirection(ctx, locale.Direction); err != nil {
			c.logger.Warn("setting layout direction failed", "direction", locale.Direction.String(), "err", err)
		}
	}

	c.mu.Lock()
	c.current = locale
	c.rendered = locale.Direction
	c.initialized = true
	c.mu.Unlock()

	c.logger.Info("locale initialized", "locale", locale.Code, "direction", locale.Direction.String())
	return locale
}

// SelectLocale switches the active locale to code. Selecting the active
// locale is a no-op; an unknown code returns ErrUnsupportedLocale. Storage
// failures during the switch are logged and never undo it. The returned
// state is StateAwaitingRestart when the layout direction changed and the
// host cannot re-layout live.
func (c *Coordinator) SelectLocale(ctx context.Context, code string) (State, error) {
	target, err := c.registry.Lookup(code)
	if err != nil {
		return c.State(), err
	}

	change, switched := c.switchTo(ctx, target)
	if !switched {
		return c.State(), nil
	}

	c.notify(change)
	if change.RequiresRestart && c.restartHook != nil {
		c.restartHook(change)
	}
	return c.State(), nil
}

func (c *Coordinator) switchTo(ctx context.Context, target Locale) (Change, bool) {
	c.switchMu.Lock()
	defer c.switchMu.Unlock()

	prev := c.initializeLocked(ctx)
	if prev.Code == target.Code {
		return Change{}, false
	}

	c.send(eventSelect, target.Code)
	c.logger.Info("switching locale", "from", prev.Code, "to", target.Code)

	c.mu.Lock()
	c.current = target
	rendered := c.rendered
	c.mu.Unlock()

	if err := c.cache.InvalidateLocale(ctx, target.Code); err != nil {
		c.logger.Warn("invalidation incomplete", "locale", target.Code, "err", err)
	}
	if c.prefetch != nil {
		c.prefetch.Reset(target.Code)
	}

	if err := c.direction.SetDirection(ctx, target.Direction); err != nil {
		c.logger.Warn("setting layout direction failed", "direction", target.Direction.String(), "err", err)
	}

	if err := c.prefs.Save(ctx, target.Code); err != nil {
		c.logger.Warn("persisting locale failed", "locale", target.Code, "err", err)
	}

	if c.prefetch != nil {
		c.prefetch.Kick(context.WithoutCancel(ctx), target)
	}

	change := Change{
		From:            prev,
		To:              target,
		Direction:       target.Direction,
		RequiresRestart: target.Direction != rendered && !c.liveRelayout,
	}

	if change.RequiresRestart {
		c.send(eventRequireRestart, target.Code)
		c.logger.Info("layout direction changed, restart required", "locale", target.Code, "direction", target.Direction.String())
	} else {
		if c.liveRelayout {
			c.mu.Lock()
			c.rendered = target.Direction
			c.mu.Unlock()
		}
		c.send(eventSettle, target.Code)
	}

	return change, true
}

func (c *Coordinator) send(event statekit.EventType, locale string) {
	c.machineMu.Lock()
	defer c.machineMu.Unlock()
	c.interp.Send(statekit.Event{
		Type: event,
		Payload: switchPayload{
			From:   State(c.interp.State().Value),
			Locale: locale,
		},
	})
}

func (c *Coordinator) notify(change Change) {
	c.mu.RLock()
	subs := make([]func(Change), 0, len(c.subs))
	for _, fn := range c.subs {
		subs = append(subs, fn)
	}
	c.mu.RUnlock()

	for _, fn := range subs {
		fn(change)
	}
}

// CurrentLocale returns the active locale. Before Initialize it is the
// registry default.
func (c *Coordinator) CurrentLocale() Locale {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.initialized {
		return c.registry.Default()
	}
	return c.current
}

// RenderedDirection returns the direction the host UI was laid out in.
func (c *Coordinator) RenderedDirection() Direction {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.rendered
}

// State returns the current coordinator state.
func (c *Coordinator) State() State {
	c.machineMu.Lock()
	defer c.machineMu.Unlock()
	return State(c.interp.State().Value)
}

// Subscribe registers fn to be called after every completed switch. fn runs
// on the switching goroutine. The returned function removes the
// subscription.
func (c *Coordinator) Subscribe(fn func(Change)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// History returns the recorded state transitions, oldest first.
func (c *Coordinator) History() []Transition {
	return c.history.transitions()
}

// Prefetcher returns the prefetcher, which may be nil.
func (c *Coordinator) Prefetcher() *Prefetcher {
	return c.prefetch
}

