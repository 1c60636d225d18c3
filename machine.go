package storecache

import (
	"sync"
	"time"

	"github.com/felixgeelhaar/statekit"
)

// State is a coordinator state.
type State string

// Coordinator states.
const (
	StateIdle            State = "idle"
	StateSwitching       State = "switching"
	StateAwaitingRestart State = "awaiting_restart"
)

// Coordinator events.
const (
	eventSelect         statekit.EventType = "SELECT"
	eventSettle         statekit.EventType = "SETTLE"
	eventRequireRestart statekit.EventType = "REQUIRE_RESTART"
)

const (
	stateIdle            statekit.StateID = statekit.StateID(StateIdle)
	stateSwitching       statekit.StateID = statekit.StateID(StateSwitching)
	stateAwaitingRestart statekit.StateID = statekit.StateID(StateAwaitingRestart)
)

// Transition is one recorded coordinator state change.
type Transition struct {
	From   State
	To     State
	Event  string
	Locale string
	At     time.Time
}

// switchPayload travels with every coordinator event.
type switchPayload struct {
	From   State
	Locale string
}

// switchContext carries the transition history through the machine.
type switchContext struct {
	mu      sync.Mutex
	history []Transition
	now     func() time.Time
	limit   int
}

func (c *switchContext) transitions() []Transition {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Transition, len(c.history))
	copy(out, c.history)
	return out
}

// newSwitchMachine builds the locale-switch statechart. AwaitingRestart
// accepts SELECT so the user can still pick another locale before the host
// restarts.
func newSwitchMachine() (*statekit.MachineConfig[*switchContext], error) {
	return statekit.NewMachine[*switchContext]("locale-switch").
		WithInitial(stateIdle).
		WithContext(&switchContext{}).
		WithAction("recordTransition", recordTransition).
		State(stateIdle).
			On(eventSelect).Target(stateSwitching).Do("recordTransition").
			Done().
		State(stateSwitching).
			On(eventSettle).Target(stateIdle).Do("recordTransition").
			On(eventRequireRestart).Target(stateAwaitingRestart).Do("recordTransition").
			Done().
		State(stateAwaitingRestart).
			On(eventSelect).Target(stateSwitching).Do("recordTransition").
			Done().
		Build()
}

// recordTransition appends the transition to the context history.
func recordTransition(ctx **switchContext, event statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	c := *ctx

	t := Transition{
		To:    stateForEvent(event.Type),
		Event: string(event.Type),
	}
	if payload, ok := event.Payload.(switchPayload); ok {
		t.From = payload.From
		t.Locale = payload.Locale
	}
	if c.now != nil {
		t.At = c.now()
	} else {
		t.At = time.Now()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, t)
	if c.limit > 0 && len(c.history) > c.limit {
		c.history = c.history[len(c.history)-c.limit:]
	}
}

func stateForEvent(eventType statekit.EventType) State {
	switch eventType {
	case eventSelect:
		return StateSwitching
	case eventSettle:
		return StateIdle
	case eventRequireRestart:
		return StateAwaitingRestart
	default:
		return State(eventType)
	}
}
