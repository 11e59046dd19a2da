// Package state implements the five-state game lifecycle machine.
package state

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/playsketch/sketchparty/internal/domain"
	"github.com/playsketch/sketchparty/internal/event"
)

// maxHistory bounds the transition history buffer; the oldest entry is
// dropped beyond it.
const maxHistory = 100

// validTransitions lists the directed edges of the lifecycle. Re-entering
// the current state is always permitted.
var validTransitions = map[domain.GameState][]domain.GameState{
	domain.StateWaiting:  {domain.StateDrawing},
	domain.StateDrawing:  {domain.StateGuessing},
	domain.StateGuessing: {domain.StateScoring},
	domain.StateScoring:  {domain.StateDrawing, domain.StateGameOver},
	domain.StateGameOver: {domain.StateWaiting},
}

// ChangeCallback observes a successful transition as (from, to).
type ChangeCallback func(from, to domain.GameState)

// CallbackToken identifies a registered change callback for removal.
type CallbackToken uint64

// Machine tracks the current game state and enforces the transition table.
// One machine belongs to exactly one game session.
type Machine struct {
	eb *event.Bus

	current   domain.GameState
	previous  domain.GameState
	hasPrev   bool
	context   domain.StateContext
	history   []domain.GameState
	callbacks []callback
	nextToken CallbackToken
}

type callback struct {
	token CallbackToken
	fn    ChangeCallback
}

// NewMachine creates a machine in the Waiting state.
func NewMachine(eb *event.Bus) *Machine {
	return &Machine{
		eb:      eb,
		current: domain.StateWaiting,
		history: []domain.GameState{domain.StateWaiting},
	}
}

// Current returns the current state.
func (m *Machine) Current() domain.GameState { return m.current }

// Previous returns the state before the last transition; ok is false before
// the first transition or after a reset.
func (m *Machine) Previous() (domain.GameState, bool) { return m.previous, m.hasPrev }

// Context returns the context carried by the last transition.
func (m *Machine) Context() domain.StateContext { return m.context }

// CanTransitionTo reports whether target is the current state or a listed
// successor of it.
func (m *Machine) CanTransitionTo(target domain.GameState) bool {
	if m.current == target {
		return true
	}

	for _, s := range validTransitions[m.current] {
		if s == target {
			return true
		}
	}
	return false
}

// TransitionTo moves the machine to target. A nil context keeps the existing
// one; otherwise the context is replaced wholesale. Returns false without
// mutating anything when the edge is not in the transition table.
func (m *Machine) TransitionTo(ctx context.Context, target domain.GameState, sc *domain.StateContext) bool {
	if !m.CanTransitionTo(target) {
		slog.WarnContext(ctx, "state: invalid transition",
			"from", m.current,
			"to", target,
		)
		return false
	}

	from := m.current
	m.previous = from
	m.hasPrev = true
	m.current = target
	if sc != nil {
		m.context = *sc
	}

	m.history = append(m.history, target)
	if len(m.history) > maxHistory {
		m.history = m.history[1:]
	}

	for _, cb := range m.callbacks {
		m.invoke(ctx, cb.fn, from, target)
	}

	m.eb.Publish(ctx, domain.EventGameStateChanged{
		FromState: from,
		ToState:   target,
		Context:   m.context,
	})

	slog.InfoContext(ctx, "state: transition", "from", from, "to", target)
	return true
}

// invoke runs one change callback, isolating panics so the remaining
// callbacks still fire.
func (m *Machine) invoke(ctx context.Context, fn ChangeCallback, from, to domain.GameState) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "state: change callback panic",
				"error", fmt.Errorf("%v, stack: %s", r, debug.Stack()),
			)
		}
	}()

	fn(from, to)
}

// AddChangeCallback registers a synchronous observer invoked on every
// successful transition.
func (m *Machine) AddChangeCallback(fn ChangeCallback) CallbackToken {
	m.nextToken++
	m.callbacks = append(m.callbacks, callback{token: m.nextToken, fn: fn})
	return m.nextToken
}

// RemoveChangeCallback removes a previously registered observer.
func (m *Machine) RemoveChangeCallback(t CallbackToken) bool {
	for i, cb := range m.callbacks {
		if cb.token == t {
			m.callbacks = append(m.callbacks[:i:i], m.callbacks[i+1:]...)
			return true
		}
	}
	return false
}

// History returns up to n most recent states, or the whole buffer when n <= 0.
func (m *Machine) History(n int) []domain.GameState {
	if n <= 0 || n > len(m.history) {
		n = len(m.history)
	}

	out := make([]domain.GameState, n)
	copy(out, m.history[len(m.history)-n:])
	return out
}

// Reset forces the machine back to Waiting regardless of the transition
// table, clears the history and context, and publishes GAME_RESET.
func (m *Machine) Reset(ctx context.Context) {
	from := m.current
	m.current = domain.StateWaiting
	m.previous = ""
	m.hasPrev = false
	m.context = domain.StateContext{}
	m.history = []domain.GameState{domain.StateWaiting}

	m.eb.Publish(ctx, domain.EventGameReset{
		FromState: from,
		ToState:   domain.StateWaiting,
	})

	slog.InfoContext(ctx, "state: reset", "from", from)
}

// IsGameActive reports whether a game is in progress (Drawing, Guessing or
// Scoring).
func (m *Machine) IsGameActive() bool {
	switch m.current {
	case domain.StateDrawing, domain.StateGuessing, domain.StateScoring:
		return true
	default:
		return false
	}
}

// IsGameOver reports whether the machine reached GameOver.
func (m *Machine) IsGameOver() bool {
	return m.current == domain.StateGameOver
}
