package state_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playsketch/sketchparty/internal/domain"
	"github.com/playsketch/sketchparty/internal/event"
	"github.com/playsketch/sketchparty/internal/state"
)

var allStates = []domain.GameState{
	domain.StateWaiting,
	domain.StateDrawing,
	domain.StateGuessing,
	domain.StateScoring,
	domain.StateGameOver,
}

func TestMachine_TransitionTable(t *testing.T) {
	t.Parallel()

	allowed := map[domain.GameState][]domain.GameState{
		domain.StateWaiting:  {domain.StateDrawing},
		domain.StateDrawing:  {domain.StateGuessing},
		domain.StateGuessing: {domain.StateScoring},
		domain.StateScoring:  {domain.StateDrawing, domain.StateGameOver},
		domain.StateGameOver: {domain.StateWaiting},
	}

	isAllowed := func(from, to domain.GameState) bool {
		if from == to {
			return true
		}
		for _, s := range allowed[from] {
			if s == to {
				return true
			}
		}
		return false
	}

	// walk is a legal path visiting each state so every (from, to) pair can
	// be probed from a machine actually in "from".
	walk := map[domain.GameState][]domain.GameState{
		domain.StateWaiting:  {},
		domain.StateDrawing:  {domain.StateDrawing},
		domain.StateGuessing: {domain.StateDrawing, domain.StateGuessing},
		domain.StateScoring:  {domain.StateDrawing, domain.StateGuessing, domain.StateScoring},
		domain.StateGameOver: {domain.StateDrawing, domain.StateGuessing, domain.StateScoring, domain.StateGameOver},
	}

	for _, from := range allStates {
		for _, to := range allStates {
			from, to := from, to
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				t.Parallel()

				m := state.NewMachine(event.NewBus())
				for _, step := range walk[from] {
					require.True(t, m.TransitionTo(context.Background(), step, nil))
				}
				require.Equal(t, from, m.Current())

				want := isAllowed(from, to)
				assert.Equal(t, want, m.CanTransitionTo(to))
				assert.Equal(t, want, m.TransitionTo(context.Background(), to, nil))

				if want {
					assert.Equal(t, to, m.Current())
				} else {
					assert.Equal(t, from, m.Current(), "rejected transition must not change state")
				}
			})
		}
	}
}

func TestMachine_TransitionPublishesEventAndRunsCallbacks(t *testing.T) {
	t.Parallel()

	eb := event.NewBus()
	m := state.NewMachine(eb)

	var published []domain.EventGameStateChanged
	eb.Subscribe(domain.EventNameGameStateChanged, func(ctx context.Context, e event.Event) error {
		published = append(published, e.Payload.(domain.EventGameStateChanged))
		return nil
	})

	var calls int
	m.AddChangeCallback(func(from, to domain.GameState) {
		panic("observer exploded")
	})
	m.AddChangeCallback(func(from, to domain.GameState) {
		calls++
		assert.Equal(t, domain.StateWaiting, from)
		assert.Equal(t, domain.StateDrawing, to)
	})

	sc := &domain.StateContext{CurrentRound: 1, TotalRounds: 3, DrawerID: "p1"}
	require.True(t, m.TransitionTo(context.Background(), domain.StateDrawing, sc))

	assert.Equal(t, 1, calls, "panicking callback must not block the next one")
	require.Len(t, published, 1, "event must be published exactly once per transition")
	assert.Equal(t, domain.StateWaiting, published[0].FromState)
	assert.Equal(t, domain.StateDrawing, published[0].ToState)
	assert.Equal(t, *sc, published[0].Context)
	assert.Equal(t, *sc, m.Context())
}

func TestMachine_NilContextKeepsExisting(t *testing.T) {
	t.Parallel()

	m := state.NewMachine(event.NewBus())

	sc := &domain.StateContext{CurrentRound: 2, DrawerID: "p2"}
	require.True(t, m.TransitionTo(context.Background(), domain.StateDrawing, sc))
	require.True(t, m.TransitionTo(context.Background(), domain.StateGuessing, nil))

	assert.Equal(t, *sc, m.Context())
}

func TestMachine_RemoveChangeCallback(t *testing.T) {
	t.Parallel()

	m := state.NewMachine(event.NewBus())

	var calls int
	tok := m.AddChangeCallback(func(from, to domain.GameState) { calls++ })

	assert.True(t, m.RemoveChangeCallback(tok))
	assert.False(t, m.RemoveChangeCallback(tok))

	m.TransitionTo(context.Background(), domain.StateDrawing, nil)
	assert.Zero(t, calls)
}

func TestMachine_HistoryBounded(t *testing.T) {
	t.Parallel()

	m := state.NewMachine(event.NewBus())

	// Cycle Drawing -> Guessing -> Scoring long enough to overflow the buffer.
	require.True(t, m.TransitionTo(context.Background(), domain.StateDrawing, nil))
	for i := 0; i < 50; i++ {
		require.True(t, m.TransitionTo(context.Background(), domain.StateGuessing, nil))
		require.True(t, m.TransitionTo(context.Background(), domain.StateScoring, nil))
		require.True(t, m.TransitionTo(context.Background(), domain.StateDrawing, nil))
	}

	full := m.History(0)
	assert.Len(t, full, 100)
	assert.Equal(t, domain.StateDrawing, full[len(full)-1])

	tail := m.History(2)
	assert.Equal(t, []domain.GameState{domain.StateScoring, domain.StateDrawing}, tail)
}

func TestMachine_Reset(t *testing.T) {
	t.Parallel()

	eb := event.NewBus()
	m := state.NewMachine(eb)

	var resets []domain.EventGameReset
	eb.Subscribe(domain.EventNameGameReset, func(ctx context.Context, e event.Event) error {
		resets = append(resets, e.Payload.(domain.EventGameReset))
		return nil
	})

	require.True(t, m.TransitionTo(context.Background(), domain.StateDrawing, &domain.StateContext{CurrentRound: 1}))
	require.True(t, m.TransitionTo(context.Background(), domain.StateGuessing, nil))

	m.Reset(context.Background())

	assert.Equal(t, domain.StateWaiting, m.Current())
	_, ok := m.Previous()
	assert.False(t, ok)
	assert.Equal(t, domain.StateContext{}, m.Context())
	assert.Equal(t, []domain.GameState{domain.StateWaiting}, m.History(0))

	require.Len(t, resets, 1)
	assert.Equal(t, domain.StateGuessing, resets[0].FromState)
}

func TestMachine_ActivityProbes(t *testing.T) {
	t.Parallel()

	m := state.NewMachine(event.NewBus())
	assert.False(t, m.IsGameActive())
	assert.False(t, m.IsGameOver())

	require.True(t, m.TransitionTo(context.Background(), domain.StateDrawing, nil))
	assert.True(t, m.IsGameActive())

	require.True(t, m.TransitionTo(context.Background(), domain.StateGuessing, nil))
	require.True(t, m.TransitionTo(context.Background(), domain.StateScoring, nil))
	assert.True(t, m.IsGameActive())

	require.True(t, m.TransitionTo(context.Background(), domain.StateGameOver, nil))
	assert.False(t, m.IsGameActive())
	assert.True(t, m.IsGameOver())
}
