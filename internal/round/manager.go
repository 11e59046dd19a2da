// Package round implements the turn-taking protocol: drawer rotation, word
// selection, guess adjudication and the per-round countdown.
package round

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/playsketch/sketchparty/internal/domain"
	"github.com/playsketch/sketchparty/internal/event"
	"github.com/playsketch/sketchparty/internal/state"
	"github.com/playsketch/sketchparty/internal/wordbank"
)

// Preview scores for RoundScore. These intentionally mirror the scoring
// engine's base amounts but omit its speed bonus: RoundScore is a live,
// non-authoritative estimate, the engine's calculation is what gets awarded.
const (
	previewDrawerScore  = 20
	previewGuesserScore = 30
)

// TimerCallback receives the remaining round time on every timer update.
type TimerCallback func(remaining time.Duration)

// TimerToken identifies a registered timer callback for removal.
type TimerToken uint64

// Config wires a Manager. EventBus, State and Words are required.
type Config struct {
	EventBus *event.Bus
	State    *state.Machine
	Words    *wordbank.Bank

	// MaxRounds caps the round number StartNewRound accepts.
	MaxRounds int
	// TimeLimit is the per-round countdown.
	TimeLimit time.Duration
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Manager owns the active round of one game session.
type Manager struct {
	eb    *event.Bus
	sm    *state.Machine
	words *wordbank.Bank

	maxRounds int
	timeLimit time.Duration
	now       func() time.Time

	players   []*domain.Player
	baseIndex int

	current   *domain.RoundInfo
	history   []domain.RoundInfo
	remaining time.Duration

	timerCallbacks []timerCallback
	nextTimerToken TimerToken
}

type timerCallback struct {
	token TimerToken
	fn    TimerCallback
}

// NewManager creates a round manager with no players registered.
func NewManager(c Config) *Manager {
	if c.Now == nil {
		c.Now = time.Now
	}

	return &Manager{
		eb:        c.EventBus,
		sm:        c.State,
		words:     c.Words,
		maxRounds: c.MaxRounds,
		timeLimit: c.TimeLimit,
		now:       c.Now,
	}
}

// AddPlayer registers a player for drawer rotation. Adding a player twice is
// a no-op.
func (m *Manager) AddPlayer(p *domain.Player) {
	if m.findPlayer(p.PlayerID) != nil {
		return
	}

	m.players = append(m.players, p)
	slog.Info("round: player added", "player", p.PlayerID, "name", p.Name)
}

// RemovePlayer drops a player from the roster. Returns false when the player
// is not registered.
func (m *Manager) RemovePlayer(playerID string) bool {
	for i, p := range m.players {
		if p.PlayerID == playerID {
			m.players = append(m.players[:i:i], m.players[i+1:]...)
			slog.Info("round: player removed", "player", playerID)
			return true
		}
	}
	return false
}

// Players returns a copy of the roster in rotation order.
func (m *Manager) Players() []*domain.Player {
	out := make([]*domain.Player, len(m.players))
	copy(out, m.players)
	return out
}

func (m *Manager) findPlayer(id string) *domain.Player {
	for _, p := range m.players {
		if p.PlayerID == id {
			return p
		}
	}
	return nil
}

// StartNewRound begins a round. roundNumber 0 means "next": one past the
// recorded history. It fails without side effects when fewer than two
// players are registered, the number exceeds the configured maximum, or the
// word bank yields nothing.
func (m *Manager) StartNewRound(ctx context.Context, roundNumber int) bool {
	if len(m.players) < 2 {
		slog.WarnContext(ctx, "round: need at least 2 players", "players", len(m.players))
		return false
	}

	if roundNumber <= 0 {
		roundNumber = len(m.history) + 1
	}
	if roundNumber > m.maxRounds {
		slog.WarnContext(ctx, "round: max rounds reached", "round", roundNumber, "max", m.maxRounds)
		return false
	}

	// Deterministic round-robin, not random.
	drawer := m.players[(m.baseIndex+roundNumber-1)%len(m.players)]

	var lastWord string
	if m.current != nil {
		lastWord = m.current.Word.Text
	} else if n := len(m.history); n > 0 {
		lastWord = m.history[n-1].Word.Text
	}

	word, ok := m.words.RandomWord(lastWord)
	if !ok {
		slog.ErrorContext(ctx, "round: word bank exhausted")
		return false
	}

	m.current = &domain.RoundInfo{
		Number:    roundNumber,
		Word:      word,
		DrawerID:  drawer.PlayerID,
		StartTime: m.now(),
		TimeLimit: m.timeLimit,
		Active:    true,
	}
	m.remaining = m.timeLimit

	for _, p := range m.players {
		p.IsDrawing = p.PlayerID == drawer.PlayerID
		p.HasGuessed = false
	}

	m.eb.Publish(ctx, domain.EventRoundStart{
		Round:            roundNumber,
		DrawerID:         drawer.PlayerID,
		Word:             word.Text,
		Hint:             word.Hint,
		TimeLimitSeconds: int(m.timeLimit.Seconds()),
	})

	m.sm.TransitionTo(ctx, domain.StateDrawing, &domain.StateContext{
		CurrentRound: roundNumber,
		TotalRounds:  m.maxRounds,
		DrawerID:     drawer.PlayerID,
		Word:         word.Masked(),
	})

	slog.InfoContext(ctx, "round: started",
		"round", roundNumber,
		"drawer", drawer.PlayerID,
		"word", word.Text,
	)
	return true
}

// EndCurrentRound finalizes the active round: stamps the end time, appends
// it to history and publishes ROUND_END. Fails when no round is active.
func (m *Manager) EndCurrentRound(ctx context.Context) bool {
	if !m.IsRoundActive() {
		slog.WarnContext(ctx, "round: no active round to end")
		return false
	}

	r := m.current
	r.Active = false
	r.EndTime = m.now()
	m.history = append(m.history, *r)

	m.eb.Publish(ctx, domain.EventRoundEnd{
		Round:           r.Number,
		DrawerID:        r.DrawerID,
		Word:            r.Word.Text,
		CorrectGuessers: append([]string(nil), r.CorrectGuessers...),
		DurationSeconds: r.Duration().Seconds(),
	})

	m.current = nil
	m.remaining = 0

	slog.InfoContext(ctx, "round: ended", "round", r.Number)
	return true
}

// SubmitGuess adjudicates one guess and returns whether it was correct. The
// drawer can never guess; a player already on the correct-guesser list gets
// true back without being scored or published again.
func (m *Manager) SubmitGuess(ctx context.Context, playerID, guess string) bool {
	if !m.IsRoundActive() || m.current.Word.Text == "" {
		slog.WarnContext(ctx, "round: guess outside an active round", "player", playerID)
		return false
	}

	if playerID == m.current.DrawerID {
		slog.WarnContext(ctx, "round: drawer cannot guess", "player", playerID)
		return false
	}

	if m.current.HasGuessed(playerID) {
		return true
	}

	correct := strings.EqualFold(strings.TrimSpace(guess), m.current.Word.Text)

	m.eb.Publish(ctx, domain.EventGuessSubmitted{
		PlayerID: playerID,
		Guess:    guess,
		Correct:  correct,
	})

	if !correct {
		m.eb.Publish(ctx, domain.EventGuessIncorrect{
			PlayerID: playerID,
			Guess:    guess,
		})
		return false
	}

	m.current.CorrectGuessers = append(m.current.CorrectGuessers, playerID)
	if p := m.findPlayer(playerID); p != nil {
		p.HasGuessed = true
	}

	m.eb.Publish(ctx, domain.EventGuessCorrect{
		PlayerID:       playerID,
		Word:           m.current.Word.Text,
		ElapsedSeconds: m.now().Sub(m.current.StartTime).Seconds(),
	})

	slog.InfoContext(ctx, "round: correct guess",
		"player", playerID,
		"word", m.current.Word.Text,
	)
	return true
}

// UpdateRoundTimer recomputes the remaining time, notifies timer callbacks
// and ends the round when the countdown reaches zero. The external driver
// must call it periodically; this is the only time-driven transition.
func (m *Manager) UpdateRoundTimer(ctx context.Context) {
	if !m.IsRoundActive() {
		return
	}

	elapsed := m.now().Sub(m.current.StartTime)
	m.remaining = m.timeLimit - elapsed
	if m.remaining < 0 {
		m.remaining = 0
	}

	for _, cb := range m.timerCallbacks {
		m.notify(ctx, cb.fn, m.remaining)
	}

	if m.remaining == 0 {
		m.EndCurrentRound(ctx)
	}
}

func (m *Manager) notify(ctx context.Context, fn TimerCallback, remaining time.Duration) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "round: timer callback panic", "error", r)
		}
	}()

	fn(remaining)
}

// AddTimerCallback registers an observer of the remaining round time.
func (m *Manager) AddTimerCallback(fn TimerCallback) TimerToken {
	m.nextTimerToken++
	m.timerCallbacks = append(m.timerCallbacks, timerCallback{token: m.nextTimerToken, fn: fn})
	return m.nextTimerToken
}

// RemoveTimerCallback removes a previously registered timer observer.
func (m *Manager) RemoveTimerCallback(t TimerToken) bool {
	for i, cb := range m.timerCallbacks {
		if cb.token == t {
			m.timerCallbacks = append(m.timerCallbacks[:i:i], m.timerCallbacks[i+1:]...)
			return true
		}
	}
	return false
}

// RoundScore previews what the player would earn in the current round: the
// drawer bonus when anyone guessed, or the guesser base plus a whole-seconds
// countdown bonus. Not the authoritative award; see the scoring engine.
func (m *Manager) RoundScore(playerID string) int {
	if m.current == nil {
		return 0
	}

	if playerID == m.current.DrawerID {
		if len(m.current.CorrectGuessers) > 0 {
			return previewDrawerScore
		}
		return 0
	}

	if m.current.HasGuessed(playerID) {
		elapsed := m.now().Sub(m.current.StartTime)
		bonus := int((m.timeLimit - elapsed).Seconds())
		if bonus < 0 {
			bonus = 0
		}
		return previewGuesserScore + bonus
	}

	return 0
}

// CurrentRound returns a copy of the active round, or false when none is.
func (m *Manager) CurrentRound() (domain.RoundInfo, bool) {
	if m.current == nil {
		return domain.RoundInfo{}, false
	}

	r := *m.current
	r.CorrectGuessers = append([]string(nil), m.current.CorrectGuessers...)
	return r, true
}

// History returns a copy of the finished rounds in order.
func (m *Manager) History() []domain.RoundInfo {
	out := make([]domain.RoundInfo, len(m.history))
	copy(out, m.history)
	return out
}

// RemainingTime returns the countdown value of the last timer update.
func (m *Manager) RemainingTime() time.Duration { return m.remaining }

// IsRoundActive reports whether a round is currently running.
func (m *Manager) IsRoundActive() bool {
	return m.current != nil && m.current.Active
}

// Progress is a snapshot of the round state for presentation layers.
type Progress struct {
	CurrentRound     int
	TotalRounds      int
	RemainingSeconds int
	TimeLimitSeconds int
	DrawerID         string
	WordHint         string
	CorrectGuessers  []string
}

// Progress reports the state of the active round; zero values when idle.
func (m *Manager) Progress() Progress {
	p := Progress{
		TotalRounds:      m.maxRounds,
		RemainingSeconds: int(m.remaining.Seconds()),
		TimeLimitSeconds: int(m.timeLimit.Seconds()),
	}

	if m.current != nil {
		p.CurrentRound = m.current.Number
		p.DrawerID = m.current.DrawerID
		p.WordHint = m.current.Word.Hint
		p.CorrectGuessers = append([]string(nil), m.current.CorrectGuessers...)
	}

	return p
}

// Reset ends any active round and clears history, rotation index and timer
// callbacks. The roster itself is preserved.
func (m *Manager) Reset(ctx context.Context) {
	if m.IsRoundActive() {
		m.EndCurrentRound(ctx)
	}

	m.current = nil
	m.history = nil
	m.baseIndex = 0
	m.remaining = 0
	m.timerCallbacks = nil

	slog.InfoContext(ctx, "round: manager reset")
}
