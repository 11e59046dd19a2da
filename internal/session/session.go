// Package session glues the game components together: one Session owns one
// event bus, state machine, round manager and scoring engine, and serializes
// all access to them behind a single mutex.
package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/playsketch/sketchparty/internal/domain"
	"github.com/playsketch/sketchparty/internal/errors"
	"github.com/playsketch/sketchparty/internal/event"
	"github.com/playsketch/sketchparty/internal/round"
	"github.com/playsketch/sketchparty/internal/scoring"
	"github.com/playsketch/sketchparty/internal/state"
	"github.com/playsketch/sketchparty/internal/wordbank"
)

// Config carries the game parameters shared by every session a Manager
// creates. Words is required; zero numeric values fall back to the scoring
// and round defaults.
type Config struct {
	Words *wordbank.Bank

	MaxRounds int
	TimeLimit time.Duration

	DrawerBaseScore     int
	GuesserBaseScore    int
	TimeBonusFactor     float64
	SpeedBonusThreshold float64
	SpeedBonusPoints    int

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Session is one running game. All exported methods take the session mutex;
// event handlers run synchronously inside the publishing call and therefore
// already hold it.
type Session struct {
	id        string
	createdAt time.Time

	mu sync.Mutex

	eb     *event.Bus
	sm     *state.Machine
	rounds *round.Manager
	scores *scoring.Engine

	maxRounds int
	timeLimit time.Duration
}

// Internal handlers outrun the default-priority subscribers (the scoring
// engine's leaderboard recompute among them), so awards land in the ledger
// before anyone reads it.
const handlerPriority = 10

// NewSession builds a fully wired game session in the Waiting state.
func NewSession(c Config) *Session {
	if c.MaxRounds == 0 {
		c.MaxRounds = 3
	}
	if c.TimeLimit == 0 {
		c.TimeLimit = 90 * time.Second
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	eb := event.NewBus()

	s := &Session{
		id:        uuid.NewString(),
		createdAt: c.Now(),
		eb:        eb,
		sm:        state.NewMachine(eb),
		maxRounds: c.MaxRounds,
		timeLimit: c.TimeLimit,
	}

	s.scores = scoring.NewEngine(scoring.Config{
		EventBus:            eb,
		DrawerBase:          c.DrawerBaseScore,
		GuesserBase:         c.GuesserBaseScore,
		TimeBonusFactor:     c.TimeBonusFactor,
		SpeedBonusThreshold: c.SpeedBonusThreshold,
		SpeedBonusPoints:    c.SpeedBonusPoints,
		Now:                 c.Now,
	})

	s.rounds = round.NewManager(round.Config{
		EventBus:  eb,
		State:     s.sm,
		Words:     c.Words,
		MaxRounds: c.MaxRounds,
		TimeLimit: c.TimeLimit,
		Now:       c.Now,
	})

	eb.Subscribe(domain.EventNameGuessCorrect, func(ctx context.Context, e event.Event) error {
		s.onGuessCorrect(ctx, e.Payload.(domain.EventGuessCorrect))
		return nil
	}, event.WithPriority(handlerPriority))

	eb.Subscribe(domain.EventNameRoundEnd, func(ctx context.Context, e event.Event) error {
		s.onRoundEnd(ctx, e.Payload.(domain.EventRoundEnd))
		return nil
	}, event.WithPriority(handlerPriority))

	eb.Subscribe(domain.EventNameScoreUpdate, func(ctx context.Context, e event.Event) error {
		s.onScoreUpdate(e.Payload.(domain.EventScoreUpdate))
		return nil
	}, event.WithPriority(handlerPriority))

	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// CreatedAt returns the session creation time.
func (s *Session) CreatedAt() time.Time { return s.createdAt }

// Bus exposes the session's event bus so observers (leaderboard mirror,
// score archive) can subscribe. Subscribe at attach time only; the bus is
// not safe for concurrent registration.
func (s *Session) Bus() *event.Bus { return s.eb }

// onGuessCorrect awards the guesser through the scoring engine. Runs inside
// the publishing call, mutex already held.
func (s *Session) onGuessCorrect(ctx context.Context, p domain.EventGuessCorrect) {
	roundNumber := 0
	if r, ok := s.rounds.CurrentRound(); ok {
		roundNumber = r.Number
	}

	points := s.scores.CalculateGuesserScore(p.ElapsedSeconds, int(s.timeLimit.Seconds()))
	s.scores.AddScore(ctx, s.playerOrRef(p.PlayerID), points, roundNumber, domain.AwardGuesser, map[string]any{
		"elapsed_seconds": p.ElapsedSeconds,
	})
}

// onRoundEnd awards the drawer, advances the lifecycle to Scoring and ends
// the game once the configured round count is exhausted.
func (s *Session) onRoundEnd(ctx context.Context, p domain.EventRoundEnd) {
	if points := s.scores.CalculateDrawerScore(len(p.CorrectGuessers) > 0); points > 0 {
		s.scores.AddScore(ctx, s.playerOrRef(p.DrawerID), points, p.Round, domain.AwardDrawer, map[string]any{
			"correct_guessers": len(p.CorrectGuessers),
		})
	}

	if s.sm.Current() == domain.StateDrawing {
		s.sm.TransitionTo(ctx, domain.StateGuessing, nil)
	}
	if s.sm.Current() == domain.StateGuessing {
		s.sm.TransitionTo(ctx, domain.StateScoring, nil)
	}

	if p.Round >= s.maxRounds {
		s.finishGame(ctx)
	}
}

// onScoreUpdate mirrors the ledger total onto the roster player. The ledger
// stays authoritative; Player.Score is display state.
func (s *Session) onScoreUpdate(p domain.EventScoreUpdate) {
	if pl := s.findPlayer(p.PlayerID); pl != nil {
		pl.Score = p.TotalScore
	}
}

// playerOrRef resolves a roster player by id, or falls back to a bare
// reference so a player who already left can still be awarded.
func (s *Session) playerOrRef(id string) domain.Player {
	if p := s.findPlayer(id); p != nil {
		return *p
	}
	return domain.Player{PlayerID: id}
}

func (s *Session) findPlayer(id string) *domain.Player {
	for _, p := range s.rounds.Players() {
		if p.PlayerID == id {
			return p
		}
	}
	return nil
}

// AddPlayer registers a player and publishes PLAYER_JOIN. An empty id is
// generated; a duplicate id fails with AlreadyExists.
func (s *Session) AddPlayer(ctx context.Context, playerID, name string, t domain.PlayerType) (*domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name == "" {
		return nil, errors.New(errors.CodeInvalidArgument, errors.WithMessagef("player name is required"))
	}
	if playerID == "" {
		playerID = uuid.NewString()
	}
	if s.findPlayer(playerID) != nil {
		return nil, errors.New(errors.CodeAlreadyExists, errors.WithMessagef("player already joined: %s", playerID))
	}
	if t == "" {
		t = domain.PlayerTypeHuman
	}

	p := &domain.Player{PlayerID: playerID, Name: name, Type: t}
	s.rounds.AddPlayer(p)

	s.eb.Publish(ctx, domain.EventPlayerJoin{
		PlayerID:   p.PlayerID,
		PlayerName: p.Name,
	})

	return p, nil
}

// RemovePlayer drops a player from the roster and publishes PLAYER_LEAVE.
// Ledger records for the player are kept.
func (s *Session) RemovePlayer(ctx context.Context, playerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p := s.findPlayer(playerID)
	if p == nil {
		return errors.New(errors.CodeNotFound, errors.WithMessagef("player not found: %s", playerID))
	}

	s.rounds.RemovePlayer(playerID)

	s.eb.Publish(ctx, domain.EventPlayerLeave{
		PlayerID:   p.PlayerID,
		PlayerName: p.Name,
	})

	return nil
}

// Players returns the roster in rotation order.
func (s *Session) Players() []*domain.Player {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rounds.Players()
}

// StartGame publishes GAME_START and begins round one. The session must be
// in Waiting with at least two players.
func (s *Session) StartGame(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sm.Current() != domain.StateWaiting {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("game already started: state=%s", s.sm.Current()))
	}
	if len(s.rounds.Players()) < 2 {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("need at least 2 players, have %d", len(s.rounds.Players())))
	}

	s.eb.Publish(ctx, domain.EventGameStart{
		GameID:      s.id,
		PlayerCount: len(s.rounds.Players()),
	})

	if !s.rounds.StartNewRound(ctx, 1) {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("cannot start first round"))
	}

	slog.InfoContext(ctx, "session: game started", "session", s.id)
	return nil
}

// StartNextRound begins the round after the last finished one. Valid only
// between rounds, from the Scoring state.
func (s *Session) StartNextRound(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sm.Current() != domain.StateScoring {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("cannot start a round from state %s", s.sm.Current()))
	}

	if !s.rounds.StartNewRound(ctx, 0) {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("cannot start next round"))
	}
	return nil
}

// BeginGuessing moves the lifecycle from Drawing to Guessing. Guessing
// itself is accepted in either state; this is the presentation cue that the
// drawing phase is over.
func (s *Session) BeginGuessing(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sm.Current() != domain.StateDrawing {
		return errors.New(errors.CodeFailedPrecondition,
			errors.WithMessagef("cannot begin guessing from state %s", s.sm.Current()))
	}

	s.sm.TransitionTo(ctx, domain.StateGuessing, nil)
	return nil
}

// SubmitGuess adjudicates a guess for a roster player and reports whether it
// was correct.
func (s *Session) SubmitGuess(ctx context.Context, playerID, guess string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findPlayer(playerID) == nil {
		return false, errors.New(errors.CodeNotFound, errors.WithMessagef("player not found: %s", playerID))
	}

	r, ok := s.rounds.CurrentRound()
	if !ok {
		return false, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("no active round"))
	}
	if r.DrawerID == playerID {
		return false, errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("the drawer cannot guess"))
	}

	return s.rounds.SubmitGuess(ctx, playerID, guess), nil
}

// EndRound finalizes the active round; scoring and the lifecycle advance
// through the ROUND_END handlers.
func (s *Session) EndRound(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.rounds.EndCurrentRound(ctx) {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("no active round"))
	}
	return nil
}

// EndGame finishes the game early: any active round is ended, the lifecycle
// is walked to GameOver and GAME_END carries the final leaderboard.
func (s *Session) EndGame(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sm.Current() == domain.StateWaiting {
		return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("no game in progress"))
	}

	if s.rounds.IsRoundActive() {
		s.rounds.EndCurrentRound(ctx)
	}

	s.finishGame(ctx)
	return nil
}

// finishGame walks the lifecycle to GameOver and publishes GAME_END exactly
// once.
func (s *Session) finishGame(ctx context.Context) {
	if s.sm.IsGameOver() {
		return
	}

	if s.sm.Current() == domain.StateDrawing {
		s.sm.TransitionTo(ctx, domain.StateGuessing, nil)
	}
	if s.sm.Current() == domain.StateGuessing {
		s.sm.TransitionTo(ctx, domain.StateScoring, nil)
	}
	s.sm.TransitionTo(ctx, domain.StateGameOver, nil)

	s.eb.Publish(ctx, domain.EventGameEnd{
		GameID:      s.id,
		FinalScores: s.scores.Leaderboard(s.rounds.Players()),
	})

	slog.InfoContext(ctx, "session: game over", "session", s.id)
}

// Tick drives the round countdown. The caller owns the cadence; a round that
// runs out of time ends here.
func (s *Session) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rounds.UpdateRoundTimer(ctx)
}

// Reset returns the session to Waiting: round history, ledger and lifecycle
// are cleared, the roster is kept with scores zeroed.
func (s *Session) Reset(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.rounds.Reset(ctx)
	s.scores.Reset()
	for _, p := range s.rounds.Players() {
		p.ResetGameState()
	}
	s.sm.Reset(ctx)
}

// State returns the current lifecycle state.
func (s *Session) State() domain.GameState {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sm.Current()
}

// StateContext returns the context carried by the last transition.
func (s *Session) StateContext() domain.StateContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sm.Context()
}

// Leaderboard derives the current standings from the scoring ledger.
func (s *Session) Leaderboard() []domain.LeaderboardEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.scores.Leaderboard(s.rounds.Players())
}

// ScoreRecords returns the matching ledger entries.
func (s *Session) ScoreRecords(f scoring.RecordFilter) []domain.ScoreRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.scores.ScoreRecords(f)
}

// Progress reports the state of the active round.
func (s *Session) Progress() round.Progress {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rounds.Progress()
}

// RoundHistory returns the finished rounds in order.
func (s *Session) RoundHistory() []domain.RoundInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.rounds.History()
}
