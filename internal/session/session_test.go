package session_test

import (
	"context"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/playsketch/sketchparty/internal/domain"
	"github.com/playsketch/sketchparty/internal/errors"
	"github.com/playsketch/sketchparty/internal/event"
	"github.com/playsketch/sketchparty/internal/scoring"
	"github.com/playsketch/sketchparty/internal/session"
	"github.com/playsketch/sketchparty/internal/wordbank"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time          { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newSession(t *testing.T) (*session.Session, *fakeClock) {
	t.Helper()

	bank := wordbank.NewBank([]domain.Word{
		{Text: "cat", Category: "animal", Difficulty: domain.DifficultyEasy, Hint: "a pet"},
		{Text: "dog", Category: "animal", Difficulty: domain.DifficultyEasy, Hint: "a pet"},
		{Text: "pizza", Category: "food", Difficulty: domain.DifficultyMedium, Hint: "italian dish"},
	}, wordbank.WithRand(rand.New(rand.NewSource(99))))

	clock := &fakeClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}

	s := session.NewSession(session.Config{
		Words:     bank,
		MaxRounds: 2,
		TimeLimit: 90 * time.Second,
		Now:       clock.Now,
	})
	return s, clock
}

func addPlayers(t *testing.T, s *session.Session) (alice, bob *domain.Player) {
	t.Helper()

	alice, err := s.AddPlayer(context.Background(), "alice", "Alice", domain.PlayerTypeHuman)
	require.NoError(t, err)
	bob, err = s.AddPlayer(context.Background(), "bob", "Bob", domain.PlayerTypeAI)
	require.NoError(t, err)
	return alice, bob
}

func TestSession_AddPlayer(t *testing.T) {
	t.Parallel()

	s, _ := newSession(t)

	var joins []domain.EventPlayerJoin
	s.Bus().Subscribe(domain.EventNamePlayerJoin, func(ctx context.Context, e event.Event) error {
		joins = append(joins, e.Payload.(domain.EventPlayerJoin))
		return nil
	})

	p, err := s.AddPlayer(context.Background(), "", "Alice", "")
	require.NoError(t, err)
	assert.NotEmpty(t, p.PlayerID, "empty id is generated")
	assert.Equal(t, domain.PlayerTypeHuman, p.Type, "type defaults to human")
	require.Len(t, joins, 1)
	assert.Equal(t, "Alice", joins[0].PlayerName)

	_, err = s.AddPlayer(context.Background(), p.PlayerID, "Alice again", domain.PlayerTypeHuman)
	require.Error(t, err)
	assert.Equal(t, errors.CodeAlreadyExists, errors.Convert(err).Code)

	_, err = s.AddPlayer(context.Background(), "x", "", domain.PlayerTypeHuman)
	require.Error(t, err)
	assert.Equal(t, errors.CodeInvalidArgument, errors.Convert(err).Code)
}

func TestSession_RemovePlayer(t *testing.T) {
	t.Parallel()

	s, _ := newSession(t)
	addPlayers(t, s)

	var leaves []domain.EventPlayerLeave
	s.Bus().Subscribe(domain.EventNamePlayerLeave, func(ctx context.Context, e event.Event) error {
		leaves = append(leaves, e.Payload.(domain.EventPlayerLeave))
		return nil
	})

	require.NoError(t, s.RemovePlayer(context.Background(), "bob"))
	require.Len(t, leaves, 1)
	assert.Equal(t, "bob", leaves[0].PlayerID)

	err := s.RemovePlayer(context.Background(), "bob")
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)
}

func TestSession_StartGamePreconditions(t *testing.T) {
	t.Parallel()

	s, _ := newSession(t)

	err := s.StartGame(context.Background())
	require.Error(t, err, "no players")
	assert.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)

	addPlayers(t, s)
	require.NoError(t, s.StartGame(context.Background()))
	assert.Equal(t, domain.StateDrawing, s.State())

	err = s.StartGame(context.Background())
	require.Error(t, err, "game already running")
	assert.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)
}

// Exercises the full scripted game: Alice draws, Bob guesses, scores land in
// the ledger and the leaderboard ranks Bob first.
func TestSession_FullRound(t *testing.T) {
	t.Parallel()

	s, clock := newSession(t)
	alice, bob := addPlayers(t, s)

	var started []domain.EventRoundStart
	var correct []domain.EventGuessCorrect
	s.Bus().Subscribe(domain.EventNameRoundStart, func(ctx context.Context, e event.Event) error {
		started = append(started, e.Payload.(domain.EventRoundStart))
		return nil
	})
	s.Bus().Subscribe(domain.EventNameGuessCorrect, func(ctx context.Context, e event.Event) error {
		correct = append(correct, e.Payload.(domain.EventGuessCorrect))
		return nil
	})

	require.NoError(t, s.StartGame(context.Background()))

	require.Len(t, started, 1)
	assert.Equal(t, "alice", started[0].DrawerID, "round 1 drawer is roster index 0")
	assert.True(t, alice.IsDrawing)
	assert.Equal(t, domain.StateDrawing, s.State())

	word := started[0].Word

	// Drawer exclusion surfaces as a precondition error.
	_, err := s.SubmitGuess(context.Background(), "alice", word)
	require.Error(t, err)
	assert.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)

	clock.Advance(10 * time.Second)
	ok, err := s.SubmitGuess(context.Background(), "bob", word)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, correct, 1)
	assert.Equal(t, "bob", correct[0].PlayerID)

	// 30 base + 80 time bonus + 10 speed bonus, mirrored onto the player.
	assert.Equal(t, 120, bob.Score)

	require.NoError(t, s.EndRound(context.Background()))
	assert.Equal(t, domain.StateScoring, s.State())
	assert.Len(t, s.RoundHistory(), 1)

	// Drawer award lands on round end.
	assert.Equal(t, 20, alice.Score)

	lb := s.Leaderboard()
	require.Len(t, lb, 2)
	assert.Equal(t, "bob", lb[0].PlayerID)
	assert.Equal(t, 120, lb[0].TotalScore)
	assert.Equal(t, "alice", lb[1].PlayerID)
	assert.Equal(t, 20, lb[1].TotalScore)

	// Ledger totals equal the sum of each player's records.
	totals := map[string]int{}
	for _, e := range lb {
		totals[e.PlayerID] = e.TotalScore
	}
	for _, id := range []string{"alice", "bob"} {
		var sum int
		for _, r := range s.ScoreRecords(scoring.RecordFilter{PlayerID: id}) {
			sum += r.Points
		}
		assert.Equal(t, totals[id], sum, "ledger mismatch for %s", id)
	}
}

func TestSession_GameOverAfterMaxRounds(t *testing.T) {
	t.Parallel()

	s, _ := newSession(t)
	addPlayers(t, s)

	var ended []domain.EventGameEnd
	s.Bus().Subscribe(domain.EventNameGameEnd, func(ctx context.Context, e event.Event) error {
		ended = append(ended, e.Payload.(domain.EventGameEnd))
		return nil
	})

	require.NoError(t, s.StartGame(context.Background()))
	require.NoError(t, s.EndRound(context.Background()))
	assert.Equal(t, domain.StateScoring, s.State())

	require.NoError(t, s.StartNextRound(context.Background()))
	assert.Equal(t, domain.StateDrawing, s.State())
	require.NoError(t, s.EndRound(context.Background()))

	// MaxRounds is 2, so ending round 2 finishes the game.
	assert.Equal(t, domain.StateGameOver, s.State())
	require.Len(t, ended, 1)
	assert.Equal(t, s.ID(), ended[0].GameID)
	assert.Len(t, ended[0].FinalScores, 2)

	err := s.StartNextRound(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.CodeFailedPrecondition, errors.Convert(err).Code)
}

func TestSession_EndGameEarly(t *testing.T) {
	t.Parallel()

	s, _ := newSession(t)
	addPlayers(t, s)

	err := s.EndGame(context.Background())
	require.Error(t, err, "nothing to end in Waiting")

	require.NoError(t, s.StartGame(context.Background()))

	var ended []domain.EventGameEnd
	s.Bus().Subscribe(domain.EventNameGameEnd, func(ctx context.Context, e event.Event) error {
		ended = append(ended, e.Payload.(domain.EventGameEnd))
		return nil
	})

	require.NoError(t, s.EndGame(context.Background()))
	assert.Equal(t, domain.StateGameOver, s.State())
	require.Len(t, ended, 1)
	assert.Len(t, s.RoundHistory(), 1, "the active round was closed")
}

func TestSession_BeginGuessing(t *testing.T) {
	t.Parallel()

	s, _ := newSession(t)
	addPlayers(t, s)

	err := s.BeginGuessing(context.Background())
	require.Error(t, err, "not drawing yet")

	require.NoError(t, s.StartGame(context.Background()))
	require.NoError(t, s.BeginGuessing(context.Background()))
	assert.Equal(t, domain.StateGuessing, s.State())

	// Guessing is still adjudicated while in the Guessing state.
	started := s.Progress()
	assert.NotEmpty(t, started.DrawerID)
}

func TestSession_TickEndsExpiredRound(t *testing.T) {
	t.Parallel()

	s, clock := newSession(t)
	addPlayers(t, s)
	require.NoError(t, s.StartGame(context.Background()))

	clock.Advance(30 * time.Second)
	s.Tick(context.Background())
	assert.Equal(t, domain.StateDrawing, s.State())
	assert.Equal(t, 60, s.Progress().RemainingSeconds)

	clock.Advance(61 * time.Second)
	s.Tick(context.Background())

	assert.Len(t, s.RoundHistory(), 1)
	assert.Equal(t, domain.StateScoring, s.State(), "timeout walks the lifecycle forward")
}

func TestSession_DrawerScoredOnlyWhenGuessed(t *testing.T) {
	t.Parallel()

	s, _ := newSession(t)
	alice, _ := addPlayers(t, s)

	require.NoError(t, s.StartGame(context.Background()))
	require.NoError(t, s.EndRound(context.Background()))

	assert.Zero(t, alice.Score, "no correct guesses, no drawer award")
	assert.Empty(t, s.ScoreRecords(scoring.RecordFilter{}))
}

func TestSession_ResetKeepsRoster(t *testing.T) {
	t.Parallel()

	s, _ := newSession(t)
	alice, bob := addPlayers(t, s)

	require.NoError(t, s.StartGame(context.Background()))
	_, err := s.SubmitGuess(context.Background(), "bob", "whatever")
	require.NoError(t, err)

	s.Reset(context.Background())

	assert.Equal(t, domain.StateWaiting, s.State())
	assert.Len(t, s.Players(), 2)
	assert.Empty(t, s.RoundHistory())
	assert.Zero(t, alice.Score)
	assert.Zero(t, bob.Score)
	assert.Empty(t, s.ScoreRecords(scoring.RecordFilter{}))

	// A fresh game starts cleanly after the reset.
	require.NoError(t, s.StartGame(context.Background()))
	assert.Equal(t, domain.StateDrawing, s.State())
}

func TestManager(t *testing.T) {
	t.Parallel()

	bank := wordbank.NewBank([]domain.Word{
		{Text: "cat", Category: "animal", Difficulty: domain.DifficultyEasy, Hint: "a pet"},
		{Text: "dog", Category: "animal", Difficulty: domain.DifficultyEasy, Hint: "a pet"},
	})

	var attached []string
	m := session.NewManager(session.Config{Words: bank}, func(s *session.Session) {
		attached = append(attached, s.ID())
	})

	s := m.Create()
	require.Len(t, attached, 1)
	assert.Equal(t, s.ID(), attached[0])
	assert.Equal(t, 1, m.Len())

	got, err := m.Get(s.ID())
	require.NoError(t, err)
	assert.Same(t, s, got)

	_, err = m.Get("missing")
	require.Error(t, err)
	assert.Equal(t, errors.CodeNotFound, errors.Convert(err).Code)

	assert.True(t, m.Remove(s.ID()))
	assert.False(t, m.Remove(s.ID()))
	assert.Equal(t, 0, m.Len())
}
