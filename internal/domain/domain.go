package domain

import (
	"strings"
	"time"
)

// PlayerType tells human and AI players apart.
type PlayerType string

const (
	PlayerTypeHuman PlayerType = "human"
	PlayerTypeAI    PlayerType = "ai"
)

// Player is a participant of one game session. Score mirrors the scoring
// ledger total; the ledger keyed by PlayerID stays authoritative. IsDrawing
// and HasGuessed are round-scoped flags owned by the round manager.
type Player struct {
	PlayerID   string
	Name       string
	Type       PlayerType
	Score      int
	IsDrawing  bool
	HasGuessed bool
}

// ResetRoundState clears the round-scoped flags.
func (p *Player) ResetRoundState() {
	p.IsDrawing = false
	p.HasGuessed = false
}

// ResetGameState clears the score and the round-scoped flags.
func (p *Player) ResetGameState() {
	p.Score = 0
	p.ResetRoundState()
}

// Difficulty of a word.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Word is one vocabulary entry. Immutable once loaded into the word bank.
type Word struct {
	Text       string
	Category   string
	Difficulty Difficulty
	Hint       string
	Examples   []string
}

// Masked returns the display form of the word shown to guessers.
func (w Word) Masked() string {
	return strings.Repeat("*", len([]rune(w.Text)))
}

// IsDifficulty reports whether the word has the given difficulty,
// case-insensitively.
func (w Word) IsDifficulty(d Difficulty) bool {
	return strings.EqualFold(string(w.Difficulty), string(d))
}

// IsCategory reports whether the word belongs to the given category,
// case-insensitively.
func (w Word) IsCategory(category string) bool {
	return strings.EqualFold(w.Category, category)
}

// RoundInfo describes one drawer/word cycle. Other structures reference
// players by id only, so flipping a roster player's flags never aliases into
// round history.
type RoundInfo struct {
	Number          int
	Word            Word
	DrawerID        string
	StartTime       time.Time
	EndTime         time.Time // zero until the round ends
	TimeLimit       time.Duration
	CorrectGuessers []string // player ids, ordered, de-duplicated
	Active          bool
}

// HasGuessed reports whether the player already guessed this round's word.
func (r *RoundInfo) HasGuessed(playerID string) bool {
	for _, id := range r.CorrectGuessers {
		if id == playerID {
			return true
		}
	}
	return false
}

// Duration is the wall time the round ran for, zero while still active.
func (r *RoundInfo) Duration() time.Duration {
	if r.EndTime.IsZero() {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// AwardKind labels a score record as a drawer or guesser award.
type AwardKind string

const (
	AwardDrawer  AwardKind = "drawer"
	AwardGuesser AwardKind = "guesser"
)

// ScoreRecord is one append-only ledger entry. Never mutated or deleted
// except on a full scoring reset.
type ScoreRecord struct {
	PlayerID   string
	PlayerName string
	Round      int
	Points     int
	Kind       AwardKind
	Timestamp  time.Time
	Extra      map[string]any
}

// LeaderboardEntry is derived from the scoring ledger on demand; it is not
// independently stored state.
type LeaderboardEntry struct {
	PlayerID       string
	PlayerName     string
	TotalScore     int
	Rank           int
	CorrectGuesses int
	TimesAsDrawer  int
}
