// Package scoring is the authoritative, append-only point ledger and
// leaderboard derivation. It reacts to round lifecycle events; the session
// orchestrator decides when points are awarded.
package scoring

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playsketch/sketchparty/internal/domain"
	"github.com/playsketch/sketchparty/internal/event"
)

// Config wires an Engine. Zero score parameters fall back to the defaults.
type Config struct {
	EventBus *event.Bus

	// DrawerBase is awarded to the drawer when at least one player guessed.
	DrawerBase int
	// GuesserBase is the flat award for a correct guess.
	GuesserBase int
	// TimeBonusFactor converts remaining seconds into bonus points.
	TimeBonusFactor float64
	// SpeedBonusThreshold is the fraction of the time limit under which the
	// flat speed bonus applies.
	SpeedBonusThreshold float64
	// SpeedBonusPoints is the flat award for a fast guess.
	SpeedBonusPoints int

	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Engine accumulates score records and derives the leaderboard.
type Engine struct {
	eb *event.Bus

	drawerBase          int
	guesserBase         int
	timeBonusFactor     decimal.Decimal
	speedBonusThreshold decimal.Decimal
	speedBonusPoints    int

	records []domain.ScoreRecord
	totals  map[string]int
	stats   map[string]*playerStats

	now func() time.Time
}

type playerStats struct {
	correctGuesses int
	timesAsDrawer  int
}

// NewEngine creates a scoring engine and subscribes it to GUESS_CORRECT and
// ROUND_END on the given bus.
func NewEngine(c Config) *Engine {
	if c.DrawerBase == 0 {
		c.DrawerBase = 20
	}
	if c.GuesserBase == 0 {
		c.GuesserBase = 30
	}
	if c.TimeBonusFactor == 0 {
		c.TimeBonusFactor = 1
	}
	if c.SpeedBonusThreshold == 0 {
		c.SpeedBonusThreshold = 0.33
	}
	if c.SpeedBonusPoints == 0 {
		c.SpeedBonusPoints = 10
	}
	if c.Now == nil {
		c.Now = time.Now
	}

	e := &Engine{
		eb:                  c.EventBus,
		drawerBase:          c.DrawerBase,
		guesserBase:         c.GuesserBase,
		timeBonusFactor:     decimal.NewFromFloat(c.TimeBonusFactor),
		speedBonusThreshold: decimal.NewFromFloat(c.SpeedBonusThreshold),
		speedBonusPoints:    c.SpeedBonusPoints,
		totals:              make(map[string]int),
		stats:               make(map[string]*playerStats),
		now:                 c.Now,
	}

	e.eb.Subscribe(domain.EventNameGuessCorrect, func(ctx context.Context, ev event.Event) error {
		p := ev.Payload.(domain.EventGuessCorrect)
		// Informational only: awards are driven by explicit AddScore calls.
		slog.DebugContext(ctx, "scoring: correct guess observed",
			"player", p.PlayerID,
			"elapsed", p.ElapsedSeconds,
		)
		return nil
	})

	e.eb.Subscribe(domain.EventNameRoundEnd, func(ctx context.Context, ev event.Event) error {
		return e.onRoundEnd(ctx)
	})

	return e
}

func (e *Engine) onRoundEnd(ctx context.Context) error {
	e.eb.Publish(ctx, domain.EventLeaderboardUpdated{
		Entries: e.Leaderboard(nil),
	})
	return nil
}

// CalculateDrawerScore returns the drawer award: the base amount when at
// least one guesser succeeded, zero otherwise.
func (e *Engine) CalculateDrawerScore(anyCorrectGuesses bool) int {
	if anyCorrectGuesses {
		return e.drawerBase
	}
	return 0
}

// CalculateGuesserScore returns base + round((limit-elapsed)*factor),
// clamped at zero, plus the flat speed bonus when the guess landed within
// the configured early fraction of the time limit.
func (e *Engine) CalculateGuesserScore(elapsedSeconds float64, timeLimitSeconds int) int {
	score := e.guesserBase

	limit := decimal.NewFromInt(int64(timeLimitSeconds))
	elapsed := decimal.NewFromFloat(elapsedSeconds)

	bonus := limit.Sub(elapsed).Mul(e.timeBonusFactor).Round(0)
	if bonus.Sign() > 0 {
		score += int(bonus.IntPart())
	}

	if elapsed.LessThanOrEqual(limit.Mul(e.speedBonusThreshold)) {
		score += e.speedBonusPoints
	}

	return score
}

// AddScore appends a record to the ledger, updates the player's running
// total and per-kind counters, and publishes SCORE_UPDATE. The points value
// is taken as given; the engine does not recompute or validate it.
func (e *Engine) AddScore(ctx context.Context, player domain.Player, points, roundNumber int, kind domain.AwardKind, extra map[string]any) {
	e.records = append(e.records, domain.ScoreRecord{
		PlayerID:   player.PlayerID,
		PlayerName: player.Name,
		Round:      roundNumber,
		Points:     points,
		Kind:       kind,
		Timestamp:  e.now(),
		Extra:      extra,
	})

	e.totals[player.PlayerID] += points

	st := e.stats[player.PlayerID]
	if st == nil {
		st = &playerStats{}
		e.stats[player.PlayerID] = st
	}
	switch kind {
	case domain.AwardGuesser:
		st.correctGuesses++
	case domain.AwardDrawer:
		st.timesAsDrawer++
	}

	e.eb.Publish(ctx, domain.EventScoreUpdate{
		PlayerID:   player.PlayerID,
		PlayerName: player.Name,
		Points:     points,
		TotalScore: e.totals[player.PlayerID],
		Round:      roundNumber,
		Kind:       kind,
	})

	slog.InfoContext(ctx, "scoring: points awarded",
		"player", player.PlayerID,
		"round", roundNumber,
		"points", points,
		"total", e.totals[player.PlayerID],
	)
}

// PlayerScore returns the running total for a player id, zero when unknown.
func (e *Engine) PlayerScore(playerID string) int {
	return e.totals[playerID]
}

// PlayerScores returns a copy of every running total keyed by player id.
func (e *Engine) PlayerScores() map[string]int {
	out := make(map[string]int, len(e.totals))
	for id, total := range e.totals {
		out[id] = total
	}
	return out
}

// RecordFilter narrows ScoreRecords; zero values match everything.
type RecordFilter struct {
	PlayerID string
	Round    int
}

// ScoreRecords returns the matching slice of the append-only log.
func (e *Engine) ScoreRecords(f RecordFilter) []domain.ScoreRecord {
	var out []domain.ScoreRecord
	for _, r := range e.records {
		if f.PlayerID != "" && r.PlayerID != f.PlayerID {
			continue
		}
		if f.Round != 0 && r.Round != f.Round {
			continue
		}
		out = append(out, r)
	}
	return out
}

// Leaderboard derives ranked entries from the ledger. Roster players are
// always included, so zero-score players still appear; names resolve from
// the roster when available. Sorting is stable: ties keep first-seen order.
func (e *Engine) Leaderboard(roster []*domain.Player) []domain.LeaderboardEntry {
	names := make(map[string]string, len(roster))
	var order []string
	seen := make(map[string]struct{})

	add := func(id string) {
		if _, ok := seen[id]; ok {
			return
		}
		seen[id] = struct{}{}
		order = append(order, id)
	}

	for _, r := range e.records {
		add(r.PlayerID)
		if names[r.PlayerID] == "" {
			names[r.PlayerID] = r.PlayerName
		}
	}
	for _, p := range roster {
		add(p.PlayerID)
		names[p.PlayerID] = p.Name
	}

	entries := make([]domain.LeaderboardEntry, 0, len(order))
	for _, id := range order {
		name := names[id]
		if name == "" {
			name = "player-" + id
		}

		entry := domain.LeaderboardEntry{
			PlayerID:   id,
			PlayerName: name,
			TotalScore: e.totals[id],
		}
		if st := e.stats[id]; st != nil {
			entry.CorrectGuesses = st.correctGuesses
			entry.TimesAsDrawer = st.timesAsDrawer
		}
		entries = append(entries, entry)
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].TotalScore > entries[j].TotalScore
	})
	for i := range entries {
		entries[i].Rank = i + 1
	}

	return entries
}

// Reset clears the ledger, the records and the per-kind counters.
func (e *Engine) Reset() {
	e.records = nil
	e.totals = make(map[string]int)
	e.stats = make(map[string]*playerStats)

	slog.Info("scoring: reset")
}
