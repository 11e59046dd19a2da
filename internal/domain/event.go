package domain

const (
	EventNameGameStart          = "game.start"
	EventNameGameEnd            = "game.end"
	EventNameGameStateChanged   = "game.state_changed"
	EventNameGameReset          = "game.reset"
	EventNamePlayerJoin         = "player.join"
	EventNamePlayerLeave        = "player.leave"
	EventNameRoundStart         = "round.start"
	EventNameRoundEnd           = "round.end"
	EventNameGuessSubmitted     = "guess.submitted"
	EventNameGuessCorrect       = "guess.correct"
	EventNameGuessIncorrect     = "guess.incorrect"
	EventNameScoreUpdate        = "score.update"
	EventNameLeaderboardUpdated = "leaderboard.updated"
)

type EventGameStart struct {
	GameID      string
	PlayerCount int
}

func (EventGameStart) Name() string { return EventNameGameStart }

type EventGameEnd struct {
	GameID      string
	FinalScores []LeaderboardEntry
}

func (EventGameEnd) Name() string { return EventNameGameEnd }

type EventGameStateChanged struct {
	FromState GameState
	ToState   GameState
	Context   StateContext
}

func (EventGameStateChanged) Name() string { return EventNameGameStateChanged }

type EventGameReset struct {
	FromState GameState
	ToState   GameState
}

func (EventGameReset) Name() string { return EventNameGameReset }

type EventPlayerJoin struct {
	PlayerID   string
	PlayerName string
}

func (EventPlayerJoin) Name() string { return EventNamePlayerJoin }

type EventPlayerLeave struct {
	PlayerID   string
	PlayerName string
}

func (EventPlayerLeave) Name() string { return EventNamePlayerLeave }

type EventRoundStart struct {
	Round            int
	DrawerID         string
	Word             string
	Hint             string
	TimeLimitSeconds int
}

func (EventRoundStart) Name() string { return EventNameRoundStart }

type EventRoundEnd struct {
	Round           int
	DrawerID        string
	Word            string
	CorrectGuessers []string
	DurationSeconds float64
}

func (EventRoundEnd) Name() string { return EventNameRoundEnd }

type EventGuessSubmitted struct {
	PlayerID string
	Guess    string
	Correct  bool
}

func (EventGuessSubmitted) Name() string { return EventNameGuessSubmitted }

type EventGuessCorrect struct {
	PlayerID       string
	Word           string
	ElapsedSeconds float64
}

func (EventGuessCorrect) Name() string { return EventNameGuessCorrect }

type EventGuessIncorrect struct {
	PlayerID string
	Guess    string
}

func (EventGuessIncorrect) Name() string { return EventNameGuessIncorrect }

type EventScoreUpdate struct {
	PlayerID   string
	PlayerName string
	Points     int
	TotalScore int
	Round      int
	Kind       AwardKind
}

func (EventScoreUpdate) Name() string { return EventNameScoreUpdate }

type EventLeaderboardUpdated struct {
	Entries []LeaderboardEntry
}

func (EventLeaderboardUpdated) Name() string { return EventNameLeaderboardUpdated }
