package domain

// GameState is one of the five lifecycle states of a game session.
type GameState string

const (
	StateWaiting  GameState = "waiting"
	StateDrawing  GameState = "drawing"
	StateGuessing GameState = "guessing"
	StateScoring  GameState = "scoring"
	StateGameOver GameState = "game_over"
)

// StateContext travels with each state transition. It is replaced wholesale
// on every transition, never merged.
type StateContext struct {
	CurrentRound int
	TotalRounds  int
	DrawerID     string
	Word         string // masked form, safe for guessers
	Extra        map[string]any
}
