// Package api exposes the game engine over a JSON HTTP surface.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"

	"github.com/playsketch/sketchparty/internal/domain"
	"github.com/playsketch/sketchparty/internal/errors"
	"github.com/playsketch/sketchparty/internal/event"
	"github.com/playsketch/sketchparty/internal/leaderboard"
	"github.com/playsketch/sketchparty/internal/scoring"
	"github.com/playsketch/sketchparty/internal/session"
)

var (
	gamesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "sketchparty_games_started_total",
		Help: "Games started across all sessions.",
	})

	guessesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sketchparty_guesses_total",
		Help: "Guesses submitted, partitioned by outcome.",
	}, []string{"outcome"})
)

type Config struct {
	Router   *gin.Engine
	Sessions *session.Manager

	// Mirror is optional; when nil the leaderboard endpoint serves the
	// in-memory ledger only.
	Mirror *leaderboard.Mirror

	// Redis is the optional pubsub fanout target for leaderboard
	// notifications.
	Redis        Redis
	PubsubPrefix string
}

type Redis interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type API struct {
	sessions *session.Manager
	mirror   *leaderboard.Mirror

	redis  Redis
	prefix string
}

func New(c Config) *API {
	a := &API{
		sessions: c.Sessions,
		mirror:   c.Mirror,
		redis:    c.Redis,
		prefix:   c.PubsubPrefix,
	}

	v1 := c.Router.Group("/v1")
	{
		v1.POST("/sessions", a.createSession)
		v1.GET("/sessions/:id", a.getSession)
		v1.DELETE("/sessions/:id", a.deleteSession)

		v1.POST("/sessions/:id/players", a.addPlayer)
		v1.DELETE("/sessions/:id/players/:playerID", a.removePlayer)

		v1.POST("/sessions/:id/start", a.startGame)
		v1.POST("/sessions/:id/end", a.endGame)
		v1.POST("/sessions/:id/reset", a.resetGame)

		v1.POST("/sessions/:id/rounds", a.startNextRound)
		v1.POST("/sessions/:id/rounds/end", a.endRound)
		v1.POST("/sessions/:id/guessing", a.beginGuessing)
		v1.POST("/sessions/:id/guesses", a.submitGuess)

		v1.GET("/sessions/:id/leaderboard", a.getLeaderboard)
		v1.GET("/sessions/:id/scores", a.getScores)
	}

	return a
}

func abortWithError(c *gin.Context, err error) {
	e := errors.Convert(err)
	c.AbortWithStatusJSON(e.HTTPStatusCode(), gin.H{"error": e})
}

func (a *API) lookup(c *gin.Context) (*session.Session, bool) {
	s, err := a.sessions.Get(c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return nil, false
	}
	return s, true
}

func (a *API) createSession(c *gin.Context) {
	s := a.sessions.Create()

	// Leaderboard notifications of this session fan out to Redis pubsub.
	if a.redis != nil {
		sessionID := s.ID()
		s.Bus().Subscribe(domain.EventNameLeaderboardUpdated, func(ctx context.Context, e event.Event) error {
			return a.publishLeaderboardUpdated(ctx, sessionID, e.Payload.(domain.EventLeaderboardUpdated))
		})
	}

	c.JSON(http.StatusCreated, gin.H{
		"session_id": s.ID(),
		"created_at": s.CreatedAt(),
	})
}

func (a *API) getSession(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": s.ID(),
		"state":      s.State(),
		"context":    s.StateContext(),
		"players":    playersView(s.Players()),
		"progress":   s.Progress(),
	})
}

func (a *API) deleteSession(c *gin.Context) {
	id := c.Param("id")
	if !a.sessions.Remove(id) {
		abortWithError(c, errors.New(errors.CodeNotFound, errors.WithMessagef("session not found: %s", id)))
		return
	}

	if a.mirror != nil {
		if err := a.mirror.Delete(c.Request.Context(), id); err != nil {
			abortWithError(c, err)
			return
		}
	}

	c.Status(http.StatusNoContent)
}

type addPlayerRequest struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name" binding:"required"`
	Type     string `json:"type"`
}

func (a *API) addPlayer(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}

	var req addPlayerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	p, err := s.AddPlayer(c.Request.Context(), req.PlayerID, req.Name, domain.PlayerType(req.Type))
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, playerView(p))
}

func (a *API) removePlayer(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}

	if err := s.RemovePlayer(c.Request.Context(), c.Param("playerID")); err != nil {
		abortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (a *API) startGame(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}

	if err := s.StartGame(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}

	gamesStarted.Inc()
	c.JSON(http.StatusOK, gin.H{"state": s.State(), "progress": s.Progress()})
}

func (a *API) endGame(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}

	if err := s.EndGame(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": s.State(), "leaderboard": s.Leaderboard()})
}

func (a *API) resetGame(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}

	s.Reset(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{"state": s.State()})
}

func (a *API) startNextRound(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}

	if err := s.StartNextRound(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": s.State(), "progress": s.Progress()})
}

func (a *API) endRound(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}

	if err := s.EndRound(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": s.State(), "leaderboard": s.Leaderboard()})
}

func (a *API) beginGuessing(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}

	if err := s.BeginGuessing(c.Request.Context()); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"state": s.State()})
}

type submitGuessRequest struct {
	PlayerID string `json:"player_id" binding:"required"`
	Guess    string `json:"guess" binding:"required"`
}

func (a *API) submitGuess(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}

	var req submitGuessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, errors.New(errors.CodeInvalidArgument, errors.WithCause(err)))
		return
	}

	correct, err := s.SubmitGuess(c.Request.Context(), req.PlayerID, req.Guess)
	if err != nil {
		abortWithError(c, err)
		return
	}

	outcome := "incorrect"
	if correct {
		outcome = "correct"
	}
	guessesSubmitted.WithLabelValues(outcome).Inc()

	c.JSON(http.StatusOK, gin.H{"correct": correct})
}

func (a *API) getLeaderboard(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": s.ID(),
		"entries":    s.Leaderboard(),
	})
}

func (a *API) getScores(c *gin.Context) {
	s, ok := a.lookup(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"session_id": s.ID(),
		"records":    s.ScoreRecords(scoring.RecordFilter{PlayerID: c.Query("player_id")}),
	})
}

type playerJSON struct {
	PlayerID   string `json:"player_id"`
	Name       string `json:"name"`
	Type       string `json:"type"`
	Score      int    `json:"score"`
	IsDrawing  bool   `json:"is_drawing"`
	HasGuessed bool   `json:"has_guessed"`
}

func playerView(p *domain.Player) playerJSON {
	return playerJSON{
		PlayerID:   p.PlayerID,
		Name:       p.Name,
		Type:       string(p.Type),
		Score:      p.Score,
		IsDrawing:  p.IsDrawing,
		HasGuessed: p.HasGuessed,
	}
}

func playersView(ps []*domain.Player) []playerJSON {
	out := make([]playerJSON, 0, len(ps))
	for _, p := range ps {
		out = append(out, playerView(p))
	}
	return out
}
