// Package server wires the engine, its infrastructure and the HTTP surface
// into one process.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/pprof"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/playsketch/sketchparty/internal/api"
	"github.com/playsketch/sketchparty/internal/archive"
	"github.com/playsketch/sketchparty/internal/leaderboard"
	"github.com/playsketch/sketchparty/internal/session"
	"github.com/playsketch/sketchparty/internal/telemetry"
	"github.com/playsketch/sketchparty/internal/wordbank"
)

type Config struct {
	HTTP struct {
		Port int32
	}

	Game struct {
		WordsFile           string
		MaxRounds           int
		TimeLimitSeconds    int
		DrawerBaseScore     int
		GuesserBaseScore    int
		TimeBonusFactor     float64
		SpeedBonusThreshold float64
		SpeedBonusPoints    int
	}

	// Redis blocks are optional; leave Addrs empty to run without the
	// leaderboard mirror or the pubsub fanout.
	Redis struct {
		Leaderboard struct {
			Addrs  []string
			Pass   string
			Prefix string
		}

		Pubsub struct {
			Addrs  []string
			Pass   string
			Prefix string
		}
	}

	// Postgres is optional; leave Addr empty to run without the score
	// archive.
	Postgres struct {
		Score struct {
			Addr string
			User string
			Pass string
			Name string
		}
	}
}

func (c Config) validate() error {
	if c.Game.WordsFile == "" {
		return fmt.Errorf("game.wordsfile is required")
	}

	positive := map[string]float64{
		"game.maxrounds":           float64(c.Game.MaxRounds),
		"game.timelimitseconds":    float64(c.Game.TimeLimitSeconds),
		"game.drawerbasescore":     float64(c.Game.DrawerBaseScore),
		"game.guesserbasescore":    float64(c.Game.GuesserBaseScore),
		"game.timebonusfactor":     c.Game.TimeBonusFactor,
		"game.speedbonusthreshold": c.Game.SpeedBonusThreshold,
		"game.speedbonuspoints":    float64(c.Game.SpeedBonusPoints),
	}
	for key, v := range positive {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", key)
		}
	}

	return nil
}

// tickInterval is the cadence of the round countdown driver.
const tickInterval = time.Second

type Server struct {
	c Config

	infra struct {
		redis struct {
			leaderboard redis.UniversalClient
			pubsub      redis.UniversalClient
		}

		postgres struct {
			score *pgxpool.Pool
		}
	}

	service struct {
		sessions *session.Manager
		mirror   *leaderboard.Mirror
		archive  *archive.Archive
	}

	http *http.Server
	stop chan struct{}
}

func Init(c Config) (*Server, error) {
	if err := c.validate(); err != nil {
		return nil, fmt.Errorf("server: config: %w", err)
	}

	s := &Server{c: c, stop: make(chan struct{})}

	if err := s.initInfra(); err != nil {
		return nil, fmt.Errorf("server: init infra: %w", err)
	}

	if err := s.initService(); err != nil {
		return nil, fmt.Errorf("server: init service: %w", err)
	}

	s.initAPI()
	return s, nil
}

func (s *Server) initInfra() error {
	if err := s.initRedis(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}

	if err := s.initPostgres(); err != nil {
		return fmt.Errorf("postgres: %w", err)
	}

	return nil
}

func (s *Server) initRedis() error {
	connect := func(addrs []string, pass string) (redis.UniversalClient, error) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		r := redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    addrs,
			Password: pass,
		})

		if err := telemetry.MonitorRedis(r); err != nil {
			return nil, err
		}

		if err := r.Ping(ctx).Err(); err != nil {
			return nil, err
		}

		return r, nil
	}

	var err error
	if len(s.c.Redis.Leaderboard.Addrs) > 0 {
		s.infra.redis.leaderboard, err = connect(s.c.Redis.Leaderboard.Addrs, s.c.Redis.Leaderboard.Pass)
		if err != nil {
			return fmt.Errorf("leaderboard: %w", err)
		}
	}

	if len(s.c.Redis.Pubsub.Addrs) > 0 {
		s.infra.redis.pubsub, err = connect(s.c.Redis.Pubsub.Addrs, s.c.Redis.Pubsub.Pass)
		if err != nil {
			return fmt.Errorf("pubsub: %w", err)
		}
	}

	return nil
}

func (s *Server) initPostgres() error {
	pc := s.c.Postgres.Score
	if pc.Addr == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cc, err := pgxpool.ParseConfig(fmt.Sprintf("postgres://%s:%s@%s/%s", pc.User, pc.Pass, pc.Addr, pc.Name))
	if err != nil {
		return err
	}

	db, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return err
	}

	if err := db.Ping(ctx); err != nil {
		return err
	}

	s.infra.postgres.score = db
	return nil
}

func (s *Server) initService() error {
	bank, err := wordbank.Load(s.c.Game.WordsFile)
	if err != nil {
		return fmt.Errorf("wordbank: %w", err)
	}

	var attach []session.AttachFunc

	if s.infra.redis.leaderboard != nil {
		s.service.mirror = leaderboard.NewMirror(leaderboard.Config{
			Redis:  s.infra.redis.leaderboard,
			Prefix: s.c.Redis.Leaderboard.Prefix,
		})
		attach = append(attach, s.service.mirror.Attach())
	}

	if s.infra.postgres.score != nil {
		s.service.archive = archive.NewArchive(archive.Config{
			DB: s.infra.postgres.score,
		})
		attach = append(attach, s.service.archive.Attach())
	}

	s.service.sessions = session.NewManager(session.Config{
		Words:               bank,
		MaxRounds:           s.c.Game.MaxRounds,
		TimeLimit:           time.Duration(s.c.Game.TimeLimitSeconds) * time.Second,
		DrawerBaseScore:     s.c.Game.DrawerBaseScore,
		GuesserBaseScore:    s.c.Game.GuesserBaseScore,
		TimeBonusFactor:     s.c.Game.TimeBonusFactor,
		SpeedBonusThreshold: s.c.Game.SpeedBonusThreshold,
		SpeedBonusPoints:    s.c.Game.SpeedBonusPoints,
	}, attach...)

	return nil
}

func (s *Server) initAPI() {
	e := gin.New()
	e.GET("/metrics", gin.WrapH(promhttp.Handler()))
	pprof.Register(e, "/debug/pprof")
	e.Use(gin.Recovery())

	api.New(api.Config{
		Router:       e,
		Sessions:     s.service.sessions,
		Mirror:       s.service.mirror,
		Redis:        pubsubOrNil(s.infra.redis.pubsub),
		PubsubPrefix: s.c.Redis.Pubsub.Prefix,
	})

	s.http = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.c.HTTP.Port),
		Handler:           e,
		ReadHeaderTimeout: 60 * time.Second,
	}
}

// pubsubOrNil keeps the api.Redis interface nil when no client is
// configured; a typed nil would defeat the api's nil check.
func pubsubOrNil(c redis.UniversalClient) api.Redis {
	if c == nil {
		return nil
	}
	return c
}

func (s *Server) Start() {
	ctx := context.TODO()

	var eg errgroup.Group
	eg.Go(func() error {
		slog.InfoContext(ctx, fmt.Sprintf("server: HTTP listening on port %d", s.c.HTTP.Port))
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	eg.Go(func() error {
		s.runTicker(ctx)
		return nil
	})

	if err := eg.Wait(); err != nil {
		slog.ErrorContext(ctx, "server: shutdown with error", "error", err)
	}
}

// runTicker drives every session's round countdown until shutdown.
func (s *Server) runTicker(ctx context.Context) {
	t := time.NewTicker(tickInterval)
	defer t.Stop()

	for {
		select {
		case <-s.stop:
			return
		case <-t.C:
			for _, ss := range s.service.sessions.List() {
				ss.Tick(ctx)
			}
		}
	}
}

func (s *Server) Shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	close(s.stop)

	if err := s.http.Shutdown(ctx); err != nil {
		slog.ErrorContext(ctx, "server: shutdown HTTP failed", "error", err)
	}

	if s.infra.postgres.score != nil {
		s.infra.postgres.score.Close()
	}

	slog.InfoContext(ctx, "server: shutdown completed")
}
