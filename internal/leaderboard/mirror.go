// Package leaderboard mirrors each session's scores into a Redis sorted set
// so other processes can read standings without holding the session lock.
// The scoring ledger stays authoritative; the mirror is best effort.
package leaderboard

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/playsketch/sketchparty/internal/domain"
	"github.com/playsketch/sketchparty/internal/errors"
	"github.com/playsketch/sketchparty/internal/event"
	"github.com/playsketch/sketchparty/internal/session"
)

// publishInterval throttles LEADERBOARD_UPDATED notifications: score bursts
// within one interval collapse into a single publish.
const publishInterval = 200 * time.Millisecond

type Config struct {
	Redis  redis.UniversalClient
	Prefix string
}

// Mirror replicates session scores into Redis.
type Mirror struct {
	redis  redis.UniversalClient
	prefix string

	names map[string]map[string]string // session id -> player id -> name
}

func NewMirror(c Config) *Mirror {
	if c.Prefix == "" {
		c.Prefix = "sketchparty"
	}

	return &Mirror{
		redis:  c.Redis,
		prefix: c.Prefix,
		names:  make(map[string]map[string]string),
	}
}

// Attach returns the hook a session manager calls for every new session.
func (m *Mirror) Attach() session.AttachFunc {
	return func(s *session.Session) {
		m.Watch(s.ID(), s.Bus())
	}
}

// Watch subscribes the mirror to one session's bus. Must be called before
// the session is in use; bus registration is not concurrency safe.
func (m *Mirror) Watch(sessionID string, eb *event.Bus) {
	m.names[sessionID] = make(map[string]string)

	eb.Subscribe(domain.EventNameScoreUpdate, func(ctx context.Context, e event.Event) error {
		return m.update(ctx, eb, sessionID, e.Payload.(domain.EventScoreUpdate))
	})
}

// update overwrites the player's score in the session's sorted set and
// schedules a throttled notification.
func (m *Mirror) update(ctx context.Context, eb *event.Bus, sessionID string, p domain.EventScoreUpdate) error {
	if p.PlayerName != "" {
		m.names[sessionID][p.PlayerID] = p.PlayerName
	}

	// TODO: retry on transient redis errors
	if err := m.redis.ZAdd(ctx, m.leaderboardKey(sessionID), redis.Z{
		Score:  float64(p.TotalScore),
		Member: p.PlayerID,
	}).Err(); err != nil {
		return fmt.Errorf("mirror score: %w", err)
	}

	return m.schedulePublish(ctx, eb, sessionID)
}

// schedulePublish publishes the mirrored leaderboard unless another update
// already did within the publish interval. SetNX keeps multiple mirror
// instances from all publishing at once.
func (m *Mirror) schedulePublish(ctx context.Context, eb *event.Bus, sessionID string) error {
	ok, err := m.redis.SetNX(ctx, m.timeKey(sessionID), time.Now().UnixMilli(), publishInterval).Result()
	if err != nil {
		return fmt.Errorf("setnx: %w", err)
	}
	if !ok {
		return nil
	}

	entries, err := m.GetLeaderboard(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("read back leaderboard: session=%s: %w", sessionID, err)
	}

	eb.Publish(ctx, domain.EventLeaderboardUpdated{Entries: entries})
	return nil
}

// GetLeaderboard reads the mirrored standings for a session, ranked by
// descending score.
func (m *Mirror) GetLeaderboard(ctx context.Context, sessionID string) ([]domain.LeaderboardEntry, error) {
	res, err := m.redis.ZRevRangeWithScores(ctx, m.leaderboardKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("get leaderboard: %w", err)
	}

	if len(res) == 0 {
		return nil, errors.New(errors.CodeNotFound, errors.WithMessagef("leaderboard not found: session=%s", sessionID))
	}

	entries := make([]domain.LeaderboardEntry, 0, len(res))
	for i, z := range res {
		id := z.Member.(string)
		entries = append(entries, domain.LeaderboardEntry{
			PlayerID:   id,
			PlayerName: m.names[sessionID][id],
			TotalScore: int(z.Score),
			Rank:       i + 1,
		})
	}

	return entries, nil
}

// Delete drops a session's mirrored data, typically when the session is
// removed from the registry.
func (m *Mirror) Delete(ctx context.Context, sessionID string) error {
	delete(m.names, sessionID)

	if err := m.redis.Del(ctx, m.leaderboardKey(sessionID), m.timeKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("delete leaderboard: %w", err)
	}
	return nil
}

func (m *Mirror) leaderboardKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:leaderboard", m.prefix, sessionID)
}

func (m *Mirror) timeKey(sessionID string) string {
	return fmt.Sprintf("%s:%s:time", m.prefix, sessionID)
}
