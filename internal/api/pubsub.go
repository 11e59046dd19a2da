package api

import (
	"context"
	"encoding/json"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/playsketch/sketchparty/internal/domain"
)

const maxConcurrent = 100

type (
	Notification struct {
		Event string `json:"event"`
		Data  any    `json:"data"`
	}

	Leaderboard struct {
		SessionID string             `json:"session_id"`
		Entries   []LeaderboardEntry `json:"entries"`
	}

	LeaderboardEntry struct {
		PlayerID string `json:"player_id"`
		Name     string `json:"name"`
		Score    int    `json:"score"`
		Rank     int    `json:"rank"`
	}
)

// publishLeaderboardUpdated fans the new standings out to every player's
// Redis pubsub channel.
func (a *API) publishLeaderboardUpdated(ctx context.Context, sessionID string, e domain.EventLeaderboardUpdated) error {
	data := Leaderboard{
		SessionID: sessionID,
		Entries:   make([]LeaderboardEntry, 0, len(e.Entries)),
	}

	for _, entry := range e.Entries {
		data.Entries = append(data.Entries, LeaderboardEntry{
			PlayerID: entry.PlayerID,
			Name:     entry.PlayerName,
			Score:    entry.TotalScore,
			Rank:     entry.Rank,
		})
	}

	var eg errgroup.Group
	eg.SetLimit(maxConcurrent)

	for _, entry := range data.Entries {
		entry := entry
		eg.Go(func() error {
			return a.publishNotification(ctx, entry.PlayerID, e.Name(), data)
		})
	}

	return eg.Wait()
}

func (a *API) publishNotification(ctx context.Context, playerID, event string, data any) error {
	n := Notification{
		Event: event,
		Data:  data,
	}

	b, err := json.Marshal(n)
	if err != nil {
		return fmt.Errorf("pubsub: marshal %s: %v", event, err)
	}

	return a.redis.Publish(ctx, fmt.Sprintf("%s:player:%s", a.prefix, playerID), b).Err()
}
