// Package archive persists score records into Postgres for post-game
// analysis. Writes are best effort: a failed insert is logged by the bus and
// never blocks gameplay.
package archive

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/playsketch/sketchparty/internal/domain"
	"github.com/playsketch/sketchparty/internal/event"
	"github.com/playsketch/sketchparty/internal/session"
)

type Config struct {
	DB *pgxpool.Pool
}

// Archive appends every SCORE_UPDATE of the sessions it watches into the
// scores table.
type Archive struct {
	db *pgxpool.Pool
}

func NewArchive(c Config) *Archive {
	return &Archive{db: c.DB}
}

// Attach returns the hook a session manager calls for every new session.
func (a *Archive) Attach() session.AttachFunc {
	return func(s *session.Session) {
		a.Watch(s.ID(), s.Bus())
	}
}

// Watch subscribes the archive to one session's bus.
func (a *Archive) Watch(sessionID string, eb *event.Bus) {
	eb.Subscribe(domain.EventNameScoreUpdate, func(ctx context.Context, e event.Event) error {
		return a.insertScore(ctx, sessionID, e.Payload.(domain.EventScoreUpdate), e.Timestamp)
	})
}

func (a *Archive) insertScore(ctx context.Context, sessionID string, p domain.EventScoreUpdate, at time.Time) error {
	const stmt = `
INSERT INTO scores (session_id, player_id, player_name, round, points, kind, create_time)
VALUES ($1, $2, $3, $4, $5, $6, $7);`

	_, err := a.db.Exec(ctx, stmt, sessionID, p.PlayerID, p.PlayerName, p.Round, p.Points, string(p.Kind), at)
	if err != nil {
		return fmt.Errorf("insert score: %w", err)
	}

	return nil
}

// SessionTotal is the archived aggregate for one player of one session.
type SessionTotal struct {
	PlayerID   string
	PlayerName string
	Total      int
}

// ListScores aggregates the archived records of one session, highest total
// first.
func (a *Archive) ListScores(ctx context.Context, sessionID string) ([]SessionTotal, error) {
	const stmt = `
SELECT player_id, MAX(player_name) AS player_name, SUM(points) AS total
FROM scores
WHERE session_id = $1
GROUP BY player_id
ORDER BY total DESC;`

	rows, err := a.db.Query(ctx, stmt, sessionID)
	if err != nil {
		return nil, err
	}

	totals, err := pgx.CollectRows(rows, func(r pgx.CollectableRow) (SessionTotal, error) {
		var st SessionTotal
		if err := r.Scan(&st.PlayerID, &st.PlayerName, &st.Total); err != nil {
			return SessionTotal{}, err
		}
		return st, nil
	})
	if err != nil {
		return nil, err
	}

	return totals, nil
}
