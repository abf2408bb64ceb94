// Package events is an optional second event source for the bridge: a
// postgres table the game plugin appends to, polled and fanned out the
// same way as getstats messages.
package events

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kubemc/mcbridge/internal/bridge"
)

const fetchLimit = 10

// Source polls the discord_events table for unprocessed rows.
type Source struct {
	pool *pgxpool.Pool
}

// Open connects to the database and verifies connectivity.
func Open(ctx context.Context, dsn string) (*Source, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}
	return &Source{pool: pool}, nil
}

// Close releases the connection pool.
func (s *Source) Close() {
	s.pool.Close()
}

type row struct {
	id    int64
	event bridge.Event
}

// fetch returns up to fetchLimit unprocessed events, oldest first.
func (s *Source) fetch(ctx context.Context) ([]row, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, event_type, player_name, player_uuid, COALESCE(message, '')
		 FROM discord_events
		 WHERE processed_at IS NULL
		 ORDER BY created_at
		 LIMIT $1`, fetchLimit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []row
	for rows.Next() {
		var r row
		if err := rows.Scan(&r.id, &r.event.Type, &r.event.Player, &r.event.UUID, &r.event.Message); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		// A bad UUID would produce a broken avatar URL; blank it and
		// let the embed render without an icon.
		if _, err := uuid.Parse(r.event.UUID); err != nil {
			slog.Warn("event has invalid player uuid", "id", r.id, "uuid", r.event.UUID)
			r.event.UUID = ""
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// markProcessed stamps the given rows as delivered.
func (s *Source) markProcessed(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx,
		`UPDATE discord_events SET processed_at = $1 WHERE id = ANY($2)`,
		time.Now().UTC(), ids,
	)
	if err != nil {
		return fmt.Errorf("marking events processed: %w", err)
	}
	return nil
}

// Run polls the table on the given interval and feeds events into the
// engine until ctx is cancelled.
func (s *Source) Run(ctx context.Context, engine *bridge.Engine, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	slog.Info("database event source started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			rows, err := s.fetch(ctx)
			if err != nil {
				slog.Error("event fetch failed", "err", err)
				continue
			}
			if len(rows) == 0 {
				continue
			}

			events := make([]bridge.Event, len(rows))
			ids := make([]int64, len(rows))
			for i, r := range rows {
				events[i] = r.event
				ids[i] = r.id
			}

			engine.ProcessEvents(events)
			if err := s.markProcessed(ctx, ids); err != nil {
				slog.Error("failed to mark events processed", "err", err)
			}
		}
	}
}
