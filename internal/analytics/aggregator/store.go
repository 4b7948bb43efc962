// Package aggregator persists fleet-wide lookup stats to PostgreSQL so the
// analytics service can report history across restarts.
package aggregator

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/gazetteer-lookup/pkg/postgres"
)

const (
	table = "lookup_analytics_snapshots"

	// Retain is how many snapshots survive each prune.
	Retain = 1000
)

var ddl = []string{
	`CREATE TABLE IF NOT EXISTS ` + table + ` (
		id            UUID PRIMARY KEY,
		node          TEXT NOT NULL,
		total_lookups BIGINT NOT NULL,
		data          JSONB NOT NULL,
		captured_at   TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ` + table + `_captured_idx ON ` + table + ` (captured_at DESC)`,
}

// Store writes Stats snapshots tagged with the node that captured them.
type Store struct {
	db     *sql.DB
	node   string
	now    func() time.Time
	logger *slog.Logger
}

var _ analytics.SnapshotLister = (*Store)(nil)

func NewStore(pg *postgres.Client) *Store {
	node, err := os.Hostname()
	if err != nil {
		node = "unknown"
	}
	return &Store{
		db:     pg.DB,
		node:   node,
		now:    time.Now,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range ddl {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("snapshot schema: %w", err)
		}
	}
	return nil
}

// Save inserts one snapshot and returns its id.
func (s *Store) Save(ctx context.Context, stats analytics.Stats) (uuid.UUID, error) {
	data, err := json.Marshal(stats)
	if err != nil {
		return uuid.Nil, fmt.Errorf("encode snapshot: %w", err)
	}
	id := uuid.New()
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO `+table+` (id, node, total_lookups, data, captured_at) VALUES ($1, $2, $3, $4, $5)`,
		id, s.node, stats.TotalLookups, data, s.now().UTC(),
	); err != nil {
		return uuid.Nil, fmt.Errorf("insert snapshot: %w", err)
	}
	return id, nil
}

// Prune deletes all but the newest keep snapshots.
func (s *Store) Prune(ctx context.Context, keep int) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM `+table+` WHERE id NOT IN (SELECT id FROM `+table+` ORDER BY captured_at DESC LIMIT $1)`,
		keep,
	)
	if err != nil {
		return 0, fmt.Errorf("prune snapshots: %w", err)
	}
	return res.RowsAffected()
}

func (s *Store) ListSnapshots(ctx context.Context, limit int) ([]analytics.Stats, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM `+table+` ORDER BY captured_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]analytics.Stats, 0, limit)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		var st analytics.Stats
		if err := json.Unmarshal(raw, &st); err != nil {
			s.logger.Warn("skipping unreadable snapshot", "error", err)
			continue
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

// Run snapshots agg every interval until ctx ends, then writes a final
// snapshot on a fresh context so shutdown does not lose the last window.
func (s *Store) Run(ctx context.Context, agg *analytics.Aggregator, interval time.Duration) {
	s.logger.Info("snapshotting analytics", "interval", interval, "node", s.node)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.capture(ctx, agg)
		case <-ctx.Done():
			final, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			s.capture(final, agg)
			cancel()
			return
		}
	}
}

func (s *Store) capture(ctx context.Context, agg *analytics.Aggregator) {
	stats := agg.Stats()
	id, err := s.Save(ctx, stats)
	if err != nil {
		s.logger.Error("snapshot failed", "error", err)
		return
	}
	pruned, err := s.Prune(ctx, Retain)
	if err != nil {
		s.logger.Warn("snapshot prune failed", "error", err)
	}
	s.logger.Debug("snapshot saved", "id", id, "total_lookups", stats.TotalLookups, "pruned", pruned)
}
