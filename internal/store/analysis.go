package store

import (
	"context"
	"time"
)

// UpsertActiveHourly records the known/unknown node-count rollup for an
// hour bucket, overwriting any existing row for that hour (the retention
// scheduler recomputes it from scratch on each run, so there is no merge
// rule here beyond idempotent replace).
func (s *Store) UpsertActiveHourly(ctx context.Context, a AnalysisActiveHourly) error {
	const q = `
		INSERT INTO analysis_active_hourly (hour, known_count, unknown_count)
		VALUES ($1, $2, $3)
		ON CONFLICT (hour) DO UPDATE SET
			known_count   = EXCLUDED.known_count,
			unknown_count = EXCLUDED.unknown_count
	`
	_, err := s.db.Pool.Exec(ctx, q, a.Hour, a.KnownCount, a.UnknownCount)
	return err
}

// CountKnownUnknown returns the number of nodes last heard within
// [since, now) that do (known) and do not (unknown) have a node_info row.
func (s *Store) CountKnownUnknown(ctx context.Context, since, now time.Time) (known, unknown int32, err error) {
	const q = `
		SELECT
			count(*) FILTER (WHERE ni.node_id IS NOT NULL),
			count(*) FILTER (WHERE ni.node_id IS NULL)
		FROM nodes n
		LEFT JOIN node_info ni ON ni.node_id = n.id
		WHERE n.last_heard_at >= $1 AND n.last_heard_at < $2
	`
	err = s.db.Pool.QueryRow(ctx, q, since, now).Scan(&known, &unknown)
	return known, unknown, err
}
