package store

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// metersPerDegreeLat is the standard small-angle approximation used to
// convert a precision-bits budget into a lat/lon jitter radius.
const metersPerDegreeLat = 111_320.0

// fuzzRadiusMeters returns the jitter radius in meters equivalent to
// withholding bits of precision from a 32-bit scaled coordinate: each bit
// dropped doubles the positional uncertainty.
func fuzzRadiusMeters(bits int32) float64 {
	droppedBits := 32 - bits
	if droppedBits <= 0 {
		return 0
	}
	// The full 360-degree range halved per retained bit, converted to meters.
	return 360.0 / math.Pow(2, float64(bits)) * metersPerDegreeLat / 2
}

// fuzzPosition applies the configured maximum precision to a position: if
// the incoming precision_bits is absent or exceeds maxPrecisionBits, the
// stored coordinates are jittered within the radius implied by
// maxPrecisionBits and precision_bits is clamped down to it.
func fuzzPosition(lat, lon float64, precisionBits *int32, maxPrecisionBits int32, rng *rand.Rand) (fLat, fLon float64, fBits int32) {
	if precisionBits != nil && *precisionBits <= maxPrecisionBits {
		return lat, lon, *precisionBits
	}

	radius := fuzzRadiusMeters(maxPrecisionBits)
	angle := rng.Float64() * 2 * math.Pi
	dist := rng.Float64() * radius

	dLat := (dist * math.Cos(angle)) / metersPerDegreeLat
	dLon := (dist * math.Sin(angle)) / (metersPerDegreeLat * math.Cos(lat*math.Pi/180))

	return clampLat(lat + dLat), clampLon(lon + dLon), maxPrecisionBits
}

func clampLat(v float64) float64 {
	if v > 90 {
		return 90
	}
	if v < -90 {
		return -90
	}
	return v
}

func clampLon(v float64) float64 {
	if v > 180 {
		return 180
	}
	if v < -180 {
		return -180
	}
	return v
}

// UpsertPosition applies position fuzzing (if needed) and the monotonic
// merge rule, keyed on (node_id, create_at, topic).
func (s *Store) UpsertPosition(ctx context.Context, p NodePosition, maxPrecisionBits int32, rng *rand.Rand) error {
	if p.Latitude != nil && p.Longitude != nil {
		lat, lon, bits := fuzzPosition(*p.Latitude, *p.Longitude, p.PrecisionBits, maxPrecisionBits, rng)
		p.Latitude, p.Longitude = &lat, &lon
		p.PrecisionBits = &bits
	}

	const q = `
		INSERT INTO node_positions (
			node_id, create_at, topic, latitude, longitude, altitude,
			precision_bits, sats_in_view, update_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (node_id, create_at, topic) DO UPDATE SET
			latitude       = COALESCE(EXCLUDED.latitude, node_positions.latitude),
			longitude      = COALESCE(EXCLUDED.longitude, node_positions.longitude),
			altitude       = COALESCE(EXCLUDED.altitude, node_positions.altitude),
			precision_bits = COALESCE(EXCLUDED.precision_bits, node_positions.precision_bits),
			sats_in_view   = COALESCE(EXCLUDED.sats_in_view, node_positions.sats_in_view),
			update_at      = GREATEST(EXCLUDED.update_at, node_positions.update_at)
		WHERE EXCLUDED.update_at >= node_positions.update_at
	`
	_, err := s.db.Pool.Exec(ctx, q,
		p.NodeID, p.CreateAt, p.Topic, p.Latitude, p.Longitude, p.Altitude,
		p.PrecisionBits, p.SatsInView, p.UpdateAt,
	)
	return err
}

// DistinctPositionNodeIDs returns the distinct node ids with a position
// update_at in [start, end], used as the candidate set for the map
// builder (C6) before NodeInfo/distance filtering.
func (s *Store) DistinctPositionNodeIDs(ctx context.Context, start, end time.Time) ([]uint32, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT DISTINCT node_id FROM node_positions WHERE update_at >= $1 AND update_at <= $2`,
		start, end,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uint32
	for rows.Next() {
		var id uint32
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// RecentPositionsForNode returns up to limit positions for nodeID, one per
// distinct topic (each topic's own most recent report), then trimmed to the
// overall most recent limit across topics. The map builder (C6) uses this
// to pick a node's latest coordinates per reporter path.
func (s *Store) RecentPositionsForNode(ctx context.Context, nodeID uint32, limit int) ([]NodePosition, error) {
	const q = `
		WITH per_topic AS (
			SELECT DISTINCT ON (topic) node_id, create_at, topic, latitude, longitude,
				altitude, precision_bits, sats_in_view, update_at
			FROM node_positions
			WHERE node_id = $1
			ORDER BY topic, update_at DESC
		)
		SELECT node_id, create_at, topic, latitude, longitude, altitude,
			precision_bits, sats_in_view, update_at
		FROM per_topic
		ORDER BY update_at DESC
		LIMIT $2
	`
	rows, err := s.db.Pool.Query(ctx, q, nodeID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NodePosition
	for rows.Next() {
		var p NodePosition
		if err := rows.Scan(&p.NodeID, &p.CreateAt, &p.Topic, &p.Latitude, &p.Longitude,
			&p.Altitude, &p.PrecisionBits, &p.SatsInView, &p.UpdateAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PositionTopicsSince returns the distinct topics that carried a position
// for nodeID at or after since. The map builder (C6) derives each node's
// reporter set from the final segment of these topics.
func (s *Store) PositionTopicsSince(ctx context.Context, nodeID uint32, since time.Time) ([]string, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT DISTINCT topic FROM node_positions WHERE node_id = $1 AND update_at >= $2`,
		nodeID, since,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var topics []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			return nil, err
		}
		topics = append(topics, t)
	}
	return topics, rows.Err()
}

// PositionsForNode returns nodeID's NodePosition rows newest-first, paged
// by limit/offset, for the read API's per-node position listing.
func (s *Store) PositionsForNode(ctx context.Context, nodeID uint32, limit, offset int) ([]NodePosition, error) {
	const q = `
		SELECT node_id, create_at, topic, latitude, longitude, altitude,
			precision_bits, sats_in_view, update_at
		FROM node_positions
		WHERE node_id = $1
		ORDER BY update_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.Pool.Query(ctx, q, nodeID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NodePosition
	for rows.Next() {
		var p NodePosition
		if err := rows.Scan(&p.NodeID, &p.CreateAt, &p.Topic, &p.Latitude, &p.Longitude,
			&p.Altitude, &p.PrecisionBits, &p.SatsInView, &p.UpdateAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeletePositionsOlderThan removes node_positions rows whose update_at
// precedes cutoff, used by the retention scheduler (C7).
func (s *Store) DeletePositionsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := s.db.Pool.Exec(ctx, `DELETE FROM node_positions WHERE update_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// LatestPositions returns the most recent position per node whose
// update_at falls within [since, now), one row per node id.
func (s *Store) LatestPositions(ctx context.Context, since, now time.Time) ([]NodePosition, error) {
	const q = `
		SELECT DISTINCT ON (node_id) node_id, create_at, topic, latitude,
			longitude, altitude, precision_bits, sats_in_view, update_at
		FROM node_positions
		WHERE update_at >= $1 AND update_at < $2
		ORDER BY node_id, update_at DESC
	`
	rows, err := s.db.Pool.Query(ctx, q, since, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NodePosition
	for rows.Next() {
		var p NodePosition
		if err := rows.Scan(&p.NodeID, &p.CreateAt, &p.Topic, &p.Latitude, &p.Longitude,
			&p.Altitude, &p.PrecisionBits, &p.SatsInView, &p.UpdateAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
