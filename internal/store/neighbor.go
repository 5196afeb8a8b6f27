package store

import (
	"context"
	"time"
)

// NeighborPair is one reported edge bounded to a NodeNeighborInfo report
// window, used by the map builder (C6) to draw neighbor lines.
type NeighborPair struct {
	NodeID     uint32
	EdgeNodeID uint32
}

// UpsertNeighborInfo applies the monotonic merge for the per-node
// NodeNeighborInfo summary row, then replaces the node's edge set wholesale
// with edges. A new neighbor report supersedes the previous topology rather
// than merging with it, since NeighborInfo packets are always a complete
// snapshot from the reporting node. An empty edges slice leaves the stored
// edge set unchanged.
func (s *Store) UpsertNeighborInfo(ctx context.Context, info NodeNeighborInfo, edges []NodeNeighborEdge) error {
	const q = `
		INSERT INTO node_neighbor_info (node_id, last_sent_by_id, broadcast_interval_secs, update_at, topic)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (node_id) DO UPDATE SET
			last_sent_by_id         = COALESCE(EXCLUDED.last_sent_by_id, node_neighbor_info.last_sent_by_id),
			broadcast_interval_secs = COALESCE(EXCLUDED.broadcast_interval_secs, node_neighbor_info.broadcast_interval_secs),
			update_at               = GREATEST(EXCLUDED.update_at, node_neighbor_info.update_at),
			topic                   = EXCLUDED.topic
		WHERE EXCLUDED.update_at >= node_neighbor_info.update_at
	`
	tag, err := s.db.Pool.Exec(ctx, q,
		info.NodeID, info.LastSentByID, info.BroadcastIntervalSecs, info.UpdateAt, info.Topic,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		// Stale report: the existing row is newer, so the edge set it
		// describes must not be clobbered either.
		return nil
	}
	if len(edges) == 0 {
		return nil
	}

	return s.replaceEdges(ctx, info.NodeID, edges)
}

func (s *Store) replaceEdges(ctx context.Context, nodeID uint32, edges []NodeNeighborEdge) error {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM node_neighbor_edges WHERE node_id = $1`, nodeID); err != nil {
		return err
	}
	for _, e := range edges {
		if _, err := tx.Exec(ctx,
			`INSERT INTO node_neighbor_edges (node_id, edge_node_id, snr) VALUES ($1, $2, $3)`,
			nodeID, e.EdgeNodeID, e.SNR,
		); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// NeighborEdges returns the current edge set for nodeID.
func (s *Store) NeighborEdges(ctx context.Context, nodeID uint32) ([]NodeNeighborEdge, error) {
	rows, err := s.db.Pool.Query(ctx,
		`SELECT node_id, edge_node_id, snr FROM node_neighbor_edges WHERE node_id = $1`, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NodeNeighborEdge
	for rows.Next() {
		var e NodeNeighborEdge
		if err := rows.Scan(&e.NodeID, &e.EdgeNodeID, &e.SNR); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// NeighborPairsInRange returns every edge whose owning NodeNeighborInfo
// report has an update_at in [start, end], used by the map builder (C6) to
// select which neighbor lines to draw.
func (s *Store) NeighborPairsInRange(ctx context.Context, start, end time.Time) ([]NeighborPair, error) {
	const q = `
		SELECT e.node_id, e.edge_node_id
		FROM node_neighbor_edges e
		JOIN node_neighbor_info i ON i.node_id = e.node_id
		WHERE i.update_at >= $1 AND i.update_at <= $2
	`
	rows, err := s.db.Pool.Query(ctx, q, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []NeighborPair
	for rows.Next() {
		var p NeighborPair
		if err := rows.Scan(&p.NodeID, &p.EdgeNodeID); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DeleteNeighborsOlderThan removes NodeNeighborInfo rows whose update_at
// precedes cutoff along with their edge sets, used by the retention
// scheduler (C7). Edges have no update_at of their own, so they are
// cascaded manually from the owning info row's node id.
func (s *Store) DeleteNeighborsOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.db.Pool.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `SELECT node_id FROM node_neighbor_info WHERE update_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	var ids []uint32
	for rows.Next() {
		var id uint32
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, err
	}

	for _, id := range ids {
		if _, err := tx.Exec(ctx, `DELETE FROM node_neighbor_edges WHERE node_id = $1`, id); err != nil {
			return 0, err
		}
	}

	tag, err := tx.Exec(ctx, `DELETE FROM node_neighbor_info WHERE update_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
