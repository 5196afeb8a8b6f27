package store

import (
	"context"
	"time"
)

// Node is the bare identity row: every other entity in this package
// references one by node_id.
type Node struct {
	ID          uint32
	IDHex       string
	LastHeardAt time.Time
}

// NodeByID loads the identity row for id, returning ok=false if the node
// has never been observed.
func (s *Store) NodeByID(ctx context.Context, id uint32) (Node, bool, error) {
	const q = `SELECT id, id_hex, last_heard_at FROM nodes WHERE id = $1`
	var n Node
	err := s.db.Pool.QueryRow(ctx, q, id).Scan(&n.ID, &n.IDHex, &n.LastHeardAt)
	if err != nil {
		return Node{}, false, noRowsToNotFound(err)
	}
	return n, true, nil
}
