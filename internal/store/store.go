// Package store implements the monotonic, conflict-resolving upsert
// repository (C3): one exported method per entity, each an independent
// statement (or short transaction, for wholesale edge replacement) that
// encodes the merge rule directly in SQL so the database enforces
// idempotence and commutativity rather than the caller.
package store

import (
	"github.com/rs/zerolog"

	"github.com/snarg/meshgw/internal/database"
)

// Store is the repository over the node/info/position/neighbor/telemetry
// tables.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// New builds a Store backed by db.
func New(db *database.DB, log zerolog.Logger) *Store {
	return &Store{db: db, log: log}
}
