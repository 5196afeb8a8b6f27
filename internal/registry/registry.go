// Package registry implements lazy node creation and last-heard tracking
// (C2): every write elsewhere in the gateway calls Ensure first so that
// foreign keys into the node table are always satisfiable.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"

	"github.com/snarg/meshgw/internal/database"
)

// Registry caches known node ids in memory and lazily creates rows for
// node ids seen for the first time.
type Registry struct {
	db  *database.DB
	log zerolog.Logger

	mu       sync.RWMutex
	lastSeen map[uint32]time.Time
}

// New builds a Registry backed by db.
func New(db *database.DB, log zerolog.Logger) *Registry {
	return &Registry{
		db:       db,
		log:      log,
		lastSeen: make(map[uint32]time.Time),
	}
}

// Ensure guarantees a node row exists for id, with last_heard_at set to the
// max of its current value and heardAt. It is safe to call concurrently and
// cheap to call redundantly: the in-memory cache avoids a DB round trip for
// every ingest event once a node has been seen once in this process.
func (r *Registry) Ensure(ctx context.Context, id uint32, heardAt time.Time) error {
	r.mu.RLock()
	last, known := r.lastSeen[id]
	r.mu.RUnlock()

	if known && !heardAt.After(last) {
		return nil
	}

	// The upsert runs unlocked so a slow database never serializes the
	// ingest workers behind this mutex; GREATEST in the SQL makes
	// concurrent upserts for the same id commute.
	if err := r.upsert(ctx, id, heardAt); err != nil {
		return fmt.Errorf("ensure node %08x: %w", id, err)
	}

	r.mu.Lock()
	if last, known = r.lastSeen[id]; !known || heardAt.After(last) {
		r.lastSeen[id] = heardAt
	}
	r.mu.Unlock()
	return nil
}

// Touch sets last_heard_at to now, equivalent to Ensure(id, time.Now()).
func (r *Registry) Touch(ctx context.Context, id uint32) error {
	return r.Ensure(ctx, id, time.Now().UTC())
}

func (r *Registry) upsert(ctx context.Context, id uint32, heardAt time.Time) error {
	idHex := fmt.Sprintf("!%08x", id)

	const q = `
		INSERT INTO nodes (id, id_hex, last_heard_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE
		SET last_heard_at = GREATEST(nodes.last_heard_at, EXCLUDED.last_heard_at)
	`
	_, err := r.db.Pool.Exec(ctx, q, id, idHex, heardAt)
	return err
}

// LastHeard returns the cached last_heard_at for id, loading it from the
// database on a cache miss.
func (r *Registry) LastHeard(ctx context.Context, id uint32) (time.Time, bool, error) {
	r.mu.RLock()
	t, ok := r.lastSeen[id]
	r.mu.RUnlock()
	if ok {
		return t, true, nil
	}

	var heard time.Time
	err := r.db.Pool.QueryRow(ctx, `SELECT last_heard_at FROM nodes WHERE id = $1`, id).Scan(&heard)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}

	r.mu.Lock()
	r.lastSeen[id] = heard
	r.mu.Unlock()
	return heard, true, nil
}

// CacheLen returns the number of node ids currently cached in memory.
func (r *Registry) CacheLen() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.lastSeen)
}
