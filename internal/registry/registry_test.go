package registry

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// newTestRegistry builds a Registry with a pre-populated cache and no DB:
// the cache fast path is exercised without a database, and any accidental
// DB access panics on the nil pool.
func newTestRegistry(entries map[uint32]time.Time) *Registry {
	r := &Registry{
		log:      zerolog.Nop(),
		lastSeen: make(map[uint32]time.Time),
	}
	for k, v := range entries {
		r.lastSeen[k] = v
	}
	return r
}

func TestCacheLen(t *testing.T) {
	r := newTestRegistry(map[uint32]time.Time{1: {}, 2: {}, 3: {}})
	if got := r.CacheLen(); got != 3 {
		t.Errorf("CacheLen() = %d, want 3", got)
	}
}

func TestEnsureSkipsWhenNotNewer(t *testing.T) {
	now := time.Now().UTC()
	r := newTestRegistry(map[uint32]time.Time{7: now})

	// heardAt equal to cached last-seen must not attempt a DB write: db is
	// nil here, so a non-skip would panic on the nil pool.
	if err := r.Ensure(nil, 7, now); err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if err := r.Ensure(nil, 7, now.Add(-time.Minute)); err != nil {
		t.Fatalf("Ensure with older heardAt: %v", err)
	}
}
