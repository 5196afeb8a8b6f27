// Package live implements the live map broadcaster (C9): a pub/sub fan-out
// of node-affecting writes to connected websocket clients. There is no
// replay-on-reconnect ring buffer; a freshly connected map client loads its
// initial state from the read API (C8) and then only tracks incremental
// updates.
package live

import (
	"sync"
	"time"
)

// Update is one node-affecting write, published after its store upsert
// commits, or a "cache_sweep" notice from the daily map-cache purge.
type Update struct {
	Kind   string // "nodeinfo", "position", "neighborinfo", "telemetry", "cache_sweep"
	NodeID uint32
	At     time.Time
}

// Broadcaster fans out Updates to any number of subscribers. A slow
// subscriber never blocks publication: updates it can't keep up with are
// dropped for that subscriber rather than backpressuring the ingest
// pipeline.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan Update]struct{}
}

// NewBroadcaster builds an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan Update]struct{})}
}

// Subscribe registers a new subscriber channel. Call the returned function
// to unsubscribe and close the channel.
func (b *Broadcaster) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, 32)

	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subs[ch]; ok {
			delete(b.subs, ch)
			close(ch)
		}
		b.mu.Unlock()
	}
	return ch, unsubscribe
}

// Publish fans out an update to every current subscriber without blocking;
// a subscriber whose channel is full misses this update but stays
// subscribed, rather than slowing down the ingest pipeline.
func (b *Broadcaster) Publish(u Update) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subs {
		select {
		case ch <- u:
		default:
		}
	}
}

// SubscriberCount returns the number of currently connected subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
