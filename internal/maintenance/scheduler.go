// Package maintenance implements the retention scheduler (C7): four
// independently-ticking wall-clock tasks that roll up hourly activity
// counts, prune stale position/neighbor rows, and sweep the map-builder
// cache.
package maintenance

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/meshgw/internal/live"
	"github.com/snarg/meshgw/internal/mapbuilder"
	"github.com/snarg/meshgw/internal/meshconfig"
	"github.com/snarg/meshgw/internal/store"
)

// Scheduler owns the four retention/rollup tasks and their tickers.
type Scheduler struct {
	store   *store.Store
	mesh    *meshconfig.Loader
	builder *mapbuilder.Builder
	live    *live.Broadcaster
	log     zerolog.Logger

	now func() time.Time
}

// New builds a Scheduler. live may be nil if the broadcaster is not
// running (e.g. in tests); the cache-sweep task simply skips notification.
func New(st *store.Store, mesh *meshconfig.Loader, builder *mapbuilder.Builder, lv *live.Broadcaster, log zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:   st,
		mesh:    mesh,
		builder: builder,
		live:    lv,
		log:     log.With().Str("component", "maintenance").Logger(),
		now:     time.Now,
	}
}

// Run starts all four tasks and blocks until ctx is canceled.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(4)

	go func() {
		defer wg.Done()
		s.runAligned(ctx, "hourly-rollup", func(now time.Time) time.Time { return nextHourlyAt(now, 0) }, time.Hour, s.rollupHour)
	}()
	go func() {
		defer wg.Done()
		s.runAligned(ctx, "position-purge", func(now time.Time) time.Time { return nextHourlyAt(now, 28) }, time.Hour, s.purgePositions)
	}()
	go func() {
		defer wg.Done()
		s.runAligned(ctx, "neighbor-purge", func(now time.Time) time.Time { return nextHourlyAt(now, 32) }, time.Hour, s.purgeNeighbors)
	}()
	go func() {
		defer wg.Done()
		s.runAligned(ctx, "cache-sweep", func(now time.Time) time.Time { return nextDailyAt(now, 0, 30) }, 24*time.Hour, s.sweepCache)
	}()

	wg.Wait()
}

// runAligned waits for the first wall-clock-aligned trigger, runs task, then
// ticks every period thereafter. A run still in progress when the next tick
// fires suppresses that tick rather than queuing it, since time.Ticker only
// buffers a single pending tick and task() executes inline in this loop.
func (s *Scheduler) runAligned(ctx context.Context, name string, next func(now time.Time) time.Time, period time.Duration, task func(ctx context.Context)) {
	if !sleepUntil(ctx, next(s.now())) {
		return
	}

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	s.runTask(name, task)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runTask(name, task)
		}
	}
}

func (s *Scheduler) runTask(name string, task func(ctx context.Context)) {
	ctx := context.Background()
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Str("task", name).Interface("panic", r).Msg("maintenance: task panicked, skipping run")
		}
	}()
	task(ctx)
}

func sleepUntil(ctx context.Context, at time.Time) bool {
	d := time.Until(at)
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func nextHourlyAt(now time.Time, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), now.Hour(), minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.Add(time.Hour)
	}
	return next
}

func nextDailyAt(now time.Time, hour, minute int) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), hour, minute, 0, 0, now.Location())
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
