package maintenance

import (
	"context"
	"time"

	"github.com/snarg/meshgw/internal/live"
	"github.com/snarg/meshgw/internal/store"
)

// rollupHour recomputes AnalysisActiveHourly for the hour that just ended.
func (s *Scheduler) rollupHour(ctx context.Context) {
	end := s.now().UTC().Truncate(time.Hour)
	start := end.Add(-time.Hour)

	known, unknown, err := s.store.CountKnownUnknown(ctx, start, end)
	if err != nil {
		s.log.Error().Err(err).Time("hour", start).Msg("maintenance: hourly rollup query failed")
		return
	}

	err = s.store.UpsertActiveHourly(ctx, store.AnalysisActiveHourly{
		Hour:         start,
		KnownCount:   known,
		UnknownCount: unknown,
	})
	if err != nil {
		s.log.Error().Err(err).Time("hour", start).Msg("maintenance: hourly rollup upsert failed")
		return
	}
	s.log.Debug().Time("hour", start).Int32("known", known).Int32("unknown", unknown).Msg("maintenance: hourly rollup complete")
}

// purgePositions deletes NodePosition rows older than the configured
// position retention window.
func (s *Scheduler) purgePositions(ctx context.Context) {
	maxQueryPeriod := s.mesh.Current().Meshtastic.Position.MaxQueryPeriod
	cutoff := s.now().UTC().Add(-time.Duration(maxQueryPeriod) * time.Hour)

	n, err := s.store.DeletePositionsOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Time("cutoff", cutoff).Msg("maintenance: position purge failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("maintenance: positions purged")
	}
}

// purgeNeighbors deletes NodeNeighborInfo (and cascaded edge) rows older
// than the configured neighbor retention window.
func (s *Scheduler) purgeNeighbors(ctx context.Context) {
	maxQueryPeriod := s.mesh.Current().Meshtastic.NeighborInfo.MaxQueryPeriod
	cutoff := s.now().UTC().Add(-time.Duration(maxQueryPeriod) * time.Hour)

	n, err := s.store.DeleteNeighborsOlderThan(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Time("cutoff", cutoff).Msg("maintenance: neighbor purge failed")
		return
	}
	if n > 0 {
		s.log.Info().Int64("rows", n).Time("cutoff", cutoff).Msg("maintenance: neighbor info purged")
	}
}

// sweepCache purges the map builder's response cache and notifies live map
// subscribers to refetch, since their cached view may now be stale.
func (s *Scheduler) sweepCache(ctx context.Context) {
	s.builder.Purge()
	s.log.Debug().Msg("maintenance: map cache swept")

	if s.live == nil {
		return
	}
	s.live.Publish(live.Update{Kind: "cache_sweep", At: s.now().UTC()})
}
