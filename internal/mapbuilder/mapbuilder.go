// Package mapbuilder implements the map-derivation engine (C6): it loads
// recent positions and neighbor reports, derives link and coverage-triangle
// sets under a distance gate, and caches the result per query shape.
package mapbuilder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/meshgw/internal/meshconfig"
	"github.com/snarg/meshgw/internal/radio"
	"github.com/snarg/meshgw/internal/store"
)

// ErrInvalidTimeRange is returned when end precedes start.
var ErrInvalidTimeRange = errors.New("mapbuilder: end before start")

// Pair is an undirected node pair, always normalized so NodeA < NodeB.
type Pair struct {
	NodeA uint32 `json:"node_a"`
	NodeB uint32 `json:"node_b"`
}

func newPair(a, b uint32) Pair {
	if a > b {
		a, b = b, a
	}
	return Pair{NodeA: a, NodeB: b}
}

// Triple is a coverage triangle, always normalized ascending.
type Triple struct {
	NodeA uint32 `json:"node_a"`
	NodeB uint32 `json:"node_b"`
	NodeC uint32 `json:"node_c"`
}

func newTriple(a, b, c uint32) Triple {
	s := []uint32{a, b, c}
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j-1] > s[j]; j-- {
			s[j-1], s[j] = s[j], s[j-1]
		}
	}
	return Triple{NodeA: s[0], NodeB: s[1], NodeC: s[2]}
}

// NodeItem is one node's resolved latest position plus the set of nodes
// whose gateways reported it inside the report window.
type NodeItem struct {
	NodeID       uint32    `json:"node_id"`
	IDHex        string    `json:"id_hex"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	UpdateAt     time.Time `json:"update_at"`
	ReportNodeID []uint32  `json:"report_node_id,omitempty"`
}

// Result is the full coordinates() response.
type Result struct {
	Items            []NodeItem `json:"items"`
	NodeLine         []Pair     `json:"node_line"`
	NodeCoverage     []Triple   `json:"node_coverage"`
	NodeLineNeighbor []Pair     `json:"node_line_neighbor"`
}

// reader is the subset of *store.Store the builder depends on; narrowed for
// testability.
type reader interface {
	DistinctPositionNodeIDs(ctx context.Context, start, end time.Time) ([]uint32, error)
	NodeInfoByID(ctx context.Context, id uint32) (store.NodeInfo, bool, error)
	RecentPositionsForNode(ctx context.Context, nodeID uint32, limit int) ([]store.NodePosition, error)
	PositionTopicsSince(ctx context.Context, nodeID uint32, since time.Time) ([]string, error)
	NeighborPairsInRange(ctx context.Context, start, end time.Time) ([]store.NeighborPair, error)
}

// Builder computes coordinates() responses and caches them per query shape.
type Builder struct {
	store reader
	mesh  *meshconfig.Loader
	cache *cache
	log   zerolog.Logger

	now func() time.Time
}

// New builds a Builder reading from st and using mesh's live retention/
// distance settings.
func New(st *store.Store, mesh *meshconfig.Loader, log zerolog.Logger) *Builder {
	return &Builder{
		store: st,
		mesh:  mesh,
		cache: newCache(),
		log:   log.With().Str("component", "mapbuilder").Logger(),
		now:   time.Now,
	}
}

// Purge clears the response cache; called by the retention scheduler's
// daily sweep (C7).
func (b *Builder) Purge() {
	b.cache.Purge()
}

// Coordinates computes the aggregated map view for [start, end], filtering
// candidate reporter relationships to reportNodeHours and admitting only
// nodes whose modem preset (or UNKNOWN when absent) is in presets; an empty
// presets list admits every node. A cache hit returns the previously
// computed Result verbatim.
func (b *Builder) Coordinates(ctx context.Context, start, end time.Time, reportNodeHours int, presets []string) (Result, error) {
	start = start.Truncate(time.Minute).UTC()
	end = end.Truncate(time.Minute).UTC()
	if end.Before(start) {
		return Result{}, ErrInvalidTimeRange
	}

	key := cacheKey(start, end, reportNodeHours, presets)
	if r, ok := b.cache.get(key); ok {
		return r, nil
	}

	r, err := b.compute(ctx, start, end, reportNodeHours, presets)
	if err != nil {
		return Result{}, fmt.Errorf("mapbuilder: compute: %w", err)
	}

	b.cache.put(key, r)
	return r, nil
}

func (b *Builder) compute(ctx context.Context, start, end time.Time, reportNodeHours int, presets []string) (Result, error) {
	cfg := b.mesh.Current()
	maxDistance := cfg.Meshtastic.NeighborInfo.MaxDistance
	now := b.now().UTC()

	posStart := start
	if floor := now.Add(-time.Duration(cfg.Meshtastic.Position.MaxQueryPeriod) * time.Hour); floor.After(posStart) {
		posStart = floor
	}
	posEnd := end
	if now.Before(posEnd) {
		posEnd = now
	}

	ids, err := b.store.DistinctPositionNodeIDs(ctx, posStart, posEnd)
	if err != nil {
		return Result{}, err
	}

	presetSet := make(map[string]bool, len(presets))
	for _, p := range presets {
		presetSet[p] = true
	}

	// The reporter-chain lookback is independent of the query's [start, end]
	// view window: it is bounded only by reportNodeHours and the retention
	// ceiling.
	reportSince := now.Add(-time.Duration(reportNodeHours) * time.Hour)
	if floor := now.Add(-time.Duration(cfg.Meshtastic.Position.MaxQueryPeriod) * time.Hour); reportSince.Before(floor) {
		reportSince = floor
	}

	var order []uint32
	items := make(map[uint32]NodeItem)
	reporterSet := make(map[uint32]map[uint32]bool)

	for _, id := range ids {
		preset := radio.ModemPresetUnknown
		info, ok, err := b.store.NodeInfoByID(ctx, id)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			b.log.Error().Err(err).Uint32("node_id", id).Msg("mapbuilder: node info lookup failed, skipping")
			continue
		}
		if ok && info.ModemPreset != nil && *info.ModemPreset != "" {
			preset = *info.ModemPreset
		}
		if len(presetSet) > 0 && !presetSet[preset] {
			continue
		}

		positions, err := b.store.RecentPositionsForNode(ctx, id, 5)
		if err != nil {
			b.log.Error().Err(err).Uint32("node_id", id).Msg("mapbuilder: position lookup failed, skipping")
			continue
		}
		if len(positions) == 0 {
			continue
		}
		latest := positions[0]
		if latest.Latitude == nil || latest.Longitude == nil {
			continue
		}

		reporters, set, err := b.reportersFor(ctx, id, reportSince)
		if err != nil {
			b.log.Error().Err(err).Uint32("node_id", id).Msg("mapbuilder: reporter lookup failed, skipping")
			continue
		}

		order = append(order, id)
		items[id] = NodeItem{
			NodeID:       id,
			IDHex:        radio.FormatNodeHex(id),
			Latitude:     *latest.Latitude,
			Longitude:    *latest.Longitude,
			UpdateAt:     latest.UpdateAt,
			ReportNodeID: reporters,
		}
		reporterSet[id] = set
	}

	nodeLine, nodeCoverage := deriveTopology(order, items, reporterSet, maxDistance)

	neighborStart := start
	if floor := now.Add(-time.Duration(cfg.Meshtastic.NeighborInfo.MaxQueryPeriod) * time.Hour); floor.After(neighborStart) {
		neighborStart = floor
	}
	neighborEnd := end
	if now.Before(neighborEnd) {
		neighborEnd = now
	}
	nodeLineNeighbor, err := b.buildNodeLineNeighbor(ctx, items, neighborStart, neighborEnd, maxDistance)
	if err != nil {
		return Result{}, err
	}

	out := make([]NodeItem, 0, len(order))
	for _, id := range order {
		out = append(out, items[id])
	}

	return Result{
		Items:            out,
		NodeLine:         nodeLine,
		NodeCoverage:     nodeCoverage,
		NodeLineNeighbor: nodeLineNeighbor,
	}, nil
}

// reportersFor resolves the distinct set of nodes whose gateway topics
// carried a position for nodeID since the given time, preserving first-seen
// order. The reporter id is the last topic segment's hex form; topics with
// no slash or an empty final segment carry no reporter.
func (b *Builder) reportersFor(ctx context.Context, nodeID uint32, since time.Time) ([]uint32, map[uint32]bool, error) {
	topics, err := b.store.PositionTopicsSince(ctx, nodeID, since)
	if err != nil {
		return nil, nil, err
	}

	var reporters []uint32
	set := make(map[uint32]bool)
	for _, topic := range topics {
		idx := strings.LastIndexByte(topic, '/')
		if idx < 0 || idx == len(topic)-1 {
			continue
		}
		reporter, err := radio.ParseNodeNum(topic[idx+1:])
		if err != nil {
			continue
		}
		if !set[reporter] {
			set[reporter] = true
			reporters = append(reporters, reporter)
		}
	}
	return reporters, set, nil
}

// deriveTopology walks every reporter chain A-B-C over nodes with resolved
// positions: each hop within maxDistance contributes an undirected line, and
// a chain whose ends also report each other (either direction) and sit
// within maxDistance closes into a coverage triangle.
func deriveTopology(order []uint32, items map[uint32]NodeItem, reporterSet map[uint32]map[uint32]bool, maxDistance float64) ([]Pair, []Triple) {
	lineSeen := make(map[Pair]bool)
	var nodeLine []Pair
	addLine := func(x, y uint32) {
		p := newPair(x, y)
		if !lineSeen[p] {
			lineSeen[p] = true
			nodeLine = append(nodeLine, p)
		}
	}

	covSeen := make(map[Triple]bool)
	var nodeCoverage []Triple

	for _, aID := range order {
		itemA := items[aID]
		for _, bID := range itemA.ReportNodeID {
			if bID == aID {
				continue
			}
			itemB, ok := items[bID]
			if !ok {
				continue
			}
			if haversineMeters(itemA.Latitude, itemA.Longitude, itemB.Latitude, itemB.Longitude) > maxDistance {
				continue
			}
			addLine(aID, bID)

			for _, cID := range itemB.ReportNodeID {
				if cID == bID {
					continue
				}
				itemC, ok := items[cID]
				if !ok {
					continue
				}
				if haversineMeters(itemB.Latitude, itemB.Longitude, itemC.Latitude, itemC.Longitude) > maxDistance {
					continue
				}
				addLine(bID, cID)

				if cID == aID {
					continue
				}
				if !reporterSet[cID][aID] && !reporterSet[aID][cID] {
					continue
				}
				if haversineMeters(itemA.Latitude, itemA.Longitude, itemC.Latitude, itemC.Longitude) > maxDistance {
					continue
				}
				tr := newTriple(aID, bID, cID)
				if !covSeen[tr] {
					covSeen[tr] = true
					nodeCoverage = append(nodeCoverage, tr)
				}
			}
		}
	}
	return nodeLine, nodeCoverage
}

// buildNodeLineNeighbor draws an undirected line for every neighbor-report
// edge in range whose two endpoints both resolved to a current position
// within maxDistance.
func (b *Builder) buildNodeLineNeighbor(ctx context.Context, items map[uint32]NodeItem, start, end time.Time, maxDistance float64) ([]Pair, error) {
	pairs, err := b.store.NeighborPairsInRange(ctx, start, end)
	if err != nil {
		return nil, err
	}

	seen := make(map[Pair]bool)
	var out []Pair
	for _, p := range pairs {
		itemA, ok := items[p.NodeID]
		if !ok {
			continue
		}
		itemB, ok := items[p.EdgeNodeID]
		if !ok {
			continue
		}
		if haversineMeters(itemA.Latitude, itemA.Longitude, itemB.Latitude, itemB.Longitude) > maxDistance {
			continue
		}
		pair := newPair(p.NodeID, p.EdgeNodeID)
		if seen[pair] {
			continue
		}
		seen[pair] = true
		out = append(out, pair)
	}
	return out, nil
}
