package mapbuilder

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/snarg/meshgw/internal/meshconfig"
	"github.com/snarg/meshgw/internal/radio"
	"github.com/snarg/meshgw/internal/store"
)

func loadMeshConfig(t *testing.T, maxDistance float64) *meshconfig.Loader {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mesh.yaml")
	body := fmt.Sprintf(`
timezone: UTC
meshtastic:
  position:
    maxQueryPeriod: 24
    maxPrecisionBits: 32
  neighborinfo:
    maxQueryPeriod: 24
    maxDistance: %f
mqtt:
  client:
    - hosts: ["localhost"]
      port: 1883
      identifier: test
      topics: ["#"]
      retryTime: 5s
`, maxDistance)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	loader, err := meshconfig.Load(path)
	require.NoError(t, err)
	return loader
}

// fakePosition builds a NodePosition reported via reporterID's topic.
func fakePosition(nodeID, reporterID uint32, lat, lon float64, at time.Time) store.NodePosition {
	topic := "msh/US/2/e/LongFast/" + radio.FormatNodeHex(reporterID)
	return store.NodePosition{
		NodeID:    nodeID,
		CreateAt:  at.Truncate(time.Hour),
		Topic:     topic,
		Latitude:  &lat,
		Longitude: &lon,
		UpdateAt:  at,
	}
}

type fakeReader struct {
	ids       []uint32
	positions map[uint32][]store.NodePosition
	neighbors []store.NeighborPair
}

func (f *fakeReader) DistinctPositionNodeIDs(ctx context.Context, start, end time.Time) ([]uint32, error) {
	return f.ids, nil
}

func (f *fakeReader) NodeInfoByID(ctx context.Context, id uint32) (store.NodeInfo, bool, error) {
	return store.NodeInfo{}, false, nil
}

func (f *fakeReader) RecentPositionsForNode(ctx context.Context, id uint32, limit int) ([]store.NodePosition, error) {
	ps := f.positions[id]
	if len(ps) > limit {
		ps = ps[:limit]
	}
	return ps, nil
}

func (f *fakeReader) PositionTopicsSince(ctx context.Context, id uint32, since time.Time) ([]string, error) {
	var topics []string
	seen := make(map[string]bool)
	for _, p := range f.positions[id] {
		if p.UpdateAt.Before(since) || seen[p.Topic] {
			continue
		}
		seen[p.Topic] = true
		topics = append(topics, p.Topic)
	}
	return topics, nil
}

func (f *fakeReader) NeighborPairsInRange(ctx context.Context, start, end time.Time) ([]store.NeighborPair, error) {
	return f.neighbors, nil
}

func newTestBuilder(t *testing.T, fr *fakeReader, maxDistance float64) *Builder {
	t.Helper()
	return &Builder{
		store: fr,
		mesh:  loadMeshConfig(t, maxDistance),
		cache: newCache(),
		log:   zerolog.Nop(),
		now:   func() time.Time { return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC) },
	}
}

func TestCoordinatesDistanceFilter(t *testing.T) {
	const nodeA, nodeB, nodeC uint32 = 1, 2, 3
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	fr := &fakeReader{
		ids: []uint32{nodeA, nodeB, nodeC},
		positions: map[uint32][]store.NodePosition{
			nodeA: {
				fakePosition(nodeA, nodeA, 0, 0, now),
				fakePosition(nodeA, nodeB, 0, 0, now),
			},
			nodeB: {
				fakePosition(nodeB, nodeC, 0, 0.001, now),
			},
			nodeC: {
				fakePosition(nodeC, nodeC, 0, 1.0, now),
			},
		},
	}

	b := newTestBuilder(t, fr, 1000)
	result, err := b.Coordinates(context.Background(), now.Add(-time.Hour), now, 24, nil)
	require.NoError(t, err)

	require.Len(t, result.NodeLine, 1)
	require.Equal(t, newPair(nodeA, nodeB), result.NodeLine[0])
	require.Empty(t, result.NodeCoverage)
}

func TestCoordinatesCoverageTriangle(t *testing.T) {
	const nodeA, nodeB, nodeC uint32 = 1, 2, 3
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	fr := &fakeReader{
		ids: []uint32{nodeA, nodeB, nodeC},
		positions: map[uint32][]store.NodePosition{
			nodeA: {fakePosition(nodeA, nodeB, 0, 0, now)},
			nodeB: {fakePosition(nodeB, nodeC, 0, 0.001, now)},
			nodeC: {fakePosition(nodeC, nodeA, 0, 0.002, now)},
		},
	}

	b := newTestBuilder(t, fr, 1000)
	result, err := b.Coordinates(context.Background(), now.Add(-time.Hour), now, 24, nil)
	require.NoError(t, err)

	require.Len(t, result.NodeLine, 3)
	require.Len(t, result.NodeCoverage, 1)
	require.Equal(t, newTriple(nodeA, nodeB, nodeC), result.NodeCoverage[0])
}

func TestCoordinatesReporterLookbackExceedsViewWindow(t *testing.T) {
	const nodeA, nodeB uint32 = 1, 2
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	// Node A's report via B is two hours old, well outside the 10-minute
	// map view window but inside the 24-hour reporter lookback; the edge
	// must still be derived.
	fr := &fakeReader{
		ids: []uint32{nodeA, nodeB},
		positions: map[uint32][]store.NodePosition{
			nodeA: {
				fakePosition(nodeA, nodeA, 0, 0, now),
				fakePosition(nodeA, nodeB, 0, 0, now.Add(-2*time.Hour)),
			},
			nodeB: {fakePosition(nodeB, nodeB, 0, 0.001, now)},
		},
	}

	b := newTestBuilder(t, fr, 1000)
	result, err := b.Coordinates(context.Background(), now.Add(-10*time.Minute), now, 24, nil)
	require.NoError(t, err)

	require.Len(t, result.NodeLine, 1)
	require.Equal(t, newPair(nodeA, nodeB), result.NodeLine[0])
}

func TestCoordinatesPresetFilter(t *testing.T) {
	const nodeA uint32 = 1
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	fr := &fakeReader{
		ids: []uint32{nodeA},
		positions: map[uint32][]store.NodePosition{
			nodeA: {fakePosition(nodeA, nodeA, 10, 10, now)},
		},
	}
	b := newTestBuilder(t, fr, 1000)
	ctx := context.Background()

	// The node has no NodeInfo row, so only the UNKNOWN token admits it.
	result, err := b.Coordinates(ctx, now.Add(-time.Hour), now, 24, []string{"UNKNOWN"})
	require.NoError(t, err)
	require.Len(t, result.Items, 1)
	require.Equal(t, "!00000001", result.Items[0].IDHex)

	result, err = b.Coordinates(ctx, now.Add(-time.Hour), now, 24, []string{"LONG_FAST"})
	require.NoError(t, err)
	require.Empty(t, result.Items)
}

func TestCoordinatesInvalidRange(t *testing.T) {
	fr := &fakeReader{}
	b := newTestBuilder(t, fr, 1000)
	now := time.Now()
	_, err := b.Coordinates(context.Background(), now, now.Add(-time.Hour), 24, nil)
	require.ErrorIs(t, err, ErrInvalidTimeRange)
}

func TestCacheHitReturnsVerbatim(t *testing.T) {
	const nodeA, nodeB uint32 = 1, 2
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	fr := &fakeReader{
		ids: []uint32{nodeA, nodeB},
		positions: map[uint32][]store.NodePosition{
			nodeA: {
				fakePosition(nodeA, nodeA, 0, 0, now),
				fakePosition(nodeA, nodeB, 0, 0, now),
			},
			nodeB: {fakePosition(nodeB, nodeB, 0, 0.0005, now)},
		},
	}

	b := newTestBuilder(t, fr, 1000)
	ctx := context.Background()
	first, err := b.Coordinates(ctx, now.Add(-time.Hour), now, 24, nil)
	require.NoError(t, err)

	// Mutate the backing data; a cache hit must still return the first result.
	fr.positions[nodeB] = nil
	second, err := b.Coordinates(ctx, now.Add(-time.Hour), now, 24, nil)
	require.NoError(t, err)
	require.Equal(t, first, second)
}
