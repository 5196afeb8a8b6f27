package store

import (
	"context"
	"math/rand"
	"testing"
	"time"
)

func ptrStr(s string) *string { return &s }
func ptrI32(v int32) *int32   { return &v }
func ptrF64(v float64) *float64 { return &v }
func ptrBool(b bool) *bool   { return &b }

func seedNode(t *testing.T, ctx context.Context, s *Store, id uint32, at time.Time) {
	t.Helper()
	_, err := s.db.Pool.Exec(ctx,
		`INSERT INTO nodes (id, id_hex, last_heard_at) VALUES ($1, $2, $3)
		 ON CONFLICT (id) DO NOTHING`, id, "!00000000", at)
	if err != nil {
		t.Fatalf("seed node: %v", err)
	}
}

func TestUpsertNodeInfoMonotonicMerge(t *testing.T) {
	if testing.Short() {
		t.Skip("requires embedded postgres")
	}
	s := startTestDB(t)
	ctx := context.Background()
	seedNode(t, ctx, s, 1, time.Now().UTC())

	t1 := time.Now().UTC().Add(-time.Hour)
	if err := s.UpsertNodeInfo(ctx, NodeInfo{
		NodeID: 1, LongName: ptrStr("Alpha"), UpdateAt: t1, Topic: "msh/1",
	}); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Null never clobbers: short_name set later without touching long_name.
	t2 := t1.Add(time.Minute)
	if err := s.UpsertNodeInfo(ctx, NodeInfo{
		NodeID: 1, ShortName: ptrStr("A"), UpdateAt: t2, Topic: "msh/1",
	}); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	got, ok, err := s.NodeInfoByID(ctx, 1)
	if err != nil || !ok {
		t.Fatalf("NodeInfoByID: ok=%v err=%v", ok, err)
	}
	if got.LongName == nil || *got.LongName != "Alpha" {
		t.Errorf("LongName = %v, want Alpha (preserved)", got.LongName)
	}
	if got.ShortName == nil || *got.ShortName != "A" {
		t.Errorf("ShortName = %v, want A", got.ShortName)
	}

	// Stale message (older update_at) must not overwrite.
	stale := t1.Add(-time.Hour)
	if err := s.UpsertNodeInfo(ctx, NodeInfo{
		NodeID: 1, LongName: ptrStr("Stale"), UpdateAt: stale, Topic: "msh/1",
	}); err != nil {
		t.Fatalf("stale upsert: %v", err)
	}
	got, _, _ = s.NodeInfoByID(ctx, 1)
	if *got.LongName != "Alpha" {
		t.Errorf("LongName = %v, want Alpha (stale write must be dropped)", *got.LongName)
	}
	if got.UpdateAt.Before(t2) {
		t.Errorf("UpdateAt regressed to %v, want >= %v", got.UpdateAt, t2)
	}
}

func TestUpsertPositionFuzzingClampsPrecision(t *testing.T) {
	if testing.Short() {
		t.Skip("requires embedded postgres")
	}
	s := startTestDB(t)
	ctx := context.Background()
	seedNode(t, ctx, s, 2, time.Now().UTC())

	hour := time.Now().UTC().Truncate(time.Hour)
	lat, lon := 37.7749, -122.4194
	precise := ptrI32(32)

	rng := rand.New(rand.NewSource(1))
	err := s.UpsertPosition(ctx, NodePosition{
		NodeID: 2, CreateAt: hour, Topic: "msh/2",
		Latitude: &lat, Longitude: &lon, PrecisionBits: precise,
		UpdateAt: time.Now().UTC(),
	}, 10, rng)
	if err != nil {
		t.Fatalf("UpsertPosition: %v", err)
	}

	positions, err := s.LatestPositions(ctx, hour.Add(-time.Hour), hour.Add(time.Hour))
	if err != nil {
		t.Fatalf("LatestPositions: %v", err)
	}
	if len(positions) != 1 {
		t.Fatalf("len(positions) = %d, want 1", len(positions))
	}
	p := positions[0]
	if p.PrecisionBits == nil || *p.PrecisionBits != 10 {
		t.Errorf("PrecisionBits = %v, want 10", p.PrecisionBits)
	}
	if *p.Latitude == lat && *p.Longitude == lon {
		t.Errorf("expected fuzzed coordinates to differ from input")
	}
	if *p.Latitude < -90 || *p.Latitude > 90 || *p.Longitude < -180 || *p.Longitude > 180 {
		t.Errorf("fuzzed coordinates out of range: %v, %v", *p.Latitude, *p.Longitude)
	}
}

func TestUpsertNeighborInfoReplacesEdgesWholesale(t *testing.T) {
	if testing.Short() {
		t.Skip("requires embedded postgres")
	}
	s := startTestDB(t)
	ctx := context.Background()
	seedNode(t, ctx, s, 3, time.Now().UTC())

	t1 := time.Now().UTC().Add(-time.Minute)
	err := s.UpsertNeighborInfo(ctx, NodeNeighborInfo{NodeID: 3, UpdateAt: t1, Topic: "msh/3"},
		[]NodeNeighborEdge{{NodeID: 3, EdgeNodeID: 10, SNR: 5}, {NodeID: 3, EdgeNodeID: 11, SNR: 6}})
	if err != nil {
		t.Fatalf("first neighbor upsert: %v", err)
	}

	t2 := t1.Add(time.Minute)
	err = s.UpsertNeighborInfo(ctx, NodeNeighborInfo{NodeID: 3, UpdateAt: t2, Topic: "msh/3"},
		[]NodeNeighborEdge{{NodeID: 3, EdgeNodeID: 12, SNR: 7}})
	if err != nil {
		t.Fatalf("second neighbor upsert: %v", err)
	}

	edges, err := s.NeighborEdges(ctx, 3)
	if err != nil {
		t.Fatalf("NeighborEdges: %v", err)
	}
	if len(edges) != 1 || edges[0].EdgeNodeID != 12 {
		t.Errorf("edges = %+v, want single edge to 12 (wholesale replace)", edges)
	}
}

func TestFuzzRadiusMetersDecreasesWithMoreBits(t *testing.T) {
	if fuzzRadiusMeters(10) <= fuzzRadiusMeters(20) {
		t.Error("expected fuzz radius to shrink as precision bits increase")
	}
	if fuzzRadiusMeters(32) != 0 {
		t.Errorf("fuzzRadiusMeters(32) = %v, want 0 (full precision)", fuzzRadiusMeters(32))
	}
}
