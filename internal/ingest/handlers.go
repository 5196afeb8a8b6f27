package ingest

import (
	"context"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"google.golang.org/protobuf/proto"

	"github.com/snarg/meshgw/internal/radio"
	"github.com/snarg/meshgw/internal/store"
)

const meshtasticPositionScale = 1e-7

func (p *Pipeline) handleMapReport(ctx context.Context, ev radio.Event) error {
	var mr meshtastic.MapReport
	if err := proto.Unmarshal(ev.Payload, &mr); err != nil {
		return err
	}

	fw := mr.GetFirmwareVersion()
	if rejectFirmware(fw) {
		return nil
	}

	role := mr.GetRole().String()
	hwModel := mr.GetHwModel().String()
	region := mr.GetRegion().String()
	preset := mr.GetModemPreset().String()
	hasDefault := mr.GetHasDefaultChannel()
	online := int32(mr.GetNumOnlineLocalNodes())

	info := store.NodeInfo{
		NodeID:              ev.From,
		LongName:            strPtrIfNonEmpty(mr.GetLongName()),
		ShortName:           strPtrIfNonEmpty(mr.GetShortName()),
		HwModel:             &hwModel,
		Role:                &role,
		FirmwareVersion:     &fw,
		Region:              &region,
		ModemPreset:         &preset,
		HasDefaultChannel:   &hasDefault,
		NumOnlineLocalNodes: &online,
		UpdateAt:            ev.Timestamp,
		Topic:               ev.Topic,
	}
	if err := p.store.UpsertNodeInfo(ctx, info); err != nil {
		return err
	}
	p.publishLive("nodeinfo", ev.From)

	if mr.GetLatitudeI() != 0 || mr.GetLongitudeI() != 0 {
		lat := float64(mr.GetLatitudeI()) * meshtasticPositionScale
		lon := float64(mr.GetLongitudeI()) * meshtasticPositionScale
		if !isValidLatLon(lat, lon) {
			return nil
		}
		pos := store.NodePosition{
			NodeID:   ev.From,
			CreateAt: truncateToHour(ev.Timestamp),
			Topic:    ev.Topic,
			Latitude: &lat, Longitude: &lon,
			UpdateAt: ev.Timestamp,
		}
		if err := p.store.UpsertPosition(ctx, pos, p.maxPrecisionBits(), p.rng); err != nil {
			return err
		}
		p.publishLive("position", ev.From)
	}
	return nil
}

func (p *Pipeline) handleNeighborInfo(ctx context.Context, ev radio.Event) error {
	var ni meshtastic.NeighborInfo
	if err := proto.Unmarshal(ev.Payload, &ni); err != nil {
		return err
	}

	nodeID := ni.GetNodeId()
	if nodeID == 0 {
		nodeID = ev.From
	}
	if err := p.registry.Ensure(ctx, nodeID, ev.Timestamp); err != nil {
		return err
	}

	lastSentBy := ni.GetLastSentById()
	interval := int32(ni.GetNodeBroadcastIntervalSecs())
	info := store.NodeNeighborInfo{
		NodeID:                nodeID,
		LastSentByID:          &lastSentBy,
		BroadcastIntervalSecs: &interval,
		UpdateAt:              ev.Timestamp,
		Topic:                 ev.Topic,
	}

	neighbors := ni.GetNeighbors()
	edges := make([]store.NodeNeighborEdge, 0, len(neighbors))
	for _, n := range neighbors {
		if err := p.registry.Ensure(ctx, n.GetNodeId(), ev.Timestamp); err != nil {
			return err
		}
		edges = append(edges, store.NodeNeighborEdge{
			NodeID:     nodeID,
			EdgeNodeID: n.GetNodeId(),
			SNR:        n.GetSnr(),
		})
	}

	// An empty neighbor list leaves existing edges intact: only replace
	// when the report actually carries edges.
	if len(edges) == 0 {
		return p.store.UpsertNeighborInfo(ctx, info, nil)
	}
	if err := p.store.UpsertNeighborInfo(ctx, info, edges); err != nil {
		return err
	}
	p.publishLive("neighborinfo", nodeID)
	return nil
}

func (p *Pipeline) handleNodeInfo(ctx context.Context, ev radio.Event) error {
	var user meshtastic.User
	if err := proto.Unmarshal(ev.Payload, &user); err != nil {
		return err
	}

	if ev.From == 0 || user.GetLongName() == "" || user.GetShortName() == "" {
		return nil
	}

	hwModel := user.GetHwModel().String()
	role := user.GetRole().String()
	licensed := user.GetIsLicensed()
	info := store.NodeInfo{
		NodeID:     ev.From,
		LongName:   strPtrIfNonEmpty(user.GetLongName()),
		ShortName:  strPtrIfNonEmpty(user.GetShortName()),
		HwModel:    &hwModel,
		Role:       &role,
		IsLicensed: &licensed,
		UpdateAt:   ev.Timestamp,
		Topic:      ev.Topic,
	}
	if err := p.store.UpsertNodeInfo(ctx, info); err != nil {
		return err
	}
	p.publishLive("nodeinfo", ev.From)
	return nil
}

func (p *Pipeline) handlePosition(ctx context.Context, ev radio.Event) error {
	var pos meshtastic.Position
	if err := proto.Unmarshal(ev.Payload, &pos); err != nil {
		return err
	}

	if pos.LatitudeI == nil || pos.LongitudeI == nil {
		return nil
	}
	lat := float64(pos.GetLatitudeI()) * meshtasticPositionScale
	lon := float64(pos.GetLongitudeI()) * meshtasticPositionScale
	if !isValidLatLon(lat, lon) {
		return nil
	}

	var altitude *int32
	if a := pos.GetAltitude(); a != 0 {
		v := a
		altitude = &v
	}
	var precision *int32
	if pb := pos.GetPrecisionBits(); pb != 0 {
		v := int32(pb)
		precision = &v
	}
	var sats *int32
	if s := pos.GetSatsInView(); s != 0 {
		v := int32(s)
		sats = &v
	}

	row := store.NodePosition{
		NodeID:        ev.From,
		CreateAt:      truncateToHour(ev.Timestamp),
		Topic:         ev.Topic,
		Latitude:      &lat,
		Longitude:     &lon,
		Altitude:      altitude,
		PrecisionBits: precision,
		SatsInView:    sats,
		UpdateAt:      ev.Timestamp,
	}
	if err := p.store.UpsertPosition(ctx, row, p.maxPrecisionBits(), p.rng); err != nil {
		return err
	}
	p.publishLive("position", ev.From)
	return nil
}
