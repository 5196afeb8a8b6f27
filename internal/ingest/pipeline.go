// Package ingest implements the classify-validate-dispatch pipeline (C5):
// every decoded radio.Event is routed to the node registry and upsert
// repository, and on success republished for the live map broadcaster.
package ingest

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/meshgw/internal/live"
	"github.com/snarg/meshgw/internal/meshconfig"
	"github.com/snarg/meshgw/internal/metrics"
	"github.com/snarg/meshgw/internal/radio"
	"github.com/snarg/meshgw/internal/registry"
	"github.com/snarg/meshgw/internal/store"
)

// firmwareRejectPrefix is the firmware line whose map reports are dropped
// as unreliable (pre-release map-report schema).
const firmwareRejectPrefix = "2.3.1."

// Pipeline wires a decoded radio.Event to the node registry and upsert
// repository, per event type.
type Pipeline struct {
	codec    *radio.Codec
	registry *registry.Registry
	store    *store.Store
	mesh     *meshconfig.Loader
	live     *live.Broadcaster
	log      zerolog.Logger

	rng *rand.Rand
}

// New builds a Pipeline. lv may be nil if the live map broadcaster is not
// running (e.g. in tests).
func New(codec *radio.Codec, reg *registry.Registry, st *store.Store, mesh *meshconfig.Loader, lv *live.Broadcaster, log zerolog.Logger) *Pipeline {
	return &Pipeline{
		codec:    codec,
		registry: reg,
		store:    st,
		mesh:     mesh,
		live:     lv,
		log:      log,
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// HandleMessage is the MessageHandler passed to mqttclient.Supervisor: it
// decodes, validates, and dispatches one MQTT message, never returning an
// error: every failure is logged and the message is dropped.
func (p *Pipeline) HandleMessage(topic string, payload []byte) {
	metrics.MQTTMessagesTotal.Inc()

	if strings.Contains(topic, "/2/json/") {
		p.handleJSON(topic, payload)
		return
	}

	ev, ok, err := p.codec.Decode(topic, payload)
	if err != nil {
		p.logDecodeError(topic, err)
		return
	}
	if !ok {
		return
	}

	ctx := context.Background()
	if err := p.dispatch(ctx, ev); err != nil {
		metrics.IngestEventsTotal.WithLabelValues(string(ev.Type), "error").Inc()
		p.log.Error().Err(err).Str("topic", topic).Str("type", string(ev.Type)).Msg("ingest: dropping event")
		return
	}
	metrics.IngestEventsTotal.WithLabelValues(string(ev.Type), "ok").Inc()
}

func (p *Pipeline) logDecodeError(topic string, err error) {
	if errors.Is(err, radio.ErrDecrypt) {
		p.log.Debug().Err(err).Str("topic", topic).Msg("ingest: decrypt failed, dropping")
		return
	}
	p.log.Error().Err(err).Str("topic", topic).Msg("ingest: decode failed, dropping")
}

func (p *Pipeline) dispatch(ctx context.Context, ev radio.Event) error {
	if err := p.registry.Ensure(ctx, ev.From, ev.Timestamp); err != nil {
		return err
	}

	switch ev.Type {
	case radio.EventMapReport:
		return p.handleMapReport(ctx, ev)
	case radio.EventNeighborInfo:
		return p.handleNeighborInfo(ctx, ev)
	case radio.EventNodeInfo:
		return p.handleNodeInfo(ctx, ev)
	case radio.EventPosition:
		return p.handlePosition(ctx, ev)
	case radio.EventTelemetry:
		return p.handleTelemetry(ctx, ev)
	default:
		return nil
	}
}

func (p *Pipeline) maxPrecisionBits() int32 {
	if p.mesh == nil {
		return 32
	}
	return int32(p.mesh.Current().Meshtastic.Position.MaxPrecisionBits)
}

func (p *Pipeline) publishLive(kind string, nodeID uint32) {
	if p.live == nil {
		return
	}
	p.live.Publish(live.Update{Kind: kind, NodeID: nodeID, At: time.Now().UTC()})
	metrics.LiveEventsPublishedTotal.Inc()
}

func truncateToHour(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}

// rejectFirmware reports whether a map report's firmware version is dropped:
// missing versions and the broken pre-release line produce unreliable map
// reports.
func rejectFirmware(fw string) bool {
	return fw == "" || strings.HasPrefix(fw, firmwareRejectPrefix)
}

func isValidLatLon(lat, lon float64) bool {
	if lat < -90 || lat > 90 || lon < -180 || lon > 180 {
		return false
	}
	return lat != 0 || lon != 0
}
