package ingest

import (
	"context"
	"math"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"google.golang.org/protobuf/proto"

	"github.com/snarg/meshgw/internal/radio"
	"github.com/snarg/meshgw/internal/store"
)

func (p *Pipeline) handleTelemetry(ctx context.Context, ev radio.Event) error {
	var t meshtastic.Telemetry
	if err := proto.Unmarshal(ev.Payload, &t); err != nil {
		return err
	}
	if t.GetTime() == 0 {
		return nil
	}

	ts := radio.PacketTimestamp(t.GetTime(), ev.Timestamp)
	if ts.After(ev.Timestamp) {
		ts = ev.Timestamp
	}
	createAt := truncateToHour(ts)

	if dm := t.GetDeviceMetrics(); dm != nil {
		row := store.NodeTelemetryDevice{
			NodeID:             ev.From,
			CreateAt:           createAt,
			BatteryLevel:       u32Ptr(dm.BatteryLevel),
			Voltage:            f32PtrNaNSafe(dm.Voltage),
			ChannelUtilization: f32PtrNaNSafe(dm.ChannelUtilization),
			AirUtilTx:          f32PtrNaNSafe(dm.AirUtilTx),
			UptimeSeconds:      u32Ptr(dm.UptimeSeconds),
			UpdateAt:           ts,
			Topic:              ev.Topic,
		}
		if err := p.store.UpsertTelemetryDevice(ctx, row); err != nil {
			return err
		}
	}

	if em := t.GetEnvironmentMetrics(); em != nil {
		row := store.NodeTelemetryEnvironment{
			NodeID:             ev.From,
			CreateAt:           createAt,
			Temperature:        f32PtrNaNSafe(em.Temperature),
			RelativeHumidity:   f32PtrNaNSafe(em.RelativeHumidity),
			BarometricPressure: f32PtrNaNSafe(em.BarometricPressure),
			Iaq:                u32Ptr(em.Iaq),
			Voltage:            f32PtrNaNSafe(em.Voltage),
			Current:            f32PtrNaNSafe(em.Current),
			UpdateAt:           ts,
			Topic:              ev.Topic,
		}
		if err := p.store.UpsertTelemetryEnvironment(ctx, row); err != nil {
			return err
		}
	}

	if pm := t.GetPowerMetrics(); pm != nil {
		row := store.NodeTelemetryPower{
			NodeID:     ev.From,
			CreateAt:   createAt,
			Ch1Voltage: f32PtrNaNSafe(pm.Ch1Voltage),
			Ch1Current: f32PtrNaNSafe(pm.Ch1Current),
			UpdateAt:   ts,
			Topic:      ev.Topic,
		}
		if err := p.store.UpsertTelemetryPower(ctx, row); err != nil {
			return err
		}
	}

	if aq := t.GetAirQualityMetrics(); aq != nil {
		row := store.NodeTelemetryAirQuality{
			NodeID:             ev.From,
			CreateAt:           createAt,
			Pm10Standard:       u32Ptr(aq.Pm10Standard),
			Pm25Standard:       u32Ptr(aq.Pm25Standard),
			Pm100Standard:      u32Ptr(aq.Pm100Standard),
			Pm10Environmental:  u32Ptr(aq.Pm10Environmental),
			Pm25Environmental:  u32Ptr(aq.Pm25Environmental),
			Pm100Environmental: u32Ptr(aq.Pm100Environmental),
			PmVocIdx:           u32Ptr(aq.PmVocIdx),
			UpdateAt:           ts,
			Topic:              ev.Topic,
		}
		if err := p.store.UpsertTelemetryAirQuality(ctx, row); err != nil {
			return err
		}
	}

	p.publishLive("telemetry", ev.From)
	return nil
}

// f32PtrNaNSafe copies an optional float32 field, coercing NaN to nil.
// Meshtastic devices occasionally report NaN for a sensor that errored
// rather than omitting the field outright.
func f32PtrNaNSafe(v *float32) *float32 {
	if v == nil || math.IsNaN(float64(*v)) {
		return nil
	}
	cp := *v
	return &cp
}

// u32Ptr narrows an optional Meshtastic uint32 field to the int32 the
// store columns use.
func u32Ptr(v *uint32) *int32 {
	if v == nil {
		return nil
	}
	cp := int32(*v)
	return &cp
}
