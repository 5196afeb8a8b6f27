package store

import "context"

// LatestTelemetry bundles the most recent row of each telemetry kind for a
// node; any field is nil if that kind has never been reported.
type LatestTelemetry struct {
	Device      *NodeTelemetryDevice
	Environment *NodeTelemetryEnvironment
	AirQuality  *NodeTelemetryAirQuality
	Power       *NodeTelemetryPower
}

// LatestTelemetryForNode loads the single most recent row of each
// telemetry kind for nodeID, used by the read API's per-node telemetry
// endpoint.
func (s *Store) LatestTelemetryForNode(ctx context.Context, nodeID uint32) (LatestTelemetry, error) {
	var out LatestTelemetry

	var d NodeTelemetryDevice
	err := s.db.Pool.QueryRow(ctx, `
		SELECT node_id, create_at, battery_level, voltage, channel_utilization,
			air_util_tx, uptime_seconds, update_at, topic
		FROM node_telemetry_device WHERE node_id = $1 ORDER BY update_at DESC LIMIT 1
	`, nodeID).Scan(&d.NodeID, &d.CreateAt, &d.BatteryLevel, &d.Voltage, &d.ChannelUtilization,
		&d.AirUtilTx, &d.UptimeSeconds, &d.UpdateAt, &d.Topic)
	if err == nil {
		out.Device = &d
	} else if err := noRowsToNotFound(err); err != ErrNotFound {
		return out, err
	}

	var e NodeTelemetryEnvironment
	err = s.db.Pool.QueryRow(ctx, `
		SELECT node_id, create_at, temperature, relative_humidity, barometric_pressure,
			iaq, voltage, current, update_at, topic
		FROM node_telemetry_environment WHERE node_id = $1 ORDER BY update_at DESC LIMIT 1
	`, nodeID).Scan(&e.NodeID, &e.CreateAt, &e.Temperature, &e.RelativeHumidity, &e.BarometricPressure,
		&e.Iaq, &e.Voltage, &e.Current, &e.UpdateAt, &e.Topic)
	if err == nil {
		out.Environment = &e
	} else if err := noRowsToNotFound(err); err != ErrNotFound {
		return out, err
	}

	var a NodeTelemetryAirQuality
	err = s.db.Pool.QueryRow(ctx, `
		SELECT node_id, create_at, pm10_standard, pm25_standard, pm100_standard,
			pm10_environmental, pm25_environmental, pm100_environmental,
			pm_voc_idx, update_at, topic
		FROM node_telemetry_air_quality WHERE node_id = $1 ORDER BY update_at DESC LIMIT 1
	`, nodeID).Scan(&a.NodeID, &a.CreateAt, &a.Pm10Standard, &a.Pm25Standard, &a.Pm100Standard,
		&a.Pm10Environmental, &a.Pm25Environmental, &a.Pm100Environmental,
		&a.PmVocIdx, &a.UpdateAt, &a.Topic)
	if err == nil {
		out.AirQuality = &a
	} else if err := noRowsToNotFound(err); err != ErrNotFound {
		return out, err
	}

	var p NodeTelemetryPower
	err = s.db.Pool.QueryRow(ctx, `
		SELECT node_id, create_at, ch1_voltage, ch1_current, update_at, topic
		FROM node_telemetry_power WHERE node_id = $1 ORDER BY update_at DESC LIMIT 1
	`, nodeID).Scan(&p.NodeID, &p.CreateAt, &p.Ch1Voltage, &p.Ch1Current, &p.UpdateAt, &p.Topic)
	if err == nil {
		out.Power = &p
	} else if err := noRowsToNotFound(err); err != ErrNotFound {
		return out, err
	}

	return out, nil
}

// UpsertTelemetryDevice applies the monotonic merge for a device-metrics
// telemetry row, keyed on (node_id, create_at).
func (s *Store) UpsertTelemetryDevice(ctx context.Context, t NodeTelemetryDevice) error {
	const q = `
		INSERT INTO node_telemetry_device (
			node_id, create_at, battery_level, voltage, channel_utilization,
			air_util_tx, uptime_seconds, update_at, topic
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (node_id, create_at) DO UPDATE SET
			battery_level       = COALESCE(EXCLUDED.battery_level, node_telemetry_device.battery_level),
			voltage             = COALESCE(EXCLUDED.voltage, node_telemetry_device.voltage),
			channel_utilization = COALESCE(EXCLUDED.channel_utilization, node_telemetry_device.channel_utilization),
			air_util_tx         = COALESCE(EXCLUDED.air_util_tx, node_telemetry_device.air_util_tx),
			uptime_seconds      = COALESCE(EXCLUDED.uptime_seconds, node_telemetry_device.uptime_seconds),
			update_at           = GREATEST(EXCLUDED.update_at, node_telemetry_device.update_at)
		WHERE EXCLUDED.update_at >= node_telemetry_device.update_at
	`
	_, err := s.db.Pool.Exec(ctx, q,
		t.NodeID, t.CreateAt, t.BatteryLevel, t.Voltage, t.ChannelUtilization,
		t.AirUtilTx, t.UptimeSeconds, t.UpdateAt, t.Topic,
	)
	return err
}

// UpsertTelemetryEnvironment applies the monotonic merge for an
// environment-metrics telemetry row.
func (s *Store) UpsertTelemetryEnvironment(ctx context.Context, t NodeTelemetryEnvironment) error {
	const q = `
		INSERT INTO node_telemetry_environment (
			node_id, create_at, temperature, relative_humidity,
			barometric_pressure, iaq, voltage, current, update_at, topic
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (node_id, create_at) DO UPDATE SET
			temperature          = COALESCE(EXCLUDED.temperature, node_telemetry_environment.temperature),
			relative_humidity    = COALESCE(EXCLUDED.relative_humidity, node_telemetry_environment.relative_humidity),
			barometric_pressure  = COALESCE(EXCLUDED.barometric_pressure, node_telemetry_environment.barometric_pressure),
			iaq                  = COALESCE(EXCLUDED.iaq, node_telemetry_environment.iaq),
			voltage              = COALESCE(EXCLUDED.voltage, node_telemetry_environment.voltage),
			current              = COALESCE(EXCLUDED.current, node_telemetry_environment.current),
			update_at            = GREATEST(EXCLUDED.update_at, node_telemetry_environment.update_at)
		WHERE EXCLUDED.update_at >= node_telemetry_environment.update_at
	`
	_, err := s.db.Pool.Exec(ctx, q,
		t.NodeID, t.CreateAt, t.Temperature, t.RelativeHumidity,
		t.BarometricPressure, t.Iaq, t.Voltage, t.Current, t.UpdateAt, t.Topic,
	)
	return err
}

// UpsertTelemetryAirQuality applies the monotonic merge for an
// air-quality-metrics telemetry row.
func (s *Store) UpsertTelemetryAirQuality(ctx context.Context, t NodeTelemetryAirQuality) error {
	const q = `
		INSERT INTO node_telemetry_air_quality (
			node_id, create_at, pm10_standard, pm25_standard, pm100_standard,
			pm10_environmental, pm25_environmental, pm100_environmental,
			pm_voc_idx, update_at, topic
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (node_id, create_at) DO UPDATE SET
			pm10_standard       = COALESCE(EXCLUDED.pm10_standard, node_telemetry_air_quality.pm10_standard),
			pm25_standard       = COALESCE(EXCLUDED.pm25_standard, node_telemetry_air_quality.pm25_standard),
			pm100_standard      = COALESCE(EXCLUDED.pm100_standard, node_telemetry_air_quality.pm100_standard),
			pm10_environmental  = COALESCE(EXCLUDED.pm10_environmental, node_telemetry_air_quality.pm10_environmental),
			pm25_environmental  = COALESCE(EXCLUDED.pm25_environmental, node_telemetry_air_quality.pm25_environmental),
			pm100_environmental = COALESCE(EXCLUDED.pm100_environmental, node_telemetry_air_quality.pm100_environmental),
			pm_voc_idx          = COALESCE(EXCLUDED.pm_voc_idx, node_telemetry_air_quality.pm_voc_idx),
			update_at           = GREATEST(EXCLUDED.update_at, node_telemetry_air_quality.update_at)
		WHERE EXCLUDED.update_at >= node_telemetry_air_quality.update_at
	`
	_, err := s.db.Pool.Exec(ctx, q,
		t.NodeID, t.CreateAt, t.Pm10Standard, t.Pm25Standard, t.Pm100Standard,
		t.Pm10Environmental, t.Pm25Environmental, t.Pm100Environmental,
		t.PmVocIdx, t.UpdateAt, t.Topic,
	)
	return err
}

// UpsertTelemetryPower applies the monotonic merge for a power-metrics
// telemetry row.
func (s *Store) UpsertTelemetryPower(ctx context.Context, t NodeTelemetryPower) error {
	const q = `
		INSERT INTO node_telemetry_power (node_id, create_at, ch1_voltage, ch1_current, update_at, topic)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (node_id, create_at) DO UPDATE SET
			ch1_voltage = COALESCE(EXCLUDED.ch1_voltage, node_telemetry_power.ch1_voltage),
			ch1_current = COALESCE(EXCLUDED.ch1_current, node_telemetry_power.ch1_current),
			update_at   = GREATEST(EXCLUDED.update_at, node_telemetry_power.update_at)
		WHERE EXCLUDED.update_at >= node_telemetry_power.update_at
	`
	_, err := s.db.Pool.Exec(ctx, q, t.NodeID, t.CreateAt, t.Ch1Voltage, t.Ch1Current, t.UpdateAt, t.Topic)
	return err
}
