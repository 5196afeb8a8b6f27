package store

import "time"

// NodeInfo is the per-node descriptive state merged from NODEINFO_APP and
// MAP_REPORT_APP packets. A nil field means "unknown, do not overwrite";
// see the merge rule in nodeinfo.go.
type NodeInfo struct {
	NodeID              uint32
	LongName            *string
	ShortName           *string
	HwModel             *string
	IsLicensed          *bool
	Role                *string
	FirmwareVersion     *string
	Region              *string
	ModemPreset         *string
	HasDefaultChannel   *bool
	NumOnlineLocalNodes *int32
	UpdateAt            time.Time
	Topic               string
}

// NodePosition is one hourly-bucketed position observation for a node via a
// given topic.
type NodePosition struct {
	NodeID        uint32
	CreateAt      time.Time // truncated to the hour
	Topic         string
	Latitude      *float64
	Longitude     *float64
	Altitude      *int32
	PrecisionBits *int32
	SatsInView    *int32
	UpdateAt      time.Time
}

// NodeNeighborInfo is the per-node neighbor-report summary row.
type NodeNeighborInfo struct {
	NodeID                uint32
	LastSentByID          *uint32
	BroadcastIntervalSecs *int32
	UpdateAt              time.Time
	Topic                 string
}

// NodeNeighborEdge is one edge of a node's neighbor report; the full set for
// a node is replaced wholesale on each new report (see neighbor.go).
type NodeNeighborEdge struct {
	NodeID     uint32
	EdgeNodeID uint32
	SNR        float32
}

// NodeTelemetryDevice is the DEVICE_METRICS telemetry variant.
type NodeTelemetryDevice struct {
	NodeID             uint32
	CreateAt           time.Time
	BatteryLevel       *int32
	Voltage            *float32
	ChannelUtilization *float32
	AirUtilTx          *float32
	UptimeSeconds      *int32
	UpdateAt           time.Time
	Topic              string
}

// NodeTelemetryEnvironment is the ENVIRONMENT_METRICS telemetry variant.
type NodeTelemetryEnvironment struct {
	NodeID             uint32
	CreateAt           time.Time
	Temperature        *float32
	RelativeHumidity   *float32
	BarometricPressure *float32
	Iaq                *int32
	Voltage            *float32
	Current            *float32
	UpdateAt           time.Time
	Topic              string
}

// NodeTelemetryAirQuality is the AIR_QUALITY_METRICS telemetry variant.
type NodeTelemetryAirQuality struct {
	NodeID             uint32
	CreateAt           time.Time
	Pm10Standard       *int32
	Pm25Standard       *int32
	Pm100Standard      *int32
	Pm10Environmental  *int32
	Pm25Environmental  *int32
	Pm100Environmental *int32
	PmVocIdx           *int32
	UpdateAt           time.Time
	Topic              string
}

// NodeTelemetryPower is the POWER_METRICS telemetry variant.
type NodeTelemetryPower struct {
	NodeID     uint32
	CreateAt   time.Time
	Ch1Voltage *float32
	Ch1Current *float32
	UpdateAt   time.Time
	Topic      string
}

// AnalysisActiveHourly is the hourly known/unknown node-count rollup
// produced by the retention scheduler (C7).
type AnalysisActiveHourly struct {
	Hour         time.Time
	KnownCount   int32
	UnknownCount int32
}
