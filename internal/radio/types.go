// Package radio decodes raw MQTT (topic, payload) pairs published by
// Meshtastic gateways into normalized events: AES-CTR decryption, protobuf
// decoding per portnum, and the JSON payload variant.
package radio

import (
	"errors"
	"time"
)

// EventType classifies a decoded event by its originating portnum.
type EventType string

const (
	EventMapReport    EventType = "mapreport"
	EventNeighborInfo EventType = "neighborinfo"
	EventNodeInfo     EventType = "nodeinfo"
	EventPosition     EventType = "position"
	EventTelemetry    EventType = "telemetry"
	EventUnknown      EventType = "unknown"
)

// Event is the normalized output of the frame codec: a typed, timestamped
// record ready for the ingest pipeline, or a drop decision (nil, ok=false).
type Event struct {
	PacketID   uint32
	From       uint32
	To         uint32
	Channel    string
	SenderHex  string
	Timestamp  time.Time
	Type       EventType
	Portnum    int32 // set when Type == EventUnknown
	Payload    []byte
	Topic      string
}

var (
	// ErrDecrypt is returned when AES-CTR decryption or the subsequent
	// protobuf unmarshal of the plaintext fails.
	ErrDecrypt = errors.New("radio: failed to decrypt packet")
	// ErrUnknownPayloadVariant is returned for a MeshPacket carrying
	// neither a decoded nor an encrypted payload variant.
	ErrUnknownPayloadVariant = errors.New("radio: unknown payload variant")
)
