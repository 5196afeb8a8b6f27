package radio

import (
	"strings"
	"time"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"google.golang.org/protobuf/proto"
)

// TopicKind classifies an MQTT topic before any payload is touched.
type TopicKind int

const (
	// TopicIgnored covers wildcard subscriptions and the /2/stat/ branch,
	// neither of which carries a mesh packet.
	TopicIgnored TopicKind = iota
	// TopicJSON is the /2/json/ branch: a JSON-encoded NodeInfo-shaped
	// payload rather than a protobuf ServiceEnvelope.
	TopicJSON
	// TopicProto is the /2/e/ (encrypted/plain envelope) or /2/map branch:
	// a protobuf-encoded ServiceEnvelope.
	TopicProto
)

// ClassifyTopic inspects the MQTT topic path and decides how its payload
// must be decoded, without looking at the payload itself.
func ClassifyTopic(topic string) TopicKind {
	segs := strings.Split(topic, "/")
	for _, s := range segs {
		if s == "#" {
			return TopicIgnored
		}
	}
	switch {
	case strings.Contains(topic, "/2/stat/"):
		return TopicIgnored
	case strings.Contains(topic, "/2/json/"):
		return TopicJSON
	case strings.Contains(topic, "/2/e/"), strings.Contains(topic, "/2/map"):
		return TopicProto
	default:
		return TopicIgnored
	}
}

// KeyLookup resolves a channel name to its base64-encoded AES key, as
// provided by meshconfig.ChannelKeyMap.Lookup.
type KeyLookup func(channel string) (base64Key string, ok bool)

// Codec decodes raw MQTT payloads for the /2/e/ and /2/map topic branches
// into normalized Events.
type Codec struct {
	// Now is overridable for tests; defaults to time.Now when nil.
	Now func() time.Time
	// Keys resolves a channel name to its decryption key.
	Keys KeyLookup
}

// NewCodec builds a Codec backed by the given channel key resolver.
func NewCodec(keys KeyLookup) *Codec {
	return &Codec{Keys: keys}
}

func (c *Codec) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

// Decode classifies topic, unmarshals the ServiceEnvelope, decrypts the
// packet if necessary, and dispatches on portnum to produce a normalized
// Event. It returns ok=false for topics/payloads that carry no event
// (wildcard/stat topics, JSON payloads handled elsewhere, or packets whose
// timestamp lies in the future and must be dropped per the ingest
// invariant).
func (c *Codec) Decode(topic string, payload []byte) (Event, bool, error) {
	if ClassifyTopic(topic) != TopicProto {
		return Event{}, false, nil
	}

	var env meshtastic.ServiceEnvelope
	if err := proto.Unmarshal(payload, &env); err != nil {
		return Event{}, false, err
	}
	pkt := env.GetPacket()
	if pkt == nil {
		return Event{}, false, nil
	}

	channel := channelFromTopic(topic)
	if channel == "" {
		channel = env.GetChannelId()
	}

	data, err := c.decodedPayload(pkt, channel)
	if err != nil {
		return Event{}, false, err
	}
	if data == nil {
		return Event{}, false, nil
	}

	receivedAt := c.now()
	ts := PacketTimestamp(pkt.GetRxTime(), receivedAt)
	if ts.After(receivedAt) {
		return Event{}, false, nil
	}

	typ, portnum := classifyPortnum(data.GetPortnum())
	if typ == EventUnknown {
		// Per the frame codec contract, unrecognized portnums are not
		// forwarded to the ingest pipeline at all.
		return Event{}, false, nil
	}

	ev := Event{
		PacketID:  pkt.GetId(),
		From:      pkt.GetFrom(),
		To:        pkt.GetTo(),
		Channel:   channel,
		SenderHex: FormatNodeHex(pkt.GetFrom()),
		Timestamp: ts,
		Type:      typ,
		Portnum:   portnum,
		Payload:   data.GetPayload(),
		Topic:     topic,
	}
	return ev, true, nil
}

// channelFromTopic extracts the channel name from the second-to-last
// slash-separated segment of a /2/e/ or /2/map topic.
func channelFromTopic(topic string) string {
	segs := strings.Split(strings.TrimRight(topic, "/"), "/")
	if len(segs) < 2 {
		return ""
	}
	return segs[len(segs)-2]
}

// decodedPayload returns the packet's Data, decrypting it first if the
// packet arrived in its encrypted payload variant.
func (c *Codec) decodedPayload(pkt *meshtastic.MeshPacket, channel string) (*meshtastic.Data, error) {
	switch v := pkt.GetPayloadVariant().(type) {
	case *meshtastic.MeshPacket_Decoded:
		return v.Decoded, nil
	case *meshtastic.MeshPacket_Encrypted:
		key := DefaultKey
		if c.Keys != nil {
			if b64, ok := c.Keys(channel); ok {
				k, err := ParseKey(b64)
				if err != nil {
					return nil, ErrDecrypt
				}
				key = k
			}
		}
		plain, err := decrypt(v.Encrypted, key, pkt.GetId(), pkt.GetFrom())
		if err != nil {
			return nil, ErrDecrypt
		}
		var data meshtastic.Data
		if err := proto.Unmarshal(plain, &data); err != nil {
			return nil, ErrDecrypt
		}
		return &data, nil
	default:
		return nil, ErrUnknownPayloadVariant
	}
}

func classifyPortnum(p meshtastic.PortNum) (EventType, int32) {
	switch p {
	case meshtastic.PortNum_MAP_REPORT_APP:
		return EventMapReport, 0
	case meshtastic.PortNum_NEIGHBORINFO_APP:
		return EventNeighborInfo, 0
	case meshtastic.PortNum_NODEINFO_APP:
		return EventNodeInfo, 0
	case meshtastic.PortNum_POSITION_APP:
		return EventPosition, 0
	case meshtastic.PortNum_TELEMETRY_APP:
		return EventTelemetry, 0
	default:
		return EventUnknown, int32(p)
	}
}
