package radio

import (
	"errors"
	"testing"
	"time"

	meshtastic "buf.build/gen/go/meshtastic/protobufs/protocolbuffers/go/meshtastic"
	"google.golang.org/protobuf/proto"
)

func marshalEnvelope(t *testing.T, env *meshtastic.ServiceEnvelope) []byte {
	t.Helper()
	b, err := proto.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return b
}

func TestClassifyTopic(t *testing.T) {
	cases := []struct {
		topic string
		want  TopicKind
	}{
		{"msh/US/2/e/LongFast/!aabbccdd", TopicProto},
		{"msh/US/2/map/", TopicProto},
		{"msh/US/2/json/LongFast/!aabbccdd", TopicJSON},
		{"msh/US/2/stat/LongFast/!aabbccdd", TopicIgnored},
		{"msh/#", TopicIgnored},
		{"msh/US/2/c/LongFast/!aabbccdd", TopicIgnored},
	}
	for _, tc := range cases {
		if got := ClassifyTopic(tc.topic); got != tc.want {
			t.Errorf("ClassifyTopic(%q) = %v, want %v", tc.topic, got, tc.want)
		}
	}
}

func TestDecodeDecodedVariant(t *testing.T) {
	data := &meshtastic.Data{
		Portnum: meshtastic.PortNum_POSITION_APP,
		Payload: []byte{1, 2, 3},
	}
	pkt := &meshtastic.MeshPacket{
		Id:   42,
		From: 0xaabbccdd,
		To:   0xffffffff,
		PayloadVariant: &meshtastic.MeshPacket_Decoded{Decoded: data},
	}
	env := &meshtastic.ServiceEnvelope{Packet: pkt, ChannelId: "LongFast"}

	c := NewCodec(nil)
	fixed := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c.Now = func() time.Time { return fixed }

	ev, ok, err := c.Decode("msh/US/2/e/LongFast/!aabbccdd", marshalEnvelope(t, env))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !ok {
		t.Fatal("expected ok=true")
	}
	if ev.Type != EventPosition {
		t.Errorf("Type = %v, want EventPosition", ev.Type)
	}
	if ev.SenderHex != "!aabbccdd" {
		t.Errorf("SenderHex = %q, want !aabbccdd", ev.SenderHex)
	}
	if ev.Channel != "LongFast" {
		t.Errorf("Channel = %q, want LongFast", ev.Channel)
	}
}

func TestDecodeEncryptedVariantWrongKeyDropsPacket(t *testing.T) {
	payload := make([]byte, 64)
	for i := range payload {
		payload[i] = byte(i)
	}
	data := &meshtastic.Data{Portnum: meshtastic.PortNum_TELEMETRY_APP, Payload: payload}
	plain, err := proto.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	cipherBytes, err := encryptForTest(plain, DefaultKey, 7, 0x11223344)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pkt := &meshtastic.MeshPacket{
		Id:   7,
		From: 0x11223344,
		PayloadVariant: &meshtastic.MeshPacket_Encrypted{Encrypted: cipherBytes},
	}
	env := &meshtastic.ServiceEnvelope{Packet: pkt, ChannelId: "Other"}

	wrongKey := "AAAAAAAAAAAAAAAAAAAAAA=="
	c := NewCodec(func(channel string) (string, bool) { return wrongKey, true })

	// Wrong-key plaintext is garbage: either the Data unmarshal fails
	// (ErrDecrypt) or it parses to an unknown portnum. Both end in a drop,
	// never a delivered event.
	_, ok, err := c.Decode("msh/US/2/e/Other/!11223344", marshalEnvelope(t, env))
	if ok {
		t.Fatal("expected no event with wrong key")
	}
	if err != nil && !errors.Is(err, ErrDecrypt) {
		t.Fatalf("unexpected error kind: %v", err)
	}
}

func TestDecodeEncryptedVariantDefaultKeySucceeds(t *testing.T) {
	data := &meshtastic.Data{Portnum: meshtastic.PortNum_NODEINFO_APP, Payload: []byte{5}}
	plain, err := proto.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	cipherBytes, err := encryptForTest(plain, DefaultKey, 3, 0x99)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	pkt := &meshtastic.MeshPacket{
		Id:   3,
		From: 0x99,
		PayloadVariant: &meshtastic.MeshPacket_Encrypted{Encrypted: cipherBytes},
	}
	env := &meshtastic.ServiceEnvelope{Packet: pkt, ChannelId: "LongFast"}

	c := NewCodec(func(channel string) (string, bool) { return "", false })
	ev, ok, err := c.Decode("msh/US/2/e/LongFast/!00000099", marshalEnvelope(t, env))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !ok || ev.Type != EventNodeInfo {
		t.Fatalf("Decode ok=%v type=%v, want true/EventNodeInfo", ok, ev.Type)
	}
}

func TestDecodeIgnoredTopic(t *testing.T) {
	c := NewCodec(nil)
	_, ok, err := c.Decode("msh/#", []byte("whatever"))
	if err != nil || ok {
		t.Fatalf("Decode(#) = ok=%v err=%v, want false/nil", ok, err)
	}
}

// encryptForTest mirrors decrypt since AES-CTR is symmetric.
func encryptForTest(plain, key []byte, packetID, from uint32) ([]byte, error) {
	return decrypt(plain, key, packetID, from)
}
