package radio

import (
	"testing"
	"time"
)

func TestFormatNodeHex(t *testing.T) {
	if got := FormatNodeHex(0xaabbccdd); got != "!aabbccdd" {
		t.Errorf("FormatNodeHex(0xaabbccdd) = %q, want !aabbccdd", got)
	}
	if got := FormatNodeHex(0x99); got != "!00000099" {
		t.Errorf("FormatNodeHex(0x99) = %q, want !00000099 (zero-padded)", got)
	}
}

func TestParseNodeNum(t *testing.T) {
	cases := []struct {
		in      string
		want    uint32
		wantErr bool
	}{
		{"!aabbccdd", 0xaabbccdd, false},
		{"0xAABBCCDD", 0xaabbccdd, false},
		{"aabbccdd", 0xaabbccdd, false},
		{"12345678", 12345678, false},
		{" !00000099 ", 0x99, false},
		{"!zzzz", 0, true},
		{"", 0, true},
	}
	for _, tc := range cases {
		got, err := ParseNodeNum(tc.in)
		if (err != nil) != tc.wantErr {
			t.Errorf("ParseNodeNum(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("ParseNodeNum(%q) = %#x, want %#x", tc.in, got, tc.want)
		}
	}
}

func TestParseNodeNumRoundTrip(t *testing.T) {
	for _, id := range []uint32{0, 1, 0x99, 0xaabbccdd, 0xffffffff} {
		got, err := ParseNodeNum(FormatNodeHex(id))
		if err != nil || got != id {
			t.Errorf("round trip %#x: got %#x, err %v", id, got, err)
		}
	}
}

func TestPacketTimestamp(t *testing.T) {
	fallback := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	if got := PacketTimestamp(0, fallback); !got.Equal(fallback) {
		t.Errorf("PacketTimestamp(0) = %v, want fallback %v", got, fallback)
	}
	got := PacketTimestamp(1767225600, fallback)
	if got.Unix() != 1767225600 {
		t.Errorf("PacketTimestamp(epoch) = %v, want unix 1767225600", got)
	}
	if got.Location() != time.UTC {
		t.Errorf("PacketTimestamp must return UTC, got %v", got.Location())
	}
}
