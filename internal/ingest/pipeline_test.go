package ingest

import (
	"encoding/json"
	"math"
	"testing"
	"time"
)

func TestIsValidLatLon(t *testing.T) {
	cases := []struct {
		lat, lon float64
		want     bool
	}{
		{25.0330, 121.5654, true},
		{-90, 180, true},
		{90.0001, 0, false},
		{0, -180.5, false},
		{0, 0, false}, // null island is treated as "no fix"
		{0, 0.001, true},
	}
	for _, tc := range cases {
		if got := isValidLatLon(tc.lat, tc.lon); got != tc.want {
			t.Errorf("isValidLatLon(%v, %v) = %v, want %v", tc.lat, tc.lon, got, tc.want)
		}
	}
}

func TestTruncateToHour(t *testing.T) {
	in := time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.UTC)
	want := time.Date(2026, 3, 14, 15, 0, 0, 0, time.UTC)
	if got := truncateToHour(in); !got.Equal(want) {
		t.Errorf("truncateToHour(%v) = %v, want %v", in, got, want)
	}
}

func TestF32PtrNaNSafe(t *testing.T) {
	if got := f32PtrNaNSafe(nil); got != nil {
		t.Errorf("f32PtrNaNSafe(nil) = %v, want nil", got)
	}

	nan := float32(math.NaN())
	if got := f32PtrNaNSafe(&nan); got != nil {
		t.Errorf("f32PtrNaNSafe(NaN) = %v, want nil (NaN coerced to null)", got)
	}

	v := float32(3.82)
	got := f32PtrNaNSafe(&v)
	if got == nil || *got != v {
		t.Fatalf("f32PtrNaNSafe(%v) = %v, want copy of input", v, got)
	}
	if got == &v {
		t.Error("f32PtrNaNSafe must copy, not alias, the input")
	}
}

func TestJSONMessageUnmarshal(t *testing.T) {
	// The broker's JSON export carries hardware/role enum numbers and
	// longname/shortname; only the sender id is read on this path.
	raw := `{"type":"nodeinfo","from":123,"payload":{"hardware":255,"id":"!b1231321","longname":"Mydevuce","role":0,"shortname":"devs"}}`

	var msg jsonMessage
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if msg.Type != "nodeinfo" {
		t.Errorf("Type = %q, want nodeinfo", msg.Type)
	}
	if msg.Payload.ID != "!b1231321" {
		t.Errorf("Payload.ID = %q, want !b1231321", msg.Payload.ID)
	}
}

func TestRejectFirmware(t *testing.T) {
	cases := []struct {
		fw   string
		want bool
	}{
		{"", true},
		{"2.3.1.abcdef", true},
		{"2.3.10.abcdef", false},
		{"2.3.2.abcdef", false},
		{"2.4.0.abcdef", false},
	}
	for _, tc := range cases {
		if got := rejectFirmware(tc.fw); got != tc.want {
			t.Errorf("rejectFirmware(%q) = %v, want %v", tc.fw, got, tc.want)
		}
	}
}
