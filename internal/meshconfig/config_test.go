package meshconfig

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

const sampleYAML = `
timezone: UTC
meshtastic:
  position:
    maxQueryPeriod: 24
    maxPrecisionBits: 13
  neighborinfo:
    maxQueryPeriod: 24
    maxDistance: 1000
  channels:
    - name: LongFast
      key: "1PG7OiApB1nwvP+rz05pAQ=="
mqtt:
  client:
    - hosts: ["mqtt.example.org"]
      port: 1883
      identifier: gw-1
      topics: ["msh/#"]
      retryTime: 5s
      showErrorLog: true
`

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "meshgw.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	loader, err := Load(writeConfig(t, sampleYAML))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	cfg := loader.Current()
	if cfg.Meshtastic.Position.MaxPrecisionBits != 13 {
		t.Errorf("MaxPrecisionBits = %d, want 13", cfg.Meshtastic.Position.MaxPrecisionBits)
	}
	if len(cfg.MQTT.Client) != 1 {
		t.Fatalf("len(MQTT.Client) = %d, want 1", len(cfg.MQTT.Client))
	}
	if cfg.MQTT.Client[0].RetryTime != 5*time.Second {
		t.Errorf("RetryTime = %v, want 5s", cfg.MQTT.Client[0].RetryTime)
	}

	key, ok := loader.ChannelKeys().Lookup("LongFast")
	if !ok || key != "1PG7OiApB1nwvP+rz05pAQ==" {
		t.Errorf("ChannelKeys().Lookup(LongFast) = %q, %v", key, ok)
	}
}

func TestLoadMissingClientTopics(t *testing.T) {
	bad := sampleYAML
	_, err := Load(writeConfig(t, bad+"\n")) // sanity: valid config loads
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	noTopics := `
meshtastic:
  position: {maxQueryPeriod: 1, maxPrecisionBits: 10}
  neighborinfo: {maxQueryPeriod: 1, maxDistance: 10}
mqtt:
  client:
    - hosts: ["h"]
      retryTime: 1s
`
	_, err = Load(writeConfig(t, noTopics))
	if err == nil {
		t.Fatal("expected validation error for missing topics")
	}
}

func TestChannelKeyMapReplace(t *testing.T) {
	m := newChannelKeyMap([]ChannelKey{{Name: "A", Key: "k1"}})
	if _, ok := m.Lookup("B"); ok {
		t.Fatal("unexpected key B present")
	}
	m.replace([]ChannelKey{{Name: "B", Key: "k2"}})
	if _, ok := m.Lookup("A"); ok {
		t.Fatal("stale key A still present after replace")
	}
	if k, ok := m.Lookup("B"); !ok || k != "k2" {
		t.Fatalf("Lookup(B) = %q, %v", k, ok)
	}
}
