// Package meshconfig loads the nested Meshtastic/MQTT settings that the
// flat internal/config package can't express cleanly: channel key lists and
// per-broker MQTT client definitions. The whole document is re-read on
// change; the MQTT client list is only consumed once at startup.
package meshconfig

import (
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// ChannelKey is one entry of meshtastic.channels: a channel name and its
// base64-encoded AES-128-CTR key.
type ChannelKey struct {
	Name string `mapstructure:"name"`
	Key  string `mapstructure:"key"`
}

// ClientConfig is one entry of mqtt.client: a broker group sharing
// credentials and a topic list.
type ClientConfig struct {
	Hosts         []string      `mapstructure:"hosts"`
	Port          int           `mapstructure:"port"`
	Identifier    string        `mapstructure:"identifier"`
	Username      string        `mapstructure:"username"`
	Password      string        `mapstructure:"password"`
	Topics        []string      `mapstructure:"topics"`
	RetryTime     time.Duration `mapstructure:"retryTime"`
	ShowErrorLog  bool          `mapstructure:"showErrorLog"`
}

// PositionConfig holds the position-retention/fuzzing knobs.
type PositionConfig struct {
	MaxQueryPeriod   int `mapstructure:"maxQueryPeriod"`
	MaxPrecisionBits int `mapstructure:"maxPrecisionBits"`
}

// NeighborInfoConfig holds the neighbor-retention and map-distance knobs.
type NeighborInfoConfig struct {
	MaxQueryPeriod int     `mapstructure:"maxQueryPeriod"`
	MaxDistance    float64 `mapstructure:"maxDistance"`
}

// MeshtasticConfig is the `meshtastic` top-level YAML key.
type MeshtasticConfig struct {
	Position     PositionConfig     `mapstructure:"position"`
	NeighborInfo NeighborInfoConfig `mapstructure:"neighborinfo"`
	Channels     []ChannelKey       `mapstructure:"channels"`
}

// MQTTConfig is the `mqtt` top-level YAML key.
type MQTTConfig struct {
	Client []ClientConfig `mapstructure:"client"`
}

// Config is the full nested document loaded from the mesh config YAML file.
type Config struct {
	Timezone   string           `mapstructure:"timezone"`
	Meshtastic MeshtasticConfig `mapstructure:"meshtastic"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
}

func defaults(v *viper.Viper) {
	v.SetDefault("timezone", "UTC")
	v.SetDefault("meshtastic.position.maxQueryPeriod", 24)
	v.SetDefault("meshtastic.position.maxPrecisionBits", 32)
	v.SetDefault("meshtastic.neighborinfo.maxQueryPeriod", 24)
	v.SetDefault("meshtastic.neighborinfo.maxDistance", 1000)
}

// Validate checks the settings that the rest of the gateway depends on being
// sane; a config file that fails validation should abort startup rather than
// run with silently-wrong distance/retention gates.
func (c *Config) Validate() error {
	if c.Meshtastic.Position.MaxQueryPeriod <= 0 {
		return fmt.Errorf("meshtastic.position.maxQueryPeriod must be > 0")
	}
	if c.Meshtastic.Position.MaxPrecisionBits <= 0 || c.Meshtastic.Position.MaxPrecisionBits > 32 {
		return fmt.Errorf("meshtastic.position.maxPrecisionBits must be in (0, 32]")
	}
	if c.Meshtastic.NeighborInfo.MaxQueryPeriod <= 0 {
		return fmt.Errorf("meshtastic.neighborinfo.maxQueryPeriod must be > 0")
	}
	if c.Meshtastic.NeighborInfo.MaxDistance <= 0 {
		return fmt.Errorf("meshtastic.neighborinfo.maxDistance must be > 0")
	}
	if len(c.MQTT.Client) == 0 {
		return fmt.Errorf("mqtt.client must contain at least one entry")
	}
	for i, cl := range c.MQTT.Client {
		if len(cl.Hosts) == 0 {
			return fmt.Errorf("mqtt.client[%d].hosts must not be empty", i)
		}
		if len(cl.Topics) == 0 {
			return fmt.Errorf("mqtt.client[%d].topics must not be empty", i)
		}
		if cl.RetryTime <= 0 {
			return fmt.Errorf("mqtt.client[%d].retryTime must be > 0", i)
		}
	}
	return nil
}

// ChannelKeyMap holds the channel-name-to-key lookup consumed by the frame
// codec; it is swapped atomically on config reload so in-flight decodes
// never see a half-updated map.
type ChannelKeyMap struct {
	mu   sync.RWMutex
	byName map[string]string
}

func newChannelKeyMap(channels []ChannelKey) *ChannelKeyMap {
	m := &ChannelKeyMap{byName: make(map[string]string, len(channels))}
	for _, c := range channels {
		m.byName[c.Name] = c.Key
	}
	return m
}

// Lookup returns the base64 key for a channel name, and whether it was found.
func (m *ChannelKeyMap) Lookup(name string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	k, ok := m.byName[name]
	return k, ok
}

func (m *ChannelKeyMap) replace(channels []ChannelKey) {
	next := make(map[string]string, len(channels))
	for _, c := range channels {
		next[c.Name] = c.Key
	}
	m.mu.Lock()
	m.byName = next
	m.mu.Unlock()
}

// Loader owns the viper instance, the current parsed Config, and the
// hot-reloadable channel-key map.
type Loader struct {
	v    *viper.Viper
	mu   sync.RWMutex
	cur  *Config
	keys *ChannelKeyMap
}

// Load reads the mesh config YAML at path and validates it.
func Load(path string) (*Loader, error) {
	v := viper.New()
	v.SetConfigFile(path)
	defaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading mesh config %s: %w", path, err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling mesh config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &Loader{
		v:    v,
		cur:  cfg,
		keys: newChannelKeyMap(cfg.Meshtastic.Channels),
	}, nil
}

// Current returns the most recently loaded config snapshot.
func (l *Loader) Current() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cur
}

// ChannelKeys returns the hot-reloadable channel key map.
func (l *Loader) ChannelKeys() *ChannelKeyMap {
	return l.keys
}

// WatchChannelKeys starts an fsnotify watch on the config file via viper and
// on change re-reads and validates the whole document, then swaps in both
// the snapshot returned by Current and the channel key map. An invalid
// document keeps the previous config. Readers of Current (retention,
// distance and precision settings) see the new values; the MQTT client list
// handed to the supervisor at startup is not re-applied.
func (l *Loader) WatchChannelKeys(onError func(error)) {
	l.v.OnConfigChange(func(_ fsnotify.Event) {
		var cfg Config
		if err := l.v.Unmarshal(&cfg); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reload mesh config: %w", err))
			}
			return
		}
		if err := cfg.Validate(); err != nil {
			if onError != nil {
				onError(fmt.Errorf("reloaded mesh config invalid, keeping previous: %w", err))
			}
			return
		}

		l.mu.Lock()
		l.cur = &cfg
		l.mu.Unlock()
		l.keys.replace(cfg.Meshtastic.Channels)
	})
	l.v.WatchConfig()
}
