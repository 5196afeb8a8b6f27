package radio

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FormatNodeHex renders a node number as Meshtastic's canonical "!xxxxxxxx"
// hex id.
func FormatNodeHex(num uint32) string {
	return fmt.Sprintf("!%08x", num)
}

// ParseNodeNum accepts the node id forms seen across admin tools and chat
// commands: "!xxxxxxxx", "0xXXXXXXXX", bare hex containing a-f, and bare
// decimal.
func ParseNodeNum(raw string) (uint32, error) {
	s := strings.TrimSpace(raw)
	switch {
	case strings.HasPrefix(s, "!"):
		v, err := strconv.ParseUint(s[1:], 16, 32)
		return uint32(v), err
	case strings.HasPrefix(s, "0x"), strings.HasPrefix(s, "0X"):
		v, err := strconv.ParseUint(s[2:], 16, 32)
		return uint32(v), err
	case containsHexLetter(s):
		v, err := strconv.ParseUint(s, 16, 32)
		return uint32(v), err
	default:
		v, err := strconv.ParseUint(s, 10, 32)
		return uint32(v), err
	}
}

func containsHexLetter(s string) bool {
	for _, r := range s {
		switch r {
		case 'a', 'b', 'c', 'd', 'e', 'f', 'A', 'B', 'C', 'D', 'E', 'F':
			return true
		}
	}
	return false
}

// PacketTimestamp resolves a protobuf epoch-seconds field to a time.Time,
// falling back to the supplied reference (typically message-receipt time)
// when the field is zero/absent.
func PacketTimestamp(epochSec uint32, fallback time.Time) time.Time {
	if epochSec == 0 {
		return fallback
	}
	return time.Unix(int64(epochSec), 0).UTC()
}

// ModemPresetUnknown is the filter token admitting nodes that have no
// stored modem preset (or no NodeInfo row at all). Stored presets use the
// wire enum names (LONG_FAST, MEDIUM_SLOW, ...) so filter tokens match the
// stored values byte for byte.
const ModemPresetUnknown = "UNKNOWN"
