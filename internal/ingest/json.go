package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/snarg/meshgw/internal/radio"
)

// jsonMessage is the shape of a /2/json/ payload the gateway cares about.
// Only type=="nodeinfo" messages are looked at, and only for the sender id:
// the JSON export has a history of mangling non-ASCII long/short names, so
// name fields are never read on this path, and a nodeinfo without its names
// fails the required-fields gate that the protobuf path enforces.
type jsonMessage struct {
	Type    string `json:"type"`
	Payload struct {
		ID string `json:"id"`
	} `json:"payload"`
}

// handleJSON parses the /2/json/ branch. Because the name fields are
// untrusted here, no NodeInfo row is ever written from this source; the
// message only marks its node as heard. Complete node info arrives via the
// protobuf NODEINFO_APP path.
func (p *Pipeline) handleJSON(topic string, payload []byte) {
	var msg jsonMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		p.log.Debug().Err(err).Str("topic", topic).Msg("ingest: invalid json payload, dropping")
		return
	}
	if msg.Type != "nodeinfo" {
		return
	}

	nodeID, err := radio.ParseNodeNum(msg.Payload.ID)
	if err != nil || nodeID == 0 {
		return
	}

	ctx := context.Background()
	if err := p.registry.Ensure(ctx, nodeID, time.Now().UTC()); err != nil {
		p.log.Error().Err(err).Str("topic", topic).Msg("ingest: ensure node failed for json nodeinfo")
	}
}
