package live

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/snarg/meshgw/internal/radio"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Map clients are served from the same origin as the read API; cross-origin
	// embedding isn't a supported deployment shape.
	CheckOrigin: func(r *http.Request) bool { return true },
}

const (
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// Handler upgrades an HTTP request to a websocket and streams Updates from
// b to the client as JSON until the connection closes.
func Handler(b *Broadcaster, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warn().Err(err).Msg("live: websocket upgrade failed")
			return
		}
		defer conn.Close()

		updates, unsubscribe := b.Subscribe()
		defer unsubscribe()

		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()

		for {
			select {
			case u, ok := <-updates:
				if !ok {
					return
				}
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteJSON(updateMessage(u)); err != nil {
					return
				}
			case <-ticker.C:
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}
}

func updateMessage(u Update) json.RawMessage {
	b, _ := json.Marshal(struct {
		Kind   string `json:"kind"`
		NodeID string `json:"node_id"`
		At     string `json:"at"`
	}{
		Kind:   u.Kind,
		NodeID: radio.FormatNodeHex(u.NodeID),
		At:     u.At.UTC().Format(time.RFC3339),
	})
	return b
}
