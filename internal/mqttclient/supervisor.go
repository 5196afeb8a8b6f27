package mqttclient

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/snarg/meshgw/internal/meshconfig"
)

// Supervisor runs one worker goroutine per (client config, host) pair,
// reconnecting each on failure according to that client's retry interval.
type Supervisor struct {
	log     zerolog.Logger
	handler MessageHandler
}

// NewSupervisor builds a Supervisor that delivers every received message to
// handler, tagged with which topic it arrived on.
func NewSupervisor(handler MessageHandler, log zerolog.Logger) *Supervisor {
	return &Supervisor{log: log, handler: handler}
}

// Run starts one worker per host of every configured client and blocks
// until ctx is canceled, at which point all workers are stopped and Run
// returns. Workers never exit voluntarily on their own.
func (s *Supervisor) Run(ctx context.Context, clients []meshconfig.ClientConfig) {
	var wg sync.WaitGroup
	for ci, cfg := range clients {
		for hi, host := range cfg.Hosts {
			wg.Add(1)
			go func(cfg meshconfig.ClientConfig, host string, ci, hi int) {
				defer wg.Done()
				s.worker(ctx, cfg, host, ci, hi)
			}(cfg, host, ci, hi)
		}
	}
	wg.Wait()
}

// worker owns one broker connection for the lifetime of the supervisor: on
// any connect/subscribe failure or connection loss it sleeps for the
// client's retry interval, then reconnects and resubscribes to the same
// topic list, until ctx is canceled.
func (s *Supervisor) worker(ctx context.Context, cfg meshconfig.ClientConfig, host string, ci, hi int) {
	clientID := cfg.Identifier
	if clientID == "" {
		clientID = fmt.Sprintf("meshgw-%d-%d", ci, hi)
	} else {
		clientID = fmt.Sprintf("%s-%d", clientID, hi)
	}

	brokerURL := fmt.Sprintf("tcp://%s:%d", host, cfg.Port)
	log := s.log.With().Str("broker", brokerURL).Str("client_id", clientID).Logger()

	for {
		if ctx.Err() != nil {
			return
		}

		client, err := Connect(Options{
			BrokerURL: brokerURL,
			ClientID:  clientID,
			Topics:    cfg.Topics,
			Username:  cfg.Username,
			Password:  cfg.Password,
			Handler:   s.handler,
			Log:       log,
		})
		if err != nil {
			if cfg.ShowErrorLog {
				log.Error().Err(err).Msg("mqtt connect failed, retrying")
			}
			if !sleepOrDone(ctx, cfg.RetryTime) {
				return
			}
			continue
		}

		// Block here until the connection is lost or ctx is canceled;
		// paho delivers messages on its own goroutines via onMessage.
		s.waitForDisconnectOrDone(ctx, client)
		client.Close()

		if ctx.Err() != nil {
			return
		}
		if cfg.ShowErrorLog {
			log.Warn().Msg("mqtt connection lost, reconnecting")
		}
		if !sleepOrDone(ctx, cfg.RetryTime) {
			return
		}
	}
}

func (s *Supervisor) waitForDisconnectOrDone(ctx context.Context, client *Client) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !client.IsConnected() {
				return
			}
		}
	}
}

// sleepOrDone sleeps for d, returning false early (without having slept the
// full duration) if ctx is canceled first.
func sleepOrDone(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
