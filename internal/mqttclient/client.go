// Package mqttclient runs one resilient subscriber per (broker-client
// config, host) pair (C4). Workers never exit voluntarily on connection
// failure: they sleep for the client's configured retry interval and
// reconnect, resubscribing to the same topic list, until their context is
// canceled.
package mqttclient

import (
	"sync/atomic"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

// MessageHandler receives every message delivered on any subscribed topic.
type MessageHandler func(topic string, payload []byte)

// Client wraps a single paho connection to one broker host. Reconnection is
// driven externally by Supervisor, not by paho's built-in auto-reconnect,
// so that retry timing and error-log gating follow the client config
// exactly.
type Client struct {
	conn      mqtt.Client
	topics    []string
	connected atomic.Bool
	log       zerolog.Logger
	handler   MessageHandler
}

// Options configures a single broker connection attempt.
type Options struct {
	BrokerURL string
	ClientID  string
	Topics    []string
	Username  string
	Password  string
	Handler   MessageHandler
	Log       zerolog.Logger
}

// Connect opens one connection and blocks until it either succeeds or
// fails; it never retries internally. The handler must be supplied up
// front: subscriptions are issued from the connect callback, so messages
// can arrive before Connect returns.
func Connect(opts Options) (*Client, error) {
	c := &Client{
		topics:  opts.Topics,
		log:     opts.Log,
		handler: opts.Handler,
	}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(false).
		SetOrderMatters(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(c.onConnectionLost).
		SetDefaultPublishHandler(c.onMessage)

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	c.conn = mqtt.NewClient(clientOpts)
	token := c.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	c.connected.Store(true)

	return c, nil
}

func (c *Client) onConnect(client mqtt.Client) {
	c.connected.Store(true)
	c.log.Info().Strs("topics", c.topics).Msg("mqtt connected, subscribing")

	filters := make(map[string]byte, len(c.topics))
	for _, t := range c.topics {
		filters[t] = 0
	}
	token := client.SubscribeMultiple(filters, nil)
	token.Wait()
	if err := token.Error(); err != nil {
		c.log.Error().Err(err).Msg("mqtt subscribe failed")
	}
}

func (c *Client) onConnectionLost(_ mqtt.Client, err error) {
	c.connected.Store(false)
	c.log.Warn().Err(err).Msg("mqtt connection lost")
}

func (c *Client) onMessage(_ mqtt.Client, msg mqtt.Message) {
	if c.handler != nil {
		c.handler(msg.Topic(), msg.Payload())
		return
	}
	c.log.Debug().
		Str("topic", msg.Topic()).
		Int("payload_size", len(msg.Payload())).
		Msg("mqtt message received")
}

// IsConnected reports the most recently observed connection state.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// Close disconnects the underlying paho client.
func (c *Client) Close() {
	c.conn.Disconnect(250)
}
