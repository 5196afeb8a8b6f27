package mqttclient

import (
	"context"
	"sync"
	"testing"
	"time"

	mqtt "github.com/mochi-mqtt/server/v2"
	"github.com/mochi-mqtt/server/v2/hooks/auth"
	"github.com/mochi-mqtt/server/v2/listeners"
	"github.com/rs/zerolog"

	"github.com/snarg/meshgw/internal/meshconfig"
)

// startBroker runs an embedded mochi-mqtt broker for the duration of the
// test, so the supervisor's reconnect loop can be exercised against a real
// TCP listener rather than a mock.
func startBroker(t *testing.T, addr string) {
	t.Helper()
	server := mqtt.New(nil)
	if err := server.AddHook(new(auth.AllowHook), nil); err != nil {
		t.Fatalf("add allow hook: %v", err)
	}
	tcp := listeners.NewTCP(listeners.Config{ID: "t1", Address: addr})
	if err := server.AddListener(tcp); err != nil {
		t.Fatalf("add listener: %v", err)
	}
	go func() {
		_ = server.Serve()
	}()
	t.Cleanup(func() { _ = server.Close() })
}

func TestSupervisorDeliversMessage(t *testing.T) {
	addr := "127.0.0.1:18830"
	startBroker(t, addr)
	time.Sleep(100 * time.Millisecond)

	var mu sync.Mutex
	var received []string
	done := make(chan struct{}, 1)

	handler := func(topic string, payload []byte) {
		mu.Lock()
		received = append(received, topic)
		mu.Unlock()
		select {
		case done <- struct{}{}:
		default:
		}
	}

	sup := NewSupervisor(handler, zerolog.Nop())
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	clients := []meshconfig.ClientConfig{{
		Hosts:        []string{"127.0.0.1"},
		Port:         18830,
		Identifier:   "test",
		Topics:       []string{"msh/#"},
		RetryTime:    time.Second,
		ShowErrorLog: true,
	}}

	go sup.Run(ctx, clients)

	// Give the worker time to connect before publishing.
	time.Sleep(300 * time.Millisecond)
	publishTestMessage(t, addr, "msh/US/2/e/LongFast/!aabbccdd", []byte("hello"))

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for delivered message")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(received) == 0 || received[0] != "msh/US/2/e/LongFast/!aabbccdd" {
		t.Errorf("received = %v, want one msh topic", received)
	}
}

func publishTestMessage(t *testing.T, addr, topic string, payload []byte) {
	t.Helper()
	client, err := Connect(Options{
		BrokerURL: "tcp://" + addr,
		ClientID:  "test-publisher",
		Topics:    nil,
		Log:       zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("publisher connect: %v", err)
	}
	defer client.Close()

	token := client.conn.Publish(topic, 0, false, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		t.Fatalf("publish: %v", err)
	}
}

func TestSleepOrDoneReturnsFalseOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if sleepOrDone(ctx, time.Minute) {
		t.Error("expected sleepOrDone to return false when ctx already canceled")
	}
}
