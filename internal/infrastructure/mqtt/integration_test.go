//go:build integration

package mqtt

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-litetouch/internal/infrastructure/config"
)

// Integration tests against a running MQTT broker at 127.0.0.1:1883.
//
// Run with:
//   go test -tags=integration -count=1 -v ./internal/infrastructure/mqtt/...

func integrationConfig(clientID string) config.MQTTConfig {
	cfg := testConfig()
	cfg.Broker.ClientID = clientID
	return cfg
}

func TestIntegration_SubscriptionTracking(t *testing.T) {
	client, err := Connect(integrationConfig("litetouch-int-sub-track"), Will{})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	topics := []string{
		Topic("command", "litetouch", "+"),
		Topic("request", "litetouch", "+"),
		Topic("health", "+"),
	}
	handler := func(string, []byte) error { return nil }

	for _, topic := range topics {
		if err := client.Subscribe(topic, 1, handler); err != nil {
			t.Fatalf("Subscribe(%s) error = %v", topic, err)
		}
	}
	if client.SubscriptionCount() != len(topics) {
		t.Errorf("SubscriptionCount() = %d, want %d", client.SubscriptionCount(), len(topics))
	}

	if err := client.Unsubscribe(topics[0]); err != nil {
		t.Fatalf("Unsubscribe() error = %v", err)
	}
	if client.HasSubscription(topics[0]) {
		t.Errorf("HasSubscription(%s) = true after unsubscribe", topics[0])
	}
}

func TestIntegration_MessageRoundtrip(t *testing.T) {
	pub, err := Connect(integrationConfig("litetouch-int-pub"), Will{})
	if err != nil {
		t.Fatalf("Connect() publisher error = %v", err)
	}
	defer pub.Close()

	sub, err := Connect(integrationConfig("litetouch-int-sub"), Will{})
	if err != nil {
		t.Fatalf("Connect() subscriber error = %v", err)
	}
	defer sub.Close()

	topic := Topic("state", "litetouch", "014_3")
	expected := `{"device_id":"kp-hall-3","state":{"on":true}}`

	received := make(chan string, 1)
	var once sync.Once
	err = sub.Subscribe(Topic("state", "litetouch", "+"), 1, func(_ string, p []byte) error {
		once.Do(func() { received <- string(p) })
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)

	if err := pub.Publish(topic, []byte(expected), 1, false); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	select {
	case msg := <-received:
		if msg != expected {
			t.Errorf("received = %q, want %q", msg, expected)
		}
	case <-time.After(5 * time.Second):
		t.Error("timeout waiting for message")
	}
}

func TestIntegration_CloseMarksWillTopicOffline(t *testing.T) {
	willTopic := "graylogic/int/health/litetouch"

	client, err := Connect(integrationConfig("litetouch-int-will"), Will{Topic: willTopic})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	watcher, err := Connect(integrationConfig("litetouch-int-watcher"), Will{})
	if err != nil {
		t.Fatalf("Connect() watcher error = %v", err)
	}
	defer watcher.Close()

	received := make(chan string, 4)
	err = watcher.Subscribe(willTopic, 1, func(_ string, p []byte) error {
		received <- string(p)
		return nil
	})
	if err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	client.Close()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case msg := <-received:
			if strings.Contains(msg, "graceful_shutdown") {
				return
			}
		case <-deadline:
			t.Fatal("timeout waiting for graceful offline message")
		}
	}
}

func TestIntegration_LoggerSet(t *testing.T) {
	client, err := Connect(integrationConfig("litetouch-int-logger"), Will{})
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer client.Close()

	client.SetLogger(&recordingLogger{})
	if client.hooks().logger == nil {
		t.Error("logger not set after SetLogger()")
	}

	client.SetLogger(nil)
	if client.hooks().logger != nil {
		t.Error("logger should be cleared by SetLogger(nil)")
	}
}
