package litetouch

import (
	"context"
	"encoding/json"
	"testing"
	"time"
)

func newTestReporter(mqtt *MockMQTTClient, panel *MockConnector, interval time.Duration) *HealthReporter {
	return NewHealthReporter(HealthReporterConfig{
		BridgeID:     "test-bridge",
		Version:      "1.0.0",
		PanelAddress: "10.0.0.5:10001",
		Interval:     interval,
		Publisher:    mqtt,
		Panel:        panel,
	})
}

func decodeHealth(t *testing.T, p mockPublish) HealthMessage {
	t.Helper()
	var msg HealthMessage
	if err := json.Unmarshal(p.Payload, &msg); err != nil {
		t.Fatalf("unmarshal health: %v", err)
	}
	return msg
}

func TestHealthReporterDefaultInterval(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{BridgeID: "b"})
	if h.cfg.Interval != defaultHealthInterval {
		t.Errorf("interval = %v, want %v", h.cfg.Interval, defaultHealthInterval)
	}
}

func TestHealthReporterPublishNow(t *testing.T) {
	mqtt := NewMockMQTTClient()
	panel := NewMockConnector()
	panel.stats = Stats{
		FramesTx:        4,
		FramesRx:        9,
		EventsDelivered: 27,
		DecodeErrors:    1,
		FramingErrors:   2,
		KeepalivesSent:  3,
		ReconnectsTotal: 1,
		LastActivity:    time.Now(),
		State:           StateConnected,
		Connected:       true,
	}
	h := newTestReporter(mqtt, panel, time.Minute)
	h.SetDeviceCount(5)

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error: %v", err)
	}

	msgs := mqtt.GetPublished()
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].Topic != HealthTopic() || !msgs[0].Retained || msgs[0].QoS != 1 {
		t.Errorf("publish = %s qos=%d retained=%v", msgs[0].Topic, msgs[0].QoS, msgs[0].Retained)
	}

	msg := decodeHealth(t, msgs[0])
	if msg.Status != HealthHealthy {
		t.Errorf("status = %s, want healthy", msg.Status)
	}
	if msg.Bridge != "test-bridge" || msg.Version != "1.0.0" || msg.DevicesManaged != 5 {
		t.Errorf("message = %+v", msg)
	}
	if msg.Connection == nil || msg.Connection.Status != "connected" || msg.Connection.Address != "10.0.0.5:10001" {
		t.Errorf("connection = %+v", msg.Connection)
	}
	if msg.Connection.LastActivity == nil {
		t.Error("last activity should be set")
	}
	st := msg.Statistics
	if st == nil || st.FramesSent != 4 || st.FramesReceived != 9 || st.Events != 27 || st.DecodeErrors != 3 {
		t.Errorf("statistics = %+v", st)
	}
}

func TestHealthReporterDegraded(t *testing.T) {
	tests := []struct {
		name       string
		mqttUp     bool
		panelUp    bool
		wantReason string
	}{
		{"panel disconnected", true, false, "panel disconnected"},
		{"mqtt disconnected", false, true, "MQTT disconnected"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mqtt := NewMockMQTTClient()
			mqtt.SetConnected(tt.mqttUp)
			panel := NewMockConnector()
			panel.SetConnected(tt.panelUp)

			h := newTestReporter(mqtt, panel, time.Minute)
			if err := h.PublishNow(); err != nil {
				t.Fatalf("PublishNow() error: %v", err)
			}

			msg := decodeHealth(t, mqtt.GetPublished()[0])
			if msg.Status != HealthDegraded {
				t.Errorf("status = %s, want degraded", msg.Status)
			}
			if msg.Reason != tt.wantReason {
				t.Errorf("reason = %q, want %q", msg.Reason, tt.wantReason)
			}
		})
	}
}

func TestHealthReporterPublishStarting(t *testing.T) {
	mqtt := NewMockMQTTClient()
	h := newTestReporter(mqtt, NewMockConnector(), time.Minute)

	if err := h.PublishStarting(); err != nil {
		t.Fatalf("PublishStarting() error: %v", err)
	}
	msg := decodeHealth(t, mqtt.GetPublished()[0])
	if msg.Status != HealthStarting {
		t.Errorf("status = %s, want starting", msg.Status)
	}
}

func TestHealthReporterPanelNotAnswering(t *testing.T) {
	mqtt := NewMockMQTTClient()
	panel := NewMockConnector()
	h := newTestReporter(mqtt, panel, time.Minute)

	steps := []struct {
		timeouts, rx uint64
		wantStatus   HealthStatus
		wantReason   string
	}{
		{0, 5, HealthHealthy, ""},
		{1, 5, HealthDegraded, "panel not answering queries"},
		{1, 5, HealthHealthy, ""},
		{2, 6, HealthHealthy, ""},
	}

	for i, step := range steps {
		panel.stats = Stats{State: StateConnected, Connected: true, QueryTimeouts: step.timeouts, FramesRx: step.rx}
		if err := h.PublishNow(); err != nil {
			t.Fatalf("step %d: PublishNow() error: %v", i, err)
		}
		msgs := mqtt.GetPublished()
		msg := decodeHealth(t, msgs[len(msgs)-1])
		if msg.Status != step.wantStatus || msg.Reason != step.wantReason {
			t.Errorf("step %d: status = %s %q, want %s %q", i, msg.Status, msg.Reason, step.wantStatus, step.wantReason)
		}
	}
}

func TestHealthReporterStartStop(t *testing.T) {
	mqtt := NewMockMQTTClient()
	h := newTestReporter(mqtt, NewMockConnector(), 20*time.Millisecond)

	h.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for len(mqtt.GetPublished()) < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := len(mqtt.GetPublished()); n < 2 {
		t.Fatalf("periodic messages = %d, want at least 2", n)
	}

	h.Stop()
	h.Stop()

	msgs := mqtt.GetPublished()
	last := decodeHealth(t, msgs[len(msgs)-1])
	if last.Status != HealthStopping {
		t.Errorf("final status = %s, want stopping", last.Status)
	}

	count := len(msgs)
	time.Sleep(60 * time.Millisecond)
	if len(mqtt.GetPublished()) != count {
		t.Error("no messages should be published after Stop()")
	}
}

func TestHealthReporterStopsOnContextCancel(t *testing.T) {
	mqtt := NewMockMQTTClient()
	h := newTestReporter(mqtt, NewMockConnector(), 10*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	h.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		h.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop() did not return after context cancel")
	}
}

func TestHealthReporterWithNoPublisher(t *testing.T) {
	h := NewHealthReporter(HealthReporterConfig{BridgeID: "b"})
	if err := h.PublishNow(); err != nil {
		t.Errorf("PublishNow() without publisher = %v, want nil", err)
	}
	h.Stop()
}

func TestHealthReporterUptime(t *testing.T) {
	mqtt := NewMockMQTTClient()
	h := newTestReporter(mqtt, NewMockConnector(), time.Minute)
	h.started = time.Now().Add(-90 * time.Second)

	if err := h.PublishNow(); err != nil {
		t.Fatalf("PublishNow() error: %v", err)
	}
	msg := decodeHealth(t, mqtt.GetPublished()[0])
	if msg.UptimeSeconds < 89 || msg.UptimeSeconds > 91 {
		t.Errorf("uptime = %d, want ~90", msg.UptimeSeconds)
	}
}
