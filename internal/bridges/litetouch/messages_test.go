package litetouch

import (
	"encoding/json"
	"testing"
	"time"
)

func TestCommandMessageJSON(t *testing.T) {
	cmd := CommandMessage{
		ID:         "cmd-123",
		Timestamp:  time.Date(2026, 1, 20, 10, 30, 0, 0, time.UTC),
		DeviceID:   "light-hall",
		Command:    "dim",
		Parameters: map[string]any{"level": 50},
		Source:     "api",
		UserID:     "user-1",
	}

	data, err := json.Marshal(&cmd)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal to map failed: %v", err)
	}
	if ts, _ := raw["timestamp"].(string); ts != "2026-01-20T10:30:00Z" {
		t.Errorf("timestamp = %q, want 2026-01-20T10:30:00Z", ts)
	}

	var decoded CommandMessage
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if decoded.ID != cmd.ID || decoded.DeviceID != cmd.DeviceID || decoded.Command != cmd.Command {
		t.Errorf("decoded = %+v", decoded)
	}
	if !decoded.Timestamp.Equal(cmd.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", decoded.Timestamp, cmd.Timestamp)
	}
	if level, _ := decoded.Parameters["level"].(float64); level != 50 {
		t.Errorf("level = %v, want 50", decoded.Parameters["level"])
	}
}

func TestCommandMessageBadTimestamp(t *testing.T) {
	var cmd CommandMessage
	err := json.Unmarshal([]byte(`{"id":"x","timestamp":"yesterday"}`), &cmd)
	if err == nil {
		t.Error("Unmarshal should fail on a non-RFC3339 timestamp")
	}

	if err := json.Unmarshal([]byte(`{"id":"x","command":"on"}`), &cmd); err != nil {
		t.Errorf("missing timestamp should be accepted: %v", err)
	}
}

func TestNewAckMessage(t *testing.T) {
	cmd := CommandMessage{ID: "cmd-1", DeviceID: "light-hall"}
	ack := NewAckMessage(cmd, AckAccepted, "load_12")

	if ack.CommandID != "cmd-1" || ack.DeviceID != "light-hall" || ack.Address != "load_12" {
		t.Errorf("ack = %+v", ack)
	}
	if ack.Protocol != Protocol || ack.Status != AckAccepted || ack.Error != nil {
		t.Errorf("ack = %+v", ack)
	}
	if ack.Timestamp.IsZero() {
		t.Error("timestamp should be set")
	}
}

func TestNewAckError(t *testing.T) {
	cmd := CommandMessage{ID: "cmd-2", DeviceID: "kp-hall-1"}

	ack := NewAckError(cmd, "014_1", ErrCodePanelUnreachable, "not connected")
	if ack.Status != AckFailed {
		t.Errorf("status = %s, want failed", ack.Status)
	}
	if ack.Error == nil || ack.Error.Code != ErrCodePanelUnreachable || ack.Error.Message != "not connected" {
		t.Errorf("error = %+v", ack.Error)
	}

	if ack := NewAckError(cmd, "014_1", ErrCodeTimeout, "slow"); ack.Status != AckTimeout {
		t.Errorf("timeout status = %s, want timeout", ack.Status)
	}
}

func TestNewStateMessage(t *testing.T) {
	msg := NewStateMessage("kp-hall-3", Event{Kind: VerbLEDUpdate, Keypad: "014", Button: 3, State: true, Value: 1})
	if msg.DeviceID != "kp-hall-3" || msg.Address != "014_3" || msg.Source != "RLEDU" || msg.Protocol != Protocol {
		t.Errorf("message = %+v", msg)
	}
	if msg.State["on"] != true {
		t.Errorf("state.on = %v", msg.State["on"])
	}
	if _, ok := msg.State["value"]; ok {
		t.Error("RLEDU state should not carry a value")
	}

	single := NewStateMessage("kp-hall-3", Event{Kind: VerbGetLEDState, Keypad: "014", Button: 3, State: true, Value: 2})
	if single.State["value"] != 2 {
		t.Errorf("CGLED state.value = %v, want 2", single.State["value"])
	}
}

func TestNewHealthMessage(t *testing.T) {
	start := time.Now().Add(-time.Hour)
	stats := Stats{
		FramesTx:        10,
		FramesRx:        20,
		EventsDelivered: 30,
		QueryTimeouts:   1,
		ErrorsTotal:     2,
		State:           StateDisconnected,
	}

	msg := NewHealthMessage("bridge-1", "1.2.3", HealthDegraded, stats, 7, start)
	if msg.Bridge != "bridge-1" || msg.Version != "1.2.3" || msg.Status != HealthDegraded {
		t.Errorf("message = %+v", msg)
	}
	if msg.UptimeSeconds < 3599 {
		t.Errorf("uptime = %d, want ~3600", msg.UptimeSeconds)
	}
	if msg.DevicesManaged != 7 {
		t.Errorf("devices = %d, want 7", msg.DevicesManaged)
	}
	if msg.Connection.Status != "disconnected" || msg.Connection.LastActivity != nil {
		t.Errorf("connection = %+v", msg.Connection)
	}
	if msg.Statistics.QueryTimeouts != 1 || msg.Statistics.Errors != 2 {
		t.Errorf("statistics = %+v", msg.Statistics)
	}
}

func TestNewLWTMessage(t *testing.T) {
	msg := NewLWTMessage("bridge-1")
	if msg.Status != HealthOffline || msg.Reason != "unexpected_disconnect" || msg.Bridge != "bridge-1" {
		t.Errorf("LWT = %+v", msg)
	}
}

func TestTopicHelpers(t *testing.T) {
	tests := []struct {
		got  string
		want string
	}{
		{CommandTopic("load_12"), "graylogic/command/litetouch/load_12"},
		{AckTopic("014_3"), "graylogic/ack/litetouch/014_3"},
		{StateTopic("014_3"), "graylogic/state/litetouch/014_3"},
		{HealthTopic(), "graylogic/health/litetouch"},
		{RequestTopic("req-1"), "graylogic/request/litetouch/req-1"},
		{ResponseTopic("req-1"), "graylogic/response/litetouch/req-1"},
		{CommandSubscribeTopic(), "graylogic/command/litetouch/#"},
		{RequestSubscribeTopic(), "graylogic/request/litetouch/#"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("topic = %q, want %q", tt.got, tt.want)
		}
	}
}

func TestHealthMessageJSON(t *testing.T) {
	msg := NewLWTMessage("bridge-1")
	data, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	if _, ok := raw["connection"]; ok {
		t.Error("connection should be omitted when nil")
	}
	if _, ok := raw["statistics"]; ok {
		t.Error("statistics should be omitted when nil")
	}
	if raw["status"] != "offline" {
		t.Errorf("status = %v", raw["status"])
	}
}
