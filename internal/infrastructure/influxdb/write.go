package influxdb

import (
	"strconv"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/nerrad567/gray-logic-litetouch/internal/bridges/litetouch"
)

// Measurement names.
const (
	measurementKeypadLED  = "keypad_led"
	measurementLoadLevel  = "load_level"
	measurementPanelStats = "panel_stats"
)

// RecordLEDState writes a keypad button LED observation.
//
// The write is non-blocking; data is batched and sent asynchronously.
//
// Tags: device_id, keypad, button, source (the verb that reported it).
// Fields: state (bool), value (int; the raw CGLED status).
func (c *Client) RecordLEDState(deviceID string, ev litetouch.Event) {
	c.WritePoint(measurementKeypadLED,
		map[string]string{
			"device_id": deviceID,
			"keypad":    ev.Keypad,
			"button":    strconv.Itoa(ev.Button),
			"source":    string(ev.Kind),
		},
		map[string]any{
			"state": ev.State,
			"value": ev.Value,
		},
	)
}

// RecordLoadLevel writes a level the bridge set on a load.
//
// Example:
//
//	client.RecordLoadLevel("light-hall", 12, 50)
func (c *Client) RecordLoadLevel(deviceID string, load, level int) {
	c.WritePoint(measurementLoadLevel,
		map[string]string{
			"device_id": deviceID,
			"load":      strconv.Itoa(load),
		},
		map[string]any{
			"level": level,
		},
	)
}

// WritePanelStats writes a snapshot of the panel link counters.
func (c *Client) WritePanelStats(panel string, stats litetouch.Stats) {
	c.WritePoint(measurementPanelStats,
		map[string]string{
			"panel": panel,
			"state": stats.State.String(),
		},
		map[string]any{
			"connected":         stats.Connected,
			"frames_tx":         stats.FramesTx,
			"frames_rx":         stats.FramesRx,
			"events_delivered":  stats.EventsDelivered,
			"framing_errors":    stats.FramingErrors,
			"decode_errors":     stats.DecodeErrors,
			"unmatched_replies": stats.UnmatchedReplies,
			"query_timeouts":    stats.QueryTimeouts,
			"keepalives_sent":   stats.KeepalivesSent,
			"errors_total":      stats.ErrorsTotal,
			"reconnects_total":  stats.ReconnectsTotal,
		},
	)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]any) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writer.WritePoint(point)
}
