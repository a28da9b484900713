// Package influxdb records LiteTouch panel state in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library for connection
// management, batched point writing, and health monitoring.
//
// # Measurements
//
//   - keypad_led: button LED state seen on the panel (RLEDU, CGLES, CGLED)
//   - load_level: levels the bridge set on loads
//   - panel_stats: periodic snapshot of the panel link counters
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	bridge, err := litetouch.NewBridge(litetouch.BridgeOptions{
//	    Recorder: client,
//	    // ...
//	})
//
// # Error Handling
//
// Writes are non-blocking and batch errors are delivered to the
// SetOnError callback. Connection and health check errors are
// returned directly.
package influxdb
