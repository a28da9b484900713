// Package mqtt provides MQTT client connectivity for the LiteTouch bridge.
//
// This package manages:
//   - Connection to the Gray Logic broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support, restored on reconnect
//   - Last Will and Testament (LWT) for offline detection
//
// # Architecture
//
// The bridge sits between the lighting panel's serial/TCP link and the
// Gray Logic message bus. Commands arrive on graylogic/command/litetouch/+,
// panel state leaves on graylogic/state/litetouch/<address>.
//
//	Lighting panel ↔ LiteTouch bridge ↔ MQTT Broker ↔ Gray Logic Core
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT, mqtt.Will{
//	    Topic:   mqtt.Topic("health", "litetouch"),
//	    Payload: lwtPayload,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	err = client.Subscribe(mqtt.Topic("command", "litetouch", "+"), 1,
//	    func(topic string, payload []byte) error {
//	        return handleCommand(topic, payload)
//	    })
package mqtt
