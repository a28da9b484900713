package mqtt

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-litetouch/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout is the maximum time to wait for publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the maximum QoS level supported.
	maxQoS = 2

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions maps the MQTT config to paho options. Sessions are
// clean; paho reconnects with backoff between the configured delays.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(cfg))
	opts.SetClientID(cfg.Broker.ClientID)
	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)
	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}

// brokerURL returns tcp:// or ssl:// host:port for the configured broker.
func brokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)
}

// Will is the Last Will and Testament registered with the broker.
type Will struct {
	// Topic the broker publishes to on unexpected disconnect.
	Topic string

	// Payload is the retained offline message.
	Payload []byte

	// Shutdown is published retained on Topic by Close.
	Shutdown []byte
}

// resolveWill fills unset fields with the system status topic and generic
// offline payloads.
func resolveWill(will Will, clientID string) Will {
	if will.Topic == "" {
		will.Topic = SystemStatusTopic
	}
	if len(will.Payload) == 0 {
		will.Payload = offlinePayload(clientID, "unexpected_disconnect")
	}
	if len(will.Shutdown) == 0 {
		will.Shutdown = offlinePayload(clientID, "graceful_shutdown")
	}
	return will
}

// configureLWT registers the will at QoS 1, retained, so a late subscriber
// still sees that the bridge is gone.
func configureLWT(opts *pahomqtt.ClientOptions, will Will) {
	opts.SetBinaryWill(will.Topic, will.Payload, 1, true)
}

func offlinePayload(clientID, reason string) []byte {
	return fmt.Appendf(nil,
		`{"status":"offline","client_id":%q,"reason":%q,"timestamp":%q}`,
		clientID, reason, time.Now().UTC().Format(time.RFC3339),
	)
}
