package mqtt

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/nerrad567/gray-logic-litetouch/internal/infrastructure/config"
)

// Client is the bridge's connection to the Gray Logic broker.
//
// paho handles reconnection; Client adds a configurable Last Will, tracked
// subscriptions that are replayed after every reconnect, and handler
// wrapping so a panicking command handler cannot take the bridge down.
// All methods are safe for concurrent use.
type Client struct {
	client pahomqtt.Client
	cfg    config.MQTTConfig
	will   Will

	connected atomic.Bool

	subscriptions map[string]subscription
	subMu         sync.RWMutex

	hooksMu sync.RWMutex
	h       hooks
}

// hooks are the optional callbacks set after Connect.
type hooks struct {
	onConnect    func()
	onDisconnect func(err error)
	logger       Logger
}

// Logger is satisfied by *logging.Logger and *slog.Logger.
type Logger interface {
	Error(msg string, args ...any)
	Warn(msg string, args ...any)
}

type subscription struct {
	topic   string
	qos     byte
	handler MessageHandler
}

// MessageHandler receives one message. topic is the concrete topic, with
// wildcards expanded. A returned error is logged; it does not change
// acknowledgement. Handlers run on paho goroutines and should return
// promptly.
type MessageHandler func(topic string, payload []byte) error

// Connect dials the broker and returns once the session is up.
//
// The will is registered before dialling, so the broker publishes it if
// the process dies without calling Close. A zero Will falls back to the
// system status topic with a generic payload.
//
// Parameters:
//   - cfg: MQTT section of config.yaml
//   - will: Last Will, plus the message Close publishes on the same topic
//
// Returns:
//   - *Client: Connected client
//   - error: ErrConnectionFailed if the broker is not reached in time
func Connect(cfg config.MQTTConfig, will Will) (*Client, error) {
	c := newClient(cfg, will)
	opts := c.options()

	c.client = pahomqtt.NewClient(opts)
	if err := awaitConnect(c.client.Connect()); err != nil {
		return nil, err
	}

	// The OnConnect callback runs on its own goroutine and may lag behind.
	c.connected.Store(true)
	return c, nil
}

func newClient(cfg config.MQTTConfig, will Will) *Client {
	return &Client{
		cfg:           cfg,
		will:          resolveWill(will, cfg.Broker.ClientID),
		subscriptions: make(map[string]subscription),
	}
}

// options builds the paho options with this client's callbacks attached.
func (c *Client) options() *pahomqtt.ClientOptions {
	opts := buildClientOptions(c.cfg)
	configureLWT(opts, c.will)

	opts.SetOnConnectHandler(func(pahomqtt.Client) { c.handleConnect() })
	opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) { c.handleDisconnect(err) })
	opts.SetReconnectingHandler(func(pahomqtt.Client, *pahomqtt.ClientOptions) {
		if log := c.hooks().logger; log != nil {
			log.Warn("MQTT reconnecting", "broker", brokerURL(c.cfg))
		}
	})
	return opts
}

func awaitConnect(token pahomqtt.Token) error {
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("%w: %w after %v", ErrConnectionFailed, ErrTimeout, defaultConnectTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}
	return nil
}

func (c *Client) handleConnect() {
	c.connected.Store(true)
	c.restoreSubscriptions()

	if fn := c.hooks().onConnect; fn != nil {
		fn()
	}
}

func (c *Client) handleDisconnect(err error) {
	c.connected.Store(false)

	if fn := c.hooks().onDisconnect; fn != nil {
		fn(err)
	}
}

// restoreSubscriptions replays tracked subscriptions after a reconnect.
// A clean session means the broker has forgotten them.
func (c *Client) restoreSubscriptions() {
	c.subMu.RLock()
	subs := make([]subscription, 0, len(c.subscriptions))
	for _, s := range c.subscriptions {
		subs = append(subs, s)
	}
	c.subMu.RUnlock()

	for _, s := range subs {
		err := awaitToken(c.client.Subscribe(s.topic, s.qos, c.wrapHandler(s.handler)), ErrSubscribeFailed)
		if err != nil {
			if log := c.hooks().logger; log != nil {
				log.Warn("MQTT resubscribe failed", "topic", s.topic, "error", err)
			}
		}
	}
}

// Close publishes the will's shutdown message, retained, then disconnects.
// The broker does not send the will itself after a clean disconnect.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}

	if c.IsConnected() {
		token := c.client.Publish(c.will.Topic, byte(c.cfg.QoS), true, c.will.Shutdown)
		token.WaitTimeout(defaultPublishTimeout)
	}
	c.client.Disconnect(defaultDisconnectQuiesce)
	c.connected.Store(false)
	return nil
}

// HealthCheck reports ErrNotConnected while the session is down.
func (c *Client) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("mqtt health check: %w", err)
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// IsConnected reports the last known session state.
func (c *Client) IsConnected() bool {
	return c.connected.Load() && c.client != nil && c.client.IsConnected()
}

// SetOnConnect registers fn to run after the initial connect and every
// reconnect, once subscriptions have been restored.
func (c *Client) SetOnConnect(fn func()) {
	c.hooksMu.Lock()
	c.h.onConnect = fn
	c.hooksMu.Unlock()
}

// SetOnDisconnect registers fn to run when the session drops.
func (c *Client) SetOnDisconnect(fn func(err error)) {
	c.hooksMu.Lock()
	c.h.onDisconnect = fn
	c.hooksMu.Unlock()
}

// SetLogger enables logging of handler errors, panics and reconnects.
func (c *Client) SetLogger(logger Logger) {
	c.hooksMu.Lock()
	c.h.logger = logger
	c.hooksMu.Unlock()
}

func (c *Client) hooks() hooks {
	c.hooksMu.RLock()
	defer c.hooksMu.RUnlock()
	return c.h
}

// wrapHandler adapts handler to paho, recovering panics and logging errors.
func (c *Client) wrapHandler(handler MessageHandler) pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				if log := c.hooks().logger; log != nil {
					log.Error("MQTT handler panic recovered", "topic", msg.Topic(), "panic", r)
				}
			}
		}()

		if err := handler(msg.Topic(), msg.Payload()); err != nil {
			if log := c.hooks().logger; log != nil {
				log.Warn("MQTT handler returned error", "topic", msg.Topic(), "error", err)
			}
		}
	}
}
