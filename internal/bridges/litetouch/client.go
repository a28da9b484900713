package litetouch

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

// Transport names accepted by ClientOptions.Transport.
const (
	TransportTCP    = "tcp"
	TransportSerial = "serial"
)

// defaultBaudRate is the panel's RS-232 speed.
const defaultBaudRate = 9600

// ClientOptions configures a panel client.
type ClientOptions struct {
	// Transport selects "tcp" or "serial". Empty picks serial when
	// SerialPort is set and TCP otherwise.
	Transport string

	// Host and Port address the panel over TCP.
	Host string
	Port int

	// SerialPort and BaudRate address the panel over RS-232.
	// BaudRate default: 9600.
	SerialPort string
	BaudRate   int

	// Dial overrides the transport selection. Used by tests.
	Dial DialFunc

	// PollInterval is the read wait and the reconnect delay.
	// Default: 1 second.
	PollInterval time.Duration

	// KeepaliveIntervals is the number of idle polls before the
	// subscription is re-sent. Default: 120.
	KeepaliveIntervals int

	// SubscribeMask is the SIEVN event mask. Default: 7.
	SubscribeMask int

	// QueryTimeout bounds a LED query. Default: 3 seconds.
	QueryTimeout time.Duration

	// ConnectTimeout bounds one dial attempt. Default: 10 seconds.
	ConnectTimeout time.Duration

	// WriteTimeout bounds one frame write. Default: 5 seconds.
	WriteTimeout time.Duration

	// Logger receives client logs. Optional.
	Logger Logger

	// OnEvent receives LED events. Optional; see SetOnEvent.
	OnEvent EventHandler
}

// Stats holds operational statistics.
type Stats struct {
	FramesTx         uint64
	FramesRx         uint64
	EventsDelivered  uint64
	FramingErrors    uint64
	DecodeErrors     uint64
	UnmatchedReplies uint64
	QueryTimeouts    uint64
	KeepalivesSent   uint64
	ErrorsTotal      uint64
	ReconnectsTotal  uint64 // Successful reconnections
	LastActivity     time.Time
	State            ConnectionState
	Connected        bool
}

// Connector interface for testability.
// This allows mocking the panel client in tests.
type Connector interface {
	SetLoadLevel(ctx context.Context, load, level int) error
	SetLoadOn(ctx context.Context, load int) error
	SetLoadOff(ctx context.Context, load int) error
	ToggleSwitch(ctx context.Context, keypad, button int) error
	QueryLEDState(ctx context.Context, keypad, button int) (Event, error)
	QueryButtonLED(ctx context.Context, keypad, button int) (Event, error)
	SetOnEvent(handler EventHandler)
	IsConnected() bool
	Stats() Stats
	Close() error
}

// Ensure Client implements Connector.
var _ Connector = (*Client)(nil)

// Client talks to a LiteTouch panel.
//
// Thread Safety:
//   - All methods are safe for concurrent use.
//   - Events are delivered on the reader goroutine, in the order their
//     frames arrived. A slow handler delays every later frame.
//
// Queries:
//   - Only one LED query may be outstanding. A second concurrent query
//     fails with ErrQueryInFlight without sending anything.
//
// Reconnection:
//   - After any I/O failure the client waits one polling interval and
//     redials, indefinitely, until Close is called.
type Client struct {
	opts    ClientOptions
	conn    *connection
	pending pendingTracker
	log     logSink

	onEvent   EventHandler
	handlerMu sync.RWMutex

	closeOnce sync.Once

	eventsDelivered  atomic.Uint64
	decodeErrors     atomic.Uint64
	unmatchedReplies atomic.Uint64
	queryTimeouts    atomic.Uint64
}

// Connect dials the panel, subscribes to notifications and starts the
// reader.
//
// Parameters:
//   - ctx: Context for cancellation (used for the initial dial only)
//   - opts: Client options
//
// Returns:
//   - *Client: Connected client ready for use
//   - error: ErrConnectionFailed if the first dial fails
func Connect(ctx context.Context, opts ClientOptions) (*Client, error) {
	c, err := NewClient(opts)
	if err != nil {
		return nil, err
	}
	if err := c.conn.connect(ctx); err != nil {
		c.conn.close()
		return nil, err
	}
	c.conn.start()
	return c, nil
}

// NewClient builds a client without connecting it.
func NewClient(opts ClientOptions) (*Client, error) {
	dial, err := resolveDialer(&opts)
	if err != nil {
		return nil, err
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = defaultQueryTimeout
	}

	c := &Client{opts: opts, onEvent: opts.OnEvent}
	c.log.set(opts.Logger)
	c.conn = newConnection(connectionConfig{
		dial:               dial,
		pollInterval:       opts.PollInterval,
		keepaliveIntervals: opts.KeepaliveIntervals,
		subscribeMask:      opts.SubscribeMask,
		connectTimeout:     opts.ConnectTimeout,
		writeTimeout:       opts.WriteTimeout,
	}, &c.log, c.handleFrame, c.handleDisconnect)
	return c, nil
}

// resolveDialer picks the transport from the options.
func resolveDialer(opts *ClientOptions) (DialFunc, error) {
	if opts.Dial != nil {
		return opts.Dial, nil
	}

	transport := opts.Transport
	if transport == "" {
		transport = TransportTCP
		if opts.SerialPort != "" {
			transport = TransportSerial
		}
	}

	switch transport {
	case TransportTCP:
		if opts.Host == "" {
			return nil, fmt.Errorf("%w: host is required", ErrInvalidArgument)
		}
		if opts.Port <= 0 || opts.Port > 65535 {
			return nil, fmt.Errorf("%w: port %d", ErrInvalidArgument, opts.Port)
		}
		return TCPDialer(opts.Host, opts.Port), nil
	case TransportSerial:
		if opts.SerialPort == "" {
			return nil, fmt.Errorf("%w: serial port is required", ErrInvalidArgument)
		}
		if opts.BaudRate <= 0 {
			opts.BaudRate = defaultBaudRate
		}
		return SerialDialer(opts.SerialPort, opts.BaudRate), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransport, transport)
	}
}

// SetLoadLevel sets a load to a level between 0 and 100.
//
// Parameters:
//   - ctx: Context for cancellation
//   - load: One-based load id
//   - level: Brightness 0-100
//
// Returns:
//   - error: ErrInvalidArgument, ErrNotConnected or ErrSendFailed
func (c *Client) SetLoadLevel(ctx context.Context, load, level int) error {
	frame, err := SetLoadLevelCommand(load, level)
	if err != nil {
		return err
	}
	return c.send(ctx, frame)
}

// SetLoadOn switches a load on.
func (c *Client) SetLoadOn(ctx context.Context, load int) error {
	frame, err := LoadOnCommand(load)
	if err != nil {
		return err
	}
	return c.send(ctx, frame)
}

// SetLoadOff switches a load off.
func (c *Client) SetLoadOff(ctx context.Context, load int) error {
	frame, err := LoadOffCommand(load)
	if err != nil {
		return err
	}
	return c.send(ctx, frame)
}

// ToggleSwitch presses a keypad button.
func (c *Client) ToggleSwitch(ctx context.Context, keypad, button int) error {
	frame, err := ToggleSwitchCommand(keypad, button)
	if err != nil {
		return err
	}
	return c.send(ctx, frame)
}

// QueryLEDState asks the panel for a keypad's LED mask and returns the
// state of one button.
//
// The reply is read by the reader goroutine, never by the caller. The
// resulting event is also delivered to the event handler.
//
// Parameters:
//   - ctx: Context for cancellation
//   - keypad: Keypad address 0-999
//   - button: One-based button 1-9
//
// Returns:
//   - Event: Kind VerbGetLEDStates with the button's state
//   - error: ErrQueryInFlight, ErrQueryTimeout, ErrConnectionLost,
//     ErrClientClosed or a send error
func (c *Client) QueryLEDState(ctx context.Context, keypad, button int) (Event, error) {
	frame, err := LEDStatesQuery(keypad)
	if err != nil {
		return Event{}, err
	}
	if err := validateButton(keypad, button); err != nil {
		return Event{}, err
	}
	return c.query(ctx, VerbGetLEDStates, keypad, button, frame)
}

// QueryButtonLED asks the panel for a single button's LED status.
// The event's Value carries the raw status.
func (c *Client) QueryButtonLED(ctx context.Context, keypad, button int) (Event, error) {
	frame, err := LEDStateQuery(keypad, button)
	if err != nil {
		return Event{}, err
	}
	return c.query(ctx, VerbGetLEDState, keypad, button, frame)
}

// query sends frame and waits for the reader to resolve the reply.
func (c *Client) query(ctx context.Context, verb Verb, keypad, button int, frame []byte) (Event, error) {
	if err := c.ready(); err != nil {
		return Event{}, err
	}

	q, err := c.pending.issue(verb, keypad, button)
	if err != nil {
		return Event{}, err
	}

	if err := c.conn.send(ctx, frame); err != nil {
		c.pending.cancel(q)
		return Event{}, err
	}

	timer := time.NewTimer(c.opts.QueryTimeout)
	defer timer.Stop()

	select {
	case res := <-q.result:
		return res.event, res.err
	case <-timer.C:
		c.queryTimeouts.Add(1)
		return c.giveUp(q, fmt.Errorf("%w: %s keypad %s button %d after %s",
			ErrQueryTimeout, verb, FormatKeypad(keypad), button, c.opts.QueryTimeout))
	case <-ctx.Done():
		return c.giveUp(q, fmt.Errorf("query %s: %w", verb, ctx.Err()))
	}
}

// giveUp clears q, unless the reply won the race.
func (c *Client) giveUp(q *pendingQuery, err error) (Event, error) {
	c.pending.cancel(q)
	select {
	case res := <-q.result:
		return res.event, res.err
	default:
		return Event{}, err
	}
}

// send checks the client is usable and writes frame.
func (c *Client) send(ctx context.Context, frame []byte) error {
	if err := c.ready(); err != nil {
		return err
	}
	return c.conn.send(ctx, frame)
}

func (c *Client) ready() error {
	if c.conn.isClosed() {
		return ErrClientClosed
	}
	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// handleFrame decodes one frame. Runs on the reader goroutine.
func (c *Client) handleFrame(frame Frame) {
	fields := frame.Fields()
	kind := Classify(fields)

	switch kind {
	case KindLEDUpdate:
		events, err := DecodeLEDUpdate(fields)
		if err != nil {
			c.decodeErrors.Add(1)
			c.log.warn("discarding LED update", "frame", string(frame), "error", err)
			return
		}
		for _, ev := range events {
			c.deliver(ev)
		}

	case KindQueryReply:
		verb, status, err := DecodeQueryReply(fields)
		if err != nil {
			c.decodeErrors.Add(1)
			c.log.warn("discarding query reply", "frame", string(frame), "error", err)
			return
		}
		ev, ok := c.pending.resolve(verb, status)
		if !ok {
			c.unmatchedReplies.Add(1)
			c.log.debug("reply without pending query", "frame", string(frame))
			return
		}
		c.deliver(ev)

	case KindModeUpdate, KindEvent:
		c.log.info("panel notification not handled", "kind", kind.String(), "frame", string(frame))

	case KindCommandAck:
		c.log.debug("command acknowledged", "frame", string(frame))

	default:
		c.log.debug("unrecognised frame", "frame", string(frame))
	}
}

// handleDisconnect fails any waiting query when the transport drops.
func (c *Client) handleDisconnect(cause error) {
	c.pending.abandon(cause)
}

// deliver invokes the event handler with panic recovery.
func (c *Client) deliver(ev Event) {
	c.handlerMu.RLock()
	handler := c.onEvent
	c.handlerMu.RUnlock()

	c.eventsDelivered.Add(1)
	if handler == nil {
		return
	}

	defer func() {
		if r := recover(); r != nil {
			c.log.error("event handler panic", fmt.Errorf("%v", r), "event", ev.ID())
		}
	}()
	handler(ev)
}

// SetOnEvent sets the handler for LED events.
//
// The handler runs on the reader goroutine. Panics in the handler are
// recovered and logged.
func (c *Client) SetOnEvent(handler EventHandler) {
	c.handlerMu.Lock()
	c.onEvent = handler
	c.handlerMu.Unlock()
}

// SetLogger sets the logger for this client.
func (c *Client) SetLogger(logger Logger) {
	c.log.set(logger)
}

// IsConnected returns true if the panel link is up.
func (c *Client) IsConnected() bool {
	return c.conn.getState() == StateConnected
}

// State returns the connection state.
func (c *Client) State() ConnectionState {
	return c.conn.getState()
}

// Stats returns current operational statistics.
func (c *Client) Stats() Stats {
	var last time.Time
	if ns := c.conn.lastActivity.Load(); ns != 0 {
		last = time.Unix(0, ns)
	}
	state := c.conn.getState()
	return Stats{
		FramesTx:         c.conn.framesTx.Load(),
		FramesRx:         c.conn.framesRx.Load(),
		EventsDelivered:  c.eventsDelivered.Load(),
		FramingErrors:    c.conn.framingErrors.Load(),
		DecodeErrors:     c.decodeErrors.Load(),
		UnmatchedReplies: c.unmatchedReplies.Load(),
		QueryTimeouts:    c.queryTimeouts.Load(),
		KeepalivesSent:   c.conn.keepalivesSent.Load(),
		ErrorsTotal:      c.conn.errorsTotal.Load(),
		ReconnectsTotal:  c.conn.reconnects.Load(),
		LastActivity:     last,
		State:            state,
		Connected:        state == StateConnected,
	}
}

// HealthCheck verifies the connection is alive.
//
// Note: This only checks connection state. The panel has no heartbeat;
// the keepalive re-subscribe is the only active probe.
func (c *Client) HealthCheck(_ context.Context) error {
	return c.ready()
}

// Close stops the reader and closes the transport.
//
// Any outstanding query fails with ErrClientClosed. Safe to call multiple
// times.
//
// Returns:
//   - error: nil (closing is best-effort)
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.conn.done.Close()
		c.pending.abandon(ErrClientClosed)
		c.conn.close()
		c.log.info("panel client closed")
	})
	return nil
}
