package litetouch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// closeOnce wraps a channel with sync.Once to prevent double-close panics.
type closeOnce struct {
	ch   chan struct{}
	once sync.Once
}

func newCloseOnce() *closeOnce {
	return &closeOnce{ch: make(chan struct{})}
}

func (c *closeOnce) Close() {
	c.once.Do(func() { close(c.ch) })
}

func (c *closeOnce) Done() <-chan struct{} {
	return c.ch
}

// Default timeouts and intervals for panel communication.
const (
	// defaultPollInterval is how long one read waits for data. It also sets
	// the reconnect delay and the Close grace period.
	defaultPollInterval = time.Second

	// defaultKeepaliveIntervals is the number of consecutive idle polls
	// after which the subscription is re-sent.
	defaultKeepaliveIntervals = 120

	// defaultConnectTimeout bounds a single dial attempt.
	defaultConnectTimeout = 10 * time.Second

	// defaultWriteTimeout bounds a single frame write.
	defaultWriteTimeout = 5 * time.Second

	// readBufferSize is the size of the read buffer for incoming bytes.
	readBufferSize = 256
)

// ConnectionState is the lifecycle state of the panel link.
type ConnectionState int32

// Connection states.
const (
	// StateDisconnected means no transport is open.
	StateDisconnected ConnectionState = iota

	// StateConnecting means a dial is in progress.
	StateConnecting

	// StateConnected means the transport is open and subscribed.
	StateConnected

	// StateClosing means Close has been called.
	StateClosing
)

// String returns the state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateClosing:
		return "closing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Logger interface for optional logging.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// logSink holds the optional logger shared by the client and its connection.
type logSink struct {
	mu     sync.RWMutex
	logger Logger
}

func (s *logSink) set(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

func (s *logSink) get() Logger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.logger
}

func (s *logSink) debug(msg string, keysAndValues ...any) {
	if logger := s.get(); logger != nil {
		logger.Debug(msg, keysAndValues...)
	}
}

func (s *logSink) info(msg string, keysAndValues ...any) {
	if logger := s.get(); logger != nil {
		logger.Info(msg, keysAndValues...)
	}
}

func (s *logSink) warn(msg string, keysAndValues ...any) {
	if logger := s.get(); logger != nil {
		logger.Warn(msg, keysAndValues...)
	}
}

func (s *logSink) error(msg string, err error, keysAndValues ...any) {
	if logger := s.get(); logger != nil {
		logger.Error(msg, append([]any{"error", err}, keysAndValues...)...)
	}
}

// connectionConfig holds the resolved connection manager settings.
type connectionConfig struct {
	dial               DialFunc
	pollInterval       time.Duration
	keepaliveIntervals int
	subscribeMask      int
	connectTimeout     time.Duration
	writeTimeout       time.Duration
}

// connection owns the panel transport.
//
// A single goroutine (run) is the only reader. It reconnects at a fixed
// polling interval after any failure, for as long as the connection is
// open. Writes come from any goroutine and share connMu with connect and
// teardown, so a write never races a transport being replaced.
type connection struct {
	cfg connectionConfig
	log *logSink

	connMu    sync.RWMutex
	transport Transport
	state     ConnectionState

	// Reader-owned: only run and the initial connect touch these.
	frames *FrameDecoder

	// Hooks, fixed at construction. onFrame runs on the reader goroutine.
	onFrame      func(Frame)
	onDisconnect func(error)

	// Shutdown coordination
	done       *closeOnce
	runCtx     context.Context
	cancelRun  context.CancelFunc
	readerDone chan struct{}
	started    atomic.Bool

	// Statistics
	framesTx       atomic.Uint64
	framesRx       atomic.Uint64
	framingErrors  atomic.Uint64
	errorsTotal    atomic.Uint64
	keepalivesSent atomic.Uint64
	reconnects     atomic.Uint64
	everConnected  atomic.Bool
	lastActivity   atomic.Int64 // Unix nanoseconds
}

func newConnection(cfg connectionConfig, log *logSink, onFrame func(Frame), onDisconnect func(error)) *connection {
	if cfg.pollInterval <= 0 {
		cfg.pollInterval = defaultPollInterval
	}
	if cfg.keepaliveIntervals <= 0 {
		cfg.keepaliveIntervals = defaultKeepaliveIntervals
	}
	if cfg.subscribeMask <= 0 {
		cfg.subscribeMask = DefaultSubscribeMask
	}
	if cfg.connectTimeout <= 0 {
		cfg.connectTimeout = defaultConnectTimeout
	}
	if cfg.writeTimeout <= 0 {
		cfg.writeTimeout = defaultWriteTimeout
	}
	if onFrame == nil {
		onFrame = func(Frame) {}
	}
	if onDisconnect == nil {
		onDisconnect = func(error) {}
	}

	runCtx, cancel := context.WithCancel(context.Background())
	return &connection{
		cfg:          cfg,
		log:          log,
		frames:       NewFrameDecoder(),
		onFrame:      onFrame,
		onDisconnect: onDisconnect,
		done:         newCloseOnce(),
		runCtx:       runCtx,
		cancelRun:    cancel,
		readerDone:   make(chan struct{}),
	}
}

// connect dials the panel and subscribes to notifications.
//
// On success the state is StateConnected. On failure it is back to
// StateDisconnected and the error wraps ErrConnectionFailed.
func (c *connection) connect(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	c.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, c.cfg.connectTimeout)
	defer cancel()

	t, err := c.cfg.dial(dialCtx)
	if err != nil {
		c.errorsTotal.Add(1)
		c.setStateUnlessClosing(StateDisconnected)
		return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
	}

	c.connMu.Lock()
	if c.isClosed() {
		c.connMu.Unlock()
		t.Close()
		return ErrClientClosed
	}
	c.transport = t
	c.state = StateConnected
	c.frames.Reset()
	err = c.writeLocked(ctx, t, SubscribeCommand(c.cfg.subscribeMask))
	c.connMu.Unlock()

	if err != nil {
		c.teardown(t, err)
		return fmt.Errorf("%w: subscribe: %w", ErrConnectionFailed, err)
	}

	if c.everConnected.Swap(true) {
		c.reconnects.Add(1)
	}
	c.touch()
	c.log.info("connected to panel", "subscribe_mask", c.cfg.subscribeMask)
	return nil
}

// start launches the reader goroutine.
func (c *connection) start() {
	if c.started.CompareAndSwap(false, true) {
		go c.run()
	}
}

// run is the reader and reconnect loop.
func (c *connection) run() {
	defer close(c.readerDone)

	buf := make([]byte, readBufferSize)
	idle := 0

	for !c.isClosed() {
		t := c.currentTransport()
		if t == nil {
			if !c.sleep(c.cfg.pollInterval) {
				return
			}
			if err := c.connect(c.runCtx); err != nil {
				if !c.isClosed() {
					c.log.debug("reconnect attempt failed", "error", err)
				}
				continue
			}
			idle = 0
			continue
		}

		n, err := c.readOnce(t, buf)
		if n > 0 {
			idle = 0
			c.touch()
			c.feed(buf[:n])
		}
		if err == nil {
			continue
		}
		if c.isClosed() {
			return
		}
		if isTimeout(err) {
			if n > 0 {
				continue
			}
			idle++
			if idle >= c.cfg.keepaliveIntervals {
				idle = 0
				c.keepalive()
			}
			continue
		}

		c.errorsTotal.Add(1)
		c.log.warn("lost connection to panel", "error", err)
		c.teardown(t, fmt.Errorf("%w: %w", ErrConnectionLost, err))
	}
}

// readOnce waits at most one polling interval for data.
func (c *connection) readOnce(t Transport, buf []byte) (int, error) {
	if err := t.SetReadDeadline(time.Now().Add(c.cfg.pollInterval)); err != nil {
		return 0, fmt.Errorf("set read deadline: %w", err)
	}
	return t.Read(buf)
}

// feed passes received bytes through the frame decoder in order.
func (c *connection) feed(data []byte) {
	for _, b := range data {
		frame, ok, err := c.frames.Feed(b)
		if err != nil {
			c.framingErrors.Add(1)
			c.log.debug("discarding partial frame", "error", err)
			continue
		}
		if ok {
			c.framesRx.Add(1)
			c.log.debug("frame received", "frame", string(frame))
			c.onFrame(frame)
		}
	}
}

// keepalive re-sends the subscription after a long idle period.
func (c *connection) keepalive() {
	c.log.debug("idle threshold reached, re-subscribing", "intervals", c.cfg.keepaliveIntervals)
	if err := c.send(c.runCtx, SubscribeCommand(c.cfg.subscribeMask)); err != nil {
		c.log.warn("keepalive failed", "error", err)
		return
	}
	c.keepalivesSent.Add(1)
}

// send writes one frame.
//
// A failed write tears the transport down; it is never retried here. The
// reader notices the missing transport and reconnects.
func (c *connection) send(ctx context.Context, frame []byte) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}

	c.connMu.Lock()
	t := c.transport
	if t == nil || c.state != StateConnected {
		c.connMu.Unlock()
		return ErrNotConnected
	}
	err := c.writeLocked(ctx, t, frame)
	c.connMu.Unlock()

	if err != nil {
		c.errorsTotal.Add(1)
		c.log.warn("write to panel failed", "error", err)
		c.teardown(t, fmt.Errorf("%w: %w", ErrConnectionLost, err))
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	return nil
}

// writeLocked writes frame to t. Caller holds connMu.
func (c *connection) writeLocked(ctx context.Context, t Transport, frame []byte) error {
	deadline := time.Now().Add(c.cfg.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := t.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if _, err := t.Write(frame); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	c.framesTx.Add(1)
	c.touch()
	return nil
}

// teardown closes t if it is still the current transport.
func (c *connection) teardown(t Transport, cause error) {
	c.connMu.Lock()
	if c.transport != t || t == nil {
		c.connMu.Unlock()
		return
	}
	t.Close()
	c.transport = nil
	if c.state != StateClosing {
		c.state = StateDisconnected
	}
	c.connMu.Unlock()

	c.onDisconnect(cause)
}

// close stops the reader and closes the transport.
//
// The reader is given one polling interval to notice the shutdown before
// the transport is closed underneath it.
func (c *connection) close() {
	c.done.Close()
	c.setState(StateClosing)
	c.cancelRun()

	if c.started.Load() {
		timer := time.NewTimer(c.cfg.pollInterval)
		select {
		case <-c.readerDone:
		case <-timer.C:
		}
		timer.Stop()
	}

	c.connMu.Lock()
	t := c.transport
	c.transport = nil
	c.connMu.Unlock()
	if t != nil {
		t.Close()
	}

	if c.started.Load() {
		<-c.readerDone
	}
	c.setState(StateDisconnected)
}

func (c *connection) currentTransport() Transport {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.transport
}

func (c *connection) getState() ConnectionState {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.state
}

func (c *connection) setState(s ConnectionState) {
	c.connMu.Lock()
	c.state = s
	c.connMu.Unlock()
}

func (c *connection) setStateUnlessClosing(s ConnectionState) {
	c.connMu.Lock()
	if c.state != StateClosing {
		c.state = s
	}
	c.connMu.Unlock()
}

// sleep waits d or until close. Returns false on close.
func (c *connection) sleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-c.done.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (c *connection) isClosed() bool {
	select {
	case <-c.done.Done():
		return true
	default:
		return false
	}
}

func (c *connection) touch() {
	c.lastActivity.Store(time.Now().UnixNano())
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
