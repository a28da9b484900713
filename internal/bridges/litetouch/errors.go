package litetouch

import "errors"

// Domain errors for the LiteTouch bridge package.
var (
	// ErrNotConnected is returned when an operation requires a connection
	// but the panel link is disconnected or still connecting.
	ErrNotConnected = errors.New("litetouch: not connected to panel")

	// ErrConnectionFailed is returned when the initial connection to the panel fails.
	ErrConnectionFailed = errors.New("litetouch: connection to panel failed")

	// ErrConnectionLost is returned to a waiting query when the link drops
	// before its reply arrives.
	ErrConnectionLost = errors.New("litetouch: connection to panel lost")

	// ErrSendFailed is returned when writing a command to the panel fails.
	ErrSendFailed = errors.New("litetouch: command send failed")

	// ErrFraming is returned by the frame decoder for bytes that cannot be
	// part of a frame. It is transient: decoding resumes on the next byte.
	ErrFraming = errors.New("litetouch: framing error")

	// ErrDecodingFailed is returned when a complete frame cannot be interpreted.
	ErrDecodingFailed = errors.New("litetouch: decoding failed")

	// ErrQueryInFlight is returned when a query is issued while another one
	// is still waiting for its reply. The protocol has no correlation id.
	ErrQueryInFlight = errors.New("litetouch: query already in flight")

	// ErrQueryTimeout is returned when a query reply does not arrive in time.
	ErrQueryTimeout = errors.New("litetouch: query timed out")

	// ErrClientClosed is returned for operations on, or queries abandoned by,
	// a closed client.
	ErrClientClosed = errors.New("litetouch: client closed")

	// ErrInvalidArgument is returned when a load, level, keypad or button
	// is outside the range the panel accepts.
	ErrInvalidArgument = errors.New("litetouch: invalid argument")

	// ErrUnsupportedTransport is returned when the configured transport
	// cannot be opened on this platform.
	ErrUnsupportedTransport = errors.New("litetouch: unsupported transport")
)
