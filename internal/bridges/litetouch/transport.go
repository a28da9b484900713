package litetouch

import (
	"context"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	"go.bug.st/serial"
)

// Transport is the byte stream to the panel.
//
// net.Conn satisfies it. Read must honour the read deadline so the reader
// wakes once per polling interval.
type Transport interface {
	io.ReadWriteCloser
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
}

// DialFunc opens a new transport to the panel.
type DialFunc func(ctx context.Context) (Transport, error)

// TCPDialer returns a DialFunc for a panel reachable at host:port.
func TCPDialer(host string, port int) DialFunc {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	return func(ctx context.Context) (Transport, error) {
		var dialer net.Dialer
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("dial tcp %s: %w", address, err)
		}
		return conn, nil
	}
}

// SerialDialer returns a DialFunc for a panel on an RS-232 port.
// The panel serial link runs 8N1.
func SerialDialer(portName string, baudRate int) DialFunc {
	return func(ctx context.Context) (Transport, error) {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("open serial %s: %w", portName, err)
		}
		port, err := serial.Open(portName, &serial.Mode{
			BaudRate: baudRate,
			DataBits: 8, //nolint:mnd // 8N1
			Parity:   serial.NoParity,
			StopBits: serial.OneStopBit,
		})
		if err != nil {
			return nil, fmt.Errorf("open serial %s: %w", portName, err)
		}
		return &serialTransport{port: port}, nil
	}
}

// serialTransport adapts a serial port to Transport.
//
// Serial ports have a per-read timeout instead of deadlines, so the read
// deadline is converted to a timeout before each read. A read that returns
// nothing before the timeout is reported as a net.Error timeout so the
// reader treats it exactly like an idle TCP poll.
type serialTransport struct {
	port         serial.Port
	readDeadline time.Time
}

func (s *serialTransport) Read(p []byte) (int, error) {
	if !s.readDeadline.IsZero() {
		wait := time.Until(s.readDeadline)
		if wait <= 0 {
			return 0, errSerialTimeout
		}
		if err := s.port.SetReadTimeout(wait); err != nil {
			return 0, fmt.Errorf("set serial read timeout: %w", err)
		}
	} else if err := s.port.SetReadTimeout(serial.NoTimeout); err != nil {
		return 0, fmt.Errorf("set serial read timeout: %w", err)
	}

	n, err := s.port.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 {
		return 0, errSerialTimeout
	}
	return n, nil
}

func (s *serialTransport) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *serialTransport) Close() error {
	return s.port.Close()
}

func (s *serialTransport) SetReadDeadline(t time.Time) error {
	s.readDeadline = t
	return nil
}

// SetWriteDeadline is a no-op: serial writes complete at line speed.
func (s *serialTransport) SetWriteDeadline(time.Time) error {
	return nil
}

// timeoutError is the net.Error returned by an idle serial read.
type timeoutError struct{}

func (timeoutError) Error() string   { return "litetouch: serial read timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

var errSerialTimeout net.Error = timeoutError{}
