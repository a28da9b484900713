package litetouch

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"go.bug.st/serial"
)

// fakeSerialPort implements the serial.Port methods serialTransport uses.
type fakeSerialPort struct {
	serial.Port

	data      []byte
	timeouts  []time.Duration
	readCalls int
	written   []byte
	closed    bool
}

func (f *fakeSerialPort) SetReadTimeout(t time.Duration) error {
	f.timeouts = append(f.timeouts, t)
	return nil
}

func (f *fakeSerialPort) Read(p []byte) (int, error) {
	f.readCalls++
	n := copy(p, f.data)
	f.data = f.data[n:]
	return n, nil
}

func (f *fakeSerialPort) Write(p []byte) (int, error) {
	f.written = append(f.written, p...)
	return len(p), nil
}

func (f *fakeSerialPort) Close() error {
	f.closed = true
	return nil
}

func TestSerialTransportRead(t *testing.T) {
	port := &fakeSerialPort{data: []byte("R,RLEDU,014,1\r")}
	tr := &serialTransport{port: port}

	if err := tr.SetReadDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatalf("SetReadDeadline() error = %v", err)
	}

	buf := make([]byte, 64)
	n, err := tr.Read(buf)
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if got := string(buf[:n]); got != "R,RLEDU,014,1\r" {
		t.Errorf("Read() = %q", got)
	}
	if len(port.timeouts) != 1 || port.timeouts[0] <= 0 || port.timeouts[0] > time.Second {
		t.Errorf("read timeouts = %v, want one in (0, 1s]", port.timeouts)
	}
}

func TestSerialTransportIdleReadIsTimeout(t *testing.T) {
	port := &fakeSerialPort{}
	tr := &serialTransport{port: port}
	_ = tr.SetReadDeadline(time.Now().Add(50 * time.Millisecond))

	_, err := tr.Read(make([]byte, 8))
	if !isTimeout(err) {
		t.Fatalf("Read() error = %v, want timeout", err)
	}
	var netErr net.Error
	if !errors.As(err, &netErr) || !netErr.Timeout() {
		t.Errorf("idle read should be a net.Error timeout, got %T", err)
	}
}

func TestSerialTransportExpiredDeadline(t *testing.T) {
	port := &fakeSerialPort{data: []byte("ignored")}
	tr := &serialTransport{port: port}
	_ = tr.SetReadDeadline(time.Now().Add(-time.Millisecond))

	if _, err := tr.Read(make([]byte, 8)); !isTimeout(err) {
		t.Fatalf("Read() error = %v, want timeout", err)
	}
	if port.readCalls != 0 {
		t.Errorf("port read %d times past the deadline, want 0", port.readCalls)
	}
}

func TestSerialTransportNoDeadlineBlocks(t *testing.T) {
	port := &fakeSerialPort{data: []byte("x")}
	tr := &serialTransport{port: port}

	if _, err := tr.Read(make([]byte, 8)); err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if len(port.timeouts) != 1 || port.timeouts[0] != serial.NoTimeout {
		t.Errorf("read timeouts = %v, want [NoTimeout]", port.timeouts)
	}
}

func TestSerialTransportWriteAndClose(t *testing.T) {
	port := &fakeSerialPort{}
	tr := &serialTransport{port: port}

	if _, err := tr.Write([]byte("R,CSLON,11\r")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := tr.SetWriteDeadline(time.Now()); err != nil {
		t.Errorf("SetWriteDeadline() error = %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if string(port.written) != "R,CSLON,11\r" || !port.closed {
		t.Errorf("written = %q, closed = %v", port.written, port.closed)
	}
}

func TestSerialDialerMissingDevice(t *testing.T) {
	dial := SerialDialer(filepath.Join(t.TempDir(), "ttyUSB9"), 9600)

	_, err := dial(context.Background())
	if err == nil || !strings.Contains(err.Error(), "open serial") {
		t.Fatalf("dial error = %v, want open serial failure", err)
	}
}

func TestSerialDialerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := SerialDialer("/dev/ttyUSB0", 9600)(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("dial error = %v, want context.Canceled", err)
	}
}

func TestTCPDialer(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	addr := ln.Addr().(*net.TCPAddr)
	tr, err := TCPDialer("127.0.0.1", addr.Port)(context.Background())
	if err != nil {
		t.Fatalf("dial error = %v", err)
	}
	tr.Close()

	ln.Close()
	_, err = TCPDialer("127.0.0.1", addr.Port)(context.Background())
	if err == nil || !strings.Contains(err.Error(), "dial tcp 127.0.0.1:"+strconv.Itoa(addr.Port)) {
		t.Fatalf("dial to closed port error = %v", err)
	}
}
