package litetouch

import (
	"fmt"
	"strings"
)

// Wire framing constants.
const (
	// frameTerminator ends every frame in both directions.
	frameTerminator byte = '\r'

	// lineFeed may follow a terminator on inbound traffic. It never
	// separates frames or fields and is dropped.
	lineFeed byte = '\n'

	// fieldSeparator separates positional fields inside a frame.
	fieldSeparator = ","

	// commandPrefix is the first field of every outbound frame.
	commandPrefix = "R"

	// maxASCII is the highest byte value accepted as frame text.
	maxASCII byte = 0x7F

	// maxFrameLength bounds the line buffer. The longest panel frame is
	// well under this; anything longer means the stream is garbage.
	maxFrameLength = 512
)

// Frame is one complete protocol message with its terminator removed.
type Frame string

// Fields splits the frame into its comma-separated fields.
func (f Frame) Fields() []string {
	return strings.Split(string(f), fieldSeparator)
}

// Verb returns the second field of the frame, or "" if it has none.
func (f Frame) Verb() Verb {
	fields := f.Fields()
	if len(fields) < 2 { //nolint:mnd // prefix + verb
		return ""
	}
	return Verb(fields[1])
}

// Encode builds an outbound frame: "R,<verb>,<arg1>,...<argN>\r".
//
// Fields are never escaped. The panel forbids commas and carriage returns
// inside a field, so callers only ever pass numeric arguments.
func Encode(verb Verb, args ...string) []byte {
	var sb strings.Builder
	sb.Grow(len(commandPrefix) + len(verb) + 2 + 8*len(args)) //nolint:mnd // rough argument width
	sb.WriteString(commandPrefix)
	sb.WriteString(fieldSeparator)
	sb.WriteString(string(verb))
	for _, arg := range args {
		sb.WriteString(fieldSeparator)
		sb.WriteString(arg)
	}
	sb.WriteByte(frameTerminator)
	return []byte(sb.String())
}

// FrameDecoder accumulates an inbound byte stream into frames.
//
// It is fed one byte at a time. Partial frames are kept between calls, so
// a frame split across several reads is reassembled. A FrameDecoder is not
// safe for concurrent use; the connection reader owns its only instance.
type FrameDecoder struct {
	buf []byte
}

// NewFrameDecoder creates an empty decoder.
func NewFrameDecoder() *FrameDecoder {
	return &FrameDecoder{buf: make([]byte, 0, readBufferSize)}
}

// Feed consumes one byte.
//
// It returns a frame and true when b completes a non-empty frame. A byte
// outside single-byte text, or a frame longer than maxFrameLength, discards
// the buffered bytes and returns ErrFraming; the decoder stays usable.
func (d *FrameDecoder) Feed(b byte) (Frame, bool, error) {
	switch {
	case b == frameTerminator:
		if len(d.buf) == 0 {
			return "", false, nil
		}
		frame := Frame(d.buf)
		d.buf = d.buf[:0]
		return frame, true, nil
	case b == lineFeed:
		return "", false, nil
	case b > maxASCII:
		d.Reset()
		return "", false, fmt.Errorf("%w: non-text byte 0x%02X", ErrFraming, b)
	case len(d.buf) >= maxFrameLength:
		d.Reset()
		return "", false, fmt.Errorf("%w: frame exceeds %d bytes", ErrFraming, maxFrameLength)
	default:
		d.buf = append(d.buf, b)
		return "", false, nil
	}
}

// Buffered returns the number of bytes waiting for a terminator.
func (d *FrameDecoder) Buffered() int {
	return len(d.buf)
}

// Reset discards any partial frame.
func (d *FrameDecoder) Reset() {
	d.buf = d.buf[:0]
}
