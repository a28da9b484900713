package litetouch

import (
	"fmt"
	"strconv"
	"strings"
)

// MessageKind classifies an inbound frame.
type MessageKind int

// Inbound message kinds.
const (
	// KindUnrecognized is any frame whose verb is not known.
	KindUnrecognized MessageKind = iota

	// KindLEDUpdate is an unsolicited RLEDU keypad LED update.
	KindLEDUpdate

	// KindModeUpdate is an unsolicited RMODU notification.
	KindModeUpdate

	// KindEvent is an unsolicited REVNT notification.
	KindEvent

	// KindCommandAck is an RCACK acknowledgement.
	KindCommandAck

	// KindQueryReply is the reply to a CGLES or CGLED query.
	KindQueryReply
)

// String returns the kind name for logging.
func (k MessageKind) String() string {
	switch k {
	case KindLEDUpdate:
		return "led_update"
	case KindModeUpdate:
		return "mode_update"
	case KindEvent:
		return "event"
	case KindCommandAck:
		return "command_ack"
	case KindQueryReply:
		return "query_reply"
	default:
		return "unrecognized"
	}
}

// Field positions within inbound frames.
const (
	fieldVerb    = 1
	fieldKeypad  = 2
	fieldPayload = 3

	// A query reply carries the query verb in field 2 and the status in field 3.
	fieldReplyVerb   = 2
	fieldReplyStatus = 3
)

// Event is a keypad LED state reported by the panel.
//
// Events come from unsolicited RLEDU updates (one per button) or from
// resolved CGLES/CGLED queries. Kind names the verb that produced it.
type Event struct {
	// Kind is VerbLEDUpdate, VerbGetLEDStates or VerbGetLEDState.
	Kind Verb

	// Keypad is the zero-padded keypad address, e.g. "014".
	Keypad string

	// Button is the one-based button index.
	Button int

	// State is true when the button LED is lit.
	State bool

	// Value is the raw status for CGLED replies. For other kinds it is
	// 1 when State is true and 0 otherwise.
	Value int
}

// ID returns the "<keypad>_<button>" identifier used by callers.
// Example: keypad "014", button 3 → "014_3"
func (e Event) ID() string {
	return e.Keypad + "_" + strconv.Itoa(e.Button)
}

// EventHandler receives decoded events.
type EventHandler func(Event)

// Classify maps a split frame onto its message kind.
//
// A frame is a query reply when its third field is a query verb, whatever
// the second field holds. That check runs first so a reply is never taken
// for an unsolicited message.
func Classify(fields []string) MessageKind {
	if len(fields) <= fieldVerb {
		return KindUnrecognized
	}
	if len(fields) > fieldReplyStatus {
		switch Verb(fields[fieldReplyVerb]) {
		case VerbGetLEDStates, VerbGetLEDState:
			return KindQueryReply
		}
	}
	switch Verb(fields[fieldVerb]) {
	case VerbLEDUpdate:
		return KindLEDUpdate
	case VerbModeUpdate:
		return KindModeUpdate
	case VerbEvent:
		return KindEvent
	case VerbCommandAck:
		return KindCommandAck
	default:
		return KindUnrecognized
	}
}

// DecodeLEDUpdate fans an RLEDU frame out into one event per button.
//
// The payload holds up to nine '0'/'1' digits, first button first. Digits
// past the ninth are ignored.
func DecodeLEDUpdate(fields []string) ([]Event, error) {
	if len(fields) <= fieldPayload {
		return nil, fmt.Errorf("%w: RLEDU has %d fields", ErrDecodingFailed, len(fields))
	}
	keypad := fields[fieldKeypad]
	if keypad == "" {
		return nil, fmt.Errorf("%w: RLEDU without keypad", ErrDecodingFailed)
	}

	digits := fields[fieldPayload]
	if len(digits) > maxButtons {
		digits = digits[:maxButtons]
	}

	events := make([]Event, 0, len(digits))
	for i := range len(digits) {
		on := digits[i] == '1'
		events = append(events, Event{
			Kind:   VerbLEDUpdate,
			Keypad: keypad,
			Button: i + 1,
			State:  on,
			Value:  boolToInt(on),
		})
	}
	return events, nil
}

// DecodeQueryReply extracts the query verb and status from a reply frame.
func DecodeQueryReply(fields []string) (Verb, int, error) {
	if len(fields) <= fieldReplyStatus {
		return "", 0, fmt.Errorf("%w: reply has %d fields", ErrDecodingFailed, len(fields))
	}
	status, err := strconv.Atoi(strings.TrimSpace(fields[fieldReplyStatus]))
	if err != nil {
		return "", 0, fmt.Errorf("%w: reply status %q: %w", ErrDecodingFailed, fields[fieldReplyStatus], err)
	}
	return Verb(fields[fieldReplyVerb]), status, nil
}

// LEDStateFromMask extracts one button's LED from a CGLES status.
//
// The status is written in binary without padding and the button is
// counted from the right-hand end of that text. A button beyond the
// written width reads as off.
// Example: status 5 ("101"): button 1 → true, button 2 → false, button 4 → false
func LEDStateFromMask(status, button int) bool {
	if status < 0 {
		return false
	}
	bits := strconv.FormatInt(int64(status), 2)
	index := len(bits) - button
	if index < 0 || index >= len(bits) {
		return false
	}
	return bits[index] == '1'
}

// replyEvent builds the event for a resolved query.
func replyEvent(verb Verb, keypad, button, status int) Event {
	ev := Event{
		Kind:   verb,
		Keypad: FormatKeypad(keypad),
		Button: button,
	}
	if verb == VerbGetLEDState {
		ev.Value = status
		ev.State = status != 0
		return ev
	}
	ev.State = LEDStateFromMask(status, button)
	ev.Value = boolToInt(ev.State)
	return ev
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
