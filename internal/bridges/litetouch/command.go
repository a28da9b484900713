package litetouch

import (
	"fmt"
	"strconv"
)

// Verb is the command or message identifier carried in a frame.
type Verb string

// Verbs sent to the panel.
const (
	// VerbSubscribe registers interest in unsolicited notifications.
	// Argument: event bitmask.
	VerbSubscribe Verb = "SIEVN"

	// VerbSetLoadLevel sets a load to a brightness level (0-100).
	VerbSetLoadLevel Verb = "CINLL"

	// VerbLoadOn switches a load on.
	VerbLoadOn Verb = "CSLON"

	// VerbLoadOff switches a load off.
	VerbLoadOff Verb = "CSLOF"

	// VerbToggleSwitch presses a keypad button.
	VerbToggleSwitch Verb = "CTGSW"

	// VerbGetLEDStates asks for the LED bitmask of a whole keypad.
	VerbGetLEDStates Verb = "CGLES"

	// VerbGetLEDState asks for the LED of a single keypad button.
	VerbGetLEDState Verb = "CGLED"
)

// Verbs received from the panel.
const (
	// VerbLEDUpdate reports the LED states of one keypad.
	VerbLEDUpdate Verb = "RLEDU"

	// VerbModeUpdate reports a panel mode change.
	VerbModeUpdate Verb = "RMODU"

	// VerbEvent reports a panel event.
	VerbEvent Verb = "REVNT"

	// VerbCommandAck acknowledges a command.
	VerbCommandAck Verb = "RCACK"
)

// Panel addressing limits.
const (
	// keypadWidth is the zero-padded width of a keypad address on the wire.
	keypadWidth = 3

	// maxKeypad is the highest keypad address that fits keypadWidth digits.
	maxKeypad = 999

	// maxButtons is the number of buttons on a keypad. RLEDU carries one
	// digit per button and switch addresses carry the button as one digit.
	maxButtons = 9

	// maxLevel is the highest load level.
	maxLevel = 100

	// DefaultSubscribeMask subscribes to LED, mode and event notifications.
	DefaultSubscribeMask = 7
)

// FormatKeypad zero-pads a keypad address to its wire width.
// Example: 14 → "014"
func FormatKeypad(keypad int) string {
	return fmt.Sprintf("%0*d", keypadWidth, keypad)
}

// switchAddress builds the wire address of a keypad button: the padded
// keypad followed by the zero-based button digit.
// Example: keypad 14, button 9 → "0148"
func switchAddress(keypad, button int) string {
	return FormatKeypad(keypad) + strconv.Itoa(button-1)
}

// SubscribeCommand encodes the event subscription frame.
func SubscribeCommand(mask int) []byte {
	return Encode(VerbSubscribe, strconv.Itoa(mask))
}

// SetLoadLevelCommand encodes a level change for a one-based load id.
func SetLoadLevelCommand(load, level int) ([]byte, error) {
	if err := validateLoad(load); err != nil {
		return nil, err
	}
	if level < 0 || level > maxLevel {
		return nil, fmt.Errorf("%w: level %d outside 0-%d", ErrInvalidArgument, level, maxLevel)
	}
	return Encode(VerbSetLoadLevel, strconv.Itoa(load-1), strconv.Itoa(level)), nil
}

// LoadOnCommand encodes a load-on for a one-based load id.
// Example: load 1 → "R,CSLON,0\r"
func LoadOnCommand(load int) ([]byte, error) {
	if err := validateLoad(load); err != nil {
		return nil, err
	}
	return Encode(VerbLoadOn, strconv.Itoa(load-1)), nil
}

// LoadOffCommand encodes a load-off for a one-based load id.
func LoadOffCommand(load int) ([]byte, error) {
	if err := validateLoad(load); err != nil {
		return nil, err
	}
	return Encode(VerbLoadOff, strconv.Itoa(load-1)), nil
}

// ToggleSwitchCommand encodes a button press for a keypad and one-based button.
func ToggleSwitchCommand(keypad, button int) ([]byte, error) {
	if err := validateButton(keypad, button); err != nil {
		return nil, err
	}
	return Encode(VerbToggleSwitch, switchAddress(keypad, button)), nil
}

// LEDStatesQuery encodes a keypad-wide LED query.
func LEDStatesQuery(keypad int) ([]byte, error) {
	if err := validateKeypad(keypad); err != nil {
		return nil, err
	}
	return Encode(VerbGetLEDStates, FormatKeypad(keypad)), nil
}

// LEDStateQuery encodes a single-button LED query.
func LEDStateQuery(keypad, button int) ([]byte, error) {
	if err := validateButton(keypad, button); err != nil {
		return nil, err
	}
	return Encode(VerbGetLEDState, switchAddress(keypad, button)), nil
}

func validateLoad(load int) error {
	if load < 1 {
		return fmt.Errorf("%w: load %d (loads are numbered from 1)", ErrInvalidArgument, load)
	}
	return nil
}

func validateKeypad(keypad int) error {
	if keypad < 0 || keypad > maxKeypad {
		return fmt.Errorf("%w: keypad %d outside 0-%d", ErrInvalidArgument, keypad, maxKeypad)
	}
	return nil
}

func validateButton(keypad, button int) error {
	if err := validateKeypad(keypad); err != nil {
		return err
	}
	if button < 1 || button > maxButtons {
		return fmt.Errorf("%w: button %d outside 1-%d", ErrInvalidArgument, button, maxButtons)
	}
	return nil
}
