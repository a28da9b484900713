package litetouch

import (
	"errors"
	"testing"
)

func TestCommandEncoding(t *testing.T) {
	tests := []struct {
		name  string
		build func() ([]byte, error)
		want  string
	}{
		{"load on first load", func() ([]byte, error) { return LoadOnCommand(1) }, "R,CSLON,0\r"},
		{"load off", func() ([]byte, error) { return LoadOffCommand(12) }, "R,CSLOF,11\r"},
		{"load level", func() ([]byte, error) { return SetLoadLevelCommand(5, 75) }, "R,CINLL,4,75\r"},
		{"load level zero", func() ([]byte, error) { return SetLoadLevelCommand(1, 0) }, "R,CINLL,0,0\r"},
		{"toggle", func() ([]byte, error) { return ToggleSwitchCommand(14, 9) }, "R,CTGSW,0148\r"},
		{"toggle first button", func() ([]byte, error) { return ToggleSwitchCommand(7, 1) }, "R,CTGSW,0070\r"},
		{"led states", func() ([]byte, error) { return LEDStatesQuery(14) }, "R,CGLES,014\r"},
		{"led state", func() ([]byte, error) { return LEDStateQuery(120, 3) }, "R,CGLED,1202\r"},
		{"subscribe", func() ([]byte, error) { return SubscribeCommand(DefaultSubscribeMask), nil }, "R,SIEVN,7\r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.build()
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("frame = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCommandValidation(t *testing.T) {
	tests := []struct {
		name  string
		build func() ([]byte, error)
	}{
		{"load zero", func() ([]byte, error) { return LoadOnCommand(0) }},
		{"load negative", func() ([]byte, error) { return LoadOffCommand(-3) }},
		{"level above 100", func() ([]byte, error) { return SetLoadLevelCommand(1, 101) }},
		{"level negative", func() ([]byte, error) { return SetLoadLevelCommand(1, -1) }},
		{"keypad too large", func() ([]byte, error) { return LEDStatesQuery(1000) }},
		{"keypad negative", func() ([]byte, error) { return ToggleSwitchCommand(-1, 1) }},
		{"button zero", func() ([]byte, error) { return ToggleSwitchCommand(14, 0) }},
		{"button ten", func() ([]byte, error) { return LEDStateQuery(14, 10) }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frame, err := tt.build()
			if !errors.Is(err, ErrInvalidArgument) {
				t.Errorf("error = %v, want ErrInvalidArgument", err)
			}
			if frame != nil {
				t.Errorf("frame = %q, want nil", frame)
			}
		})
	}
}

func TestFormatKeypad(t *testing.T) {
	tests := map[int]string{0: "000", 7: "007", 14: "014", 999: "999"}
	for in, want := range tests {
		if got := FormatKeypad(in); got != want {
			t.Errorf("FormatKeypad(%d) = %q, want %q", in, got, want)
		}
	}
}
