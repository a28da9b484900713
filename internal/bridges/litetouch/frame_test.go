package litetouch

import (
	"errors"
	"reflect"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name string
		verb Verb
		args []string
		want string
	}{
		{name: "no args", verb: VerbCommandAck, want: "R,RCACK\r"},
		{name: "one arg", verb: VerbLoadOn, args: []string{"0"}, want: "R,CSLON,0\r"},
		{name: "two args", verb: VerbSetLoadLevel, args: []string{"4", "75"}, want: "R,CINLL,4,75\r"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := string(Encode(tt.verb, tt.args...))
			if got != tt.want {
				t.Errorf("Encode() = %q, want %q", got, tt.want)
			}
		})
	}
}

// feedAll feeds every byte and collects completed frames and errors.
func feedAll(d *FrameDecoder, input string) ([]Frame, []error) {
	var frames []Frame
	var errs []error
	for i := 0; i < len(input); i++ {
		frame, ok, err := d.Feed(input[i])
		if err != nil {
			errs = append(errs, err)
		}
		if ok {
			frames = append(frames, frame)
		}
	}
	return frames, errs
}

func TestFrameDecoder(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantFrames []Frame
		wantErrs   int
	}{
		{
			name:       "single frame",
			input:      "R,RLEDU,014,101000000\r",
			wantFrames: []Frame{"R,RLEDU,014,101000000"},
		},
		{
			name:       "line feeds ignored",
			input:      "R,RCACK\r\nR,RMODU,1\n\r",
			wantFrames: []Frame{"R,RCACK", "R,RMODU,1"},
		},
		{
			name:       "empty frames skipped",
			input:      "\r\r\nR,RCACK\r\r",
			wantFrames: []Frame{"R,RCACK"},
		},
		{
			name:  "no terminator",
			input: "R,RLEDU,014",
		},
		{
			name:       "non-text byte resets buffer",
			input:      "R,RLE\xffR,RCACK\r",
			wantFrames: []Frame{"R,RCACK"},
			wantErrs:   1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			frames, errs := feedAll(NewFrameDecoder(), tt.input)
			if !reflect.DeepEqual(frames, tt.wantFrames) {
				t.Errorf("frames = %q, want %q", frames, tt.wantFrames)
			}
			if len(errs) != tt.wantErrs {
				t.Errorf("errors = %d, want %d", len(errs), tt.wantErrs)
			}
			for _, err := range errs {
				if !errors.Is(err, ErrFraming) {
					t.Errorf("error = %v, want ErrFraming", err)
				}
			}
		})
	}
}

func TestFrameDecoderPartialAcrossFeeds(t *testing.T) {
	d := NewFrameDecoder()

	frames, _ := feedAll(d, "R,RLEDU,0")
	if len(frames) != 0 {
		t.Fatalf("got %d frames before terminator", len(frames))
	}
	if d.Buffered() != len("R,RLEDU,0") {
		t.Errorf("Buffered() = %d, want %d", d.Buffered(), len("R,RLEDU,0"))
	}

	frames, _ = feedAll(d, "14,11\r")
	if len(frames) != 1 || frames[0] != "R,RLEDU,014,11" {
		t.Errorf("frames = %q, want [R,RLEDU,014,11]", frames)
	}
	if d.Buffered() != 0 {
		t.Errorf("Buffered() = %d after frame, want 0", d.Buffered())
	}
}

func TestFrameDecoderOverflow(t *testing.T) {
	d := NewFrameDecoder()

	var overflowErr error
	for i := 0; i < maxFrameLength+1; i++ {
		if _, _, err := d.Feed('1'); err != nil {
			overflowErr = err
		}
	}
	if !errors.Is(overflowErr, ErrFraming) {
		t.Fatalf("overflow error = %v, want ErrFraming", overflowErr)
	}

	// Decoder recovers on the next frame.
	frames, errs := feedAll(d, "\rR,RCACK\r")
	if len(errs) != 0 {
		t.Errorf("unexpected errors after overflow: %v", errs)
	}
	if len(frames) != 1 || frames[0] != "R,RCACK" {
		t.Errorf("frames = %q, want [R,RCACK]", frames)
	}
}

func TestFrameFieldsAndVerb(t *testing.T) {
	f := Frame("R,RLEDU,014,101")
	want := []string{"R", "RLEDU", "014", "101"}
	if got := f.Fields(); !reflect.DeepEqual(got, want) {
		t.Errorf("Fields() = %q, want %q", got, want)
	}
	if f.Verb() != VerbLEDUpdate {
		t.Errorf("Verb() = %q, want %q", f.Verb(), VerbLEDUpdate)
	}
	if Frame("R").Verb() != "" {
		t.Errorf("Verb() of one-field frame = %q, want empty", Frame("R").Verb())
	}
}
