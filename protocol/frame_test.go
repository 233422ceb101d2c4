package protocol

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name     string
		payload  []byte
		expected []byte
	}{
		{
			name:     "read boot info escapes tag and crc",
			payload:  []byte{0x01},
			expected: []byte{0x01, 0x10, 0x01, 0x21, 0x10, 0x10, 0x04},
		},
		{
			name:     "erase flash needs no escaping",
			payload:  []byte{0x02},
			expected: []byte{0x01, 0x02, 0x42, 0x20, 0x04},
		},
		{
			name:     "jump to app",
			payload:  []byte{0x05},
			expected: []byte{0x01, 0x05, 0xA5, 0x50, 0x04},
		},
		{
			name:     "every marker",
			payload:  []byte{SOH, EOT, DLE},
			expected: []byte{0x01, 0x10, 0x01, 0x10, 0x04, 0x10, 0x10, 0xC5, 0xE9, 0x04},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Encode(tt.payload)
			if !bytes.Equal(got, tt.expected) {
				t.Errorf("Encode() = % X, want % X", got, tt.expected)
			}
			if len(got) > MaxEncodedLen(len(tt.payload)) {
				t.Errorf("len = %d, exceeds MaxEncodedLen %d", len(got), MaxEncodedLen(len(tt.payload)))
			}
		})
	}
}

func TestDecodeRoundTrip(t *testing.T) {
	long := make([]byte, 200)
	for i := range long {
		long[i] = byte(i % 6) // dense in SOH, EOT and DLE
	}

	payloads := map[string][]byte{
		"single byte":   {0x42},
		"one soh":       {0x03, SOH, 0x03},
		"one eot":       {EOT},
		"one dle":       {DLE},
		"dle pairs":     {DLE, DLE, DLE, DLE},
		"all markers":   {SOH, EOT, DLE, SOH, EOT, DLE},
		"read crc":      BuildReadCrc(0x9D000010, 4, 0xC457),
		"marker dense":  long,
		"erased record": bytes.Repeat([]byte{0xFF}, 16),
	}

	for name, payload := range payloads {
		t.Run(name, func(t *testing.T) {
			d := NewDecoder(0)
			frames, err := d.Decode(Encode(payload))
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(frames) != 1 {
				t.Fatalf("got %d frames, want 1", len(frames))
			}
			if !bytes.Equal(frames[0], payload) {
				t.Errorf("payload = % X, want % X", frames[0], payload)
			}
		})
	}
}

func TestDecodeSplitAcrossReads(t *testing.T) {
	frame := append(Encode([]byte{0x01, 0x02, 0x03}), Encode([]byte{0x02})...)
	d := NewDecoder(0)

	var got [][]byte
	for _, b := range frame {
		payload, err := d.Feed(b)
		if err != nil {
			t.Fatalf("Feed() error = %v", err)
		}
		if payload != nil {
			got = append(got, payload)
		}
	}
	if len(got) != 2 {
		t.Fatalf("got %d frames, want 2", len(got))
	}
	if !bytes.Equal(got[0], []byte{0x01, 0x02, 0x03}) || !bytes.Equal(got[1], []byte{0x02}) {
		t.Errorf("frames = % X", got)
	}
}

func TestDecodeRejectsBadCRC(t *testing.T) {
	tests := []struct {
		name string
		raw  []byte
	}{
		{"flipped crc byte", []byte{SOH, 0x02, 0x42, 0x21, EOT}},
		{"flipped payload byte", []byte{SOH, 0x03, 0x42, 0x20, EOT}},
		{"runt body", []byte{SOH, 0x42, 0x20, EOT}},
		{"crc only of empty payload", []byte{SOH, 0x00, 0x00, EOT}},
		{"empty", []byte{SOH, EOT}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDecoder(0)
			frames, err := d.Decode(tt.raw)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if len(frames) != 0 {
				t.Errorf("got %d frames, want none", len(frames))
			}
		})
	}
}

func TestDecodeCorruptedFrameHealsOnSOH(t *testing.T) {
	d := NewDecoder(0)
	garbage := []byte{SOH, 0x02, 0x42, 0x77}
	frames, err := d.Decode(append(garbage, Encode([]byte{0x02})...))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], []byte{0x02}) {
		t.Fatalf("frames = % X, want [02]", frames)
	}

	c := d.Counters()
	if c.Frames != 1 || c.CRCErrors != 0 {
		t.Errorf("counters = %+v", c)
	}
}

func TestDecodeOverflow(t *testing.T) {
	d := NewDecoder(8)

	raw := []byte{SOH}
	raw = append(raw, bytes.Repeat([]byte{0x55}, 9)...)
	// A terminator belonging to the oversized frame and an escaped SOH must
	// not end the discard.
	raw = append(raw, DLE, SOH, EOT)
	raw = append(raw, Encode([]byte{0x02})...)

	frames, err := d.Decode(raw)
	if !errors.Is(err, ErrFrameTooLarge) {
		t.Fatalf("Decode() error = %v, want ErrFrameTooLarge", err)
	}
	if len(frames) != 1 || !bytes.Equal(frames[0], []byte{0x02}) {
		t.Fatalf("frames = % X, want [02]", frames)
	}
	if c := d.Counters(); c.Overflows != 1 {
		t.Errorf("Overflows = %d, want 1", c.Overflows)
	}
}

func TestDecodeFillsCapacity(t *testing.T) {
	payload := bytes.Repeat([]byte{0x33}, DefaultCapacity-CRCSize)
	d := NewDecoder(0)
	frames, err := d.Decode(Encode(payload))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(frames) != 1 || len(frames[0]) != len(payload) {
		t.Fatalf("frames = %d, want one of %d bytes", len(frames), len(payload))
	}
}
