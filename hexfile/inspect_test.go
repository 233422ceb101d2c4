package hexfile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
)

func TestWriteBinaryVerify(t *testing.T) {
	data := make([]byte, 64)
	for i := range data {
		data[i] = byte(i)
	}

	var buf bytes.Buffer
	if err := WriteBinary(&buf, 0x1D000000, data, 16); err != nil {
		t.Fatalf("WriteBinary() error = %v", err)
	}

	path := filepath.Join(t.TempDir(), "seq.hex")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatal(err)
	}

	img := New(PIC32MX)
	defer img.Close()
	if err := img.Load(path); err != nil {
		t.Fatal(err)
	}
	got, err := img.Verify()
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	want := Checksum{StartAddress: 0x9D000000, Length: 64, CRC: 0x2BF5}
	if got != want {
		t.Errorf("Verify() = %+v, want %+v", got, want)
	}
}

func TestInspect(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteBinary(&buf, 0x1D000100, bytes.Repeat([]byte{0xAA}, 40), 16); err != nil {
		t.Fatal(err)
	}
	boot := strings.Join([]string{elaBoot, bootData, eofRecord}, "\n")

	// Drop the generated EOF so the boot sector records follow.
	var lines []string
	for _, l := range strings.Split(buf.String(), "\n") {
		l = strings.TrimSpace(l)
		if l == "" || strings.EqualFold(l, eofRecord) {
			continue
		}
		lines = append(lines, l)
	}
	text := strings.Join(lines, "\n") + "\n" + boot + "\n"

	s, err := Inspect(strings.NewReader(text), PIC32MX)
	if err != nil {
		t.Fatalf("Inspect() error = %v", err)
	}
	if len(s.Segments) != 2 {
		t.Fatalf("segments = %+v, want 2", s.Segments)
	}
	if s.Bytes != 44 || s.Programmable != 40 {
		t.Errorf("Bytes = %d, Programmable = %d", s.Bytes, s.Programmable)
	}
	for _, seg := range s.Segments {
		wantProtected := seg.Address == 0x1FC00000
		if seg.Protected != wantProtected {
			t.Errorf("segment 0x%08X protected = %v", seg.Address, seg.Protected)
		}
	}
}

func TestInspectRejectsBadChecksum(t *testing.T) {
	text := strings.Join([]string{elaApp, ":04001000DEADBEEF00", eofRecord}, "\n")
	if _, err := Inspect(strings.NewReader(text), PIC32MX); !errors.Is(err, ErrMalformed) {
		t.Errorf("Inspect() = %v, want ErrMalformed", err)
	}
}

func TestInspectEmpty(t *testing.T) {
	if _, err := Inspect(strings.NewReader(eofRecord+"\n"), PIC32MX); !errors.Is(err, ErrNoRecord) {
		t.Errorf("Inspect() = %v, want ErrNoRecord", err)
	}
}
