package trace

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/pkg/errors"
)

type loopback struct {
	bytes.Buffer
}

func (l *loopback) Read(p []byte) (int, error) {
	if l.Len() == 0 {
		return 0, nil
	}
	return l.Buffer.Read(p)
}

func TestTapRoundTrip(t *testing.T) {
	var capture bytes.Buffer
	rec := NewRecorder(&capture)
	tap := NewTap(&loopback{}, rec, func(err error) { t.Errorf("record: %v", err) })

	frame := []byte{0x01, 0x10, 0x01, 0x21, 0x10, 0x10, 0x04}
	if _, err := tap.Write(frame); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 3)
	if _, err := tap.Read(buf); err != nil {
		t.Fatal(err)
	}
	if _, err := tap.Read(make([]byte, 16)); err != nil {
		t.Fatal(err)
	}
	// Nothing pending: not recorded.
	if _, err := tap.Read(buf); err != nil {
		t.Fatal(err)
	}

	r := NewReader(&capture)
	var got []*Entry
	for {
		e, err := r.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Next() error = %v", err)
		}
		got = append(got, e)
	}

	if len(got) != 3 {
		t.Fatalf("entries = %d, want 3", len(got))
	}
	if got[0].Dir != DirTx || !bytes.Equal(got[0].Data, frame) {
		t.Errorf("entry 0 = %s % X", got[0].Dir, got[0].Data)
	}
	if got[1].Dir != DirRx || !bytes.Equal(got[1].Data, frame[:3]) {
		t.Errorf("entry 1 = %s % X", got[1].Dir, got[1].Data)
	}
	if !bytes.Equal(append(got[1].Data, got[2].Data...), frame) {
		t.Error("reads do not reassemble the frame")
	}
	for i, e := range got {
		if e.Seq != uint64(i+1) || e.Session != rec.Session() {
			t.Errorf("entry %d seq = %d session = %q", i, e.Seq, e.Session)
		}
	}
}

func TestReaderErrors(t *testing.T) {
	tooLarge := make([]byte, LengthPrefixSize)
	binary.BigEndian.PutUint32(tooLarge, MaxEntrySize+1)

	truncated := make([]byte, LengthPrefixSize, LengthPrefixSize+2)
	binary.BigEndian.PutUint32(truncated, 10)
	truncated = append(truncated, 0x81, 0xA3)

	garbage := make([]byte, LengthPrefixSize, LengthPrefixSize+1)
	binary.BigEndian.PutUint32(garbage, 1)
	garbage = append(garbage, 0xC1) // never-used msgpack code

	tests := []struct {
		name string
		data []byte
		kind FrameErrorKind
	}{
		{"short prefix", []byte{0x00, 0x01}, FrameErrorPartial},
		{"too large", tooLarge, FrameErrorTooLarge},
		{"truncated entry", truncated, FrameErrorPartial},
		{"bad msgpack", garbage, FrameErrorDecode},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewReader(bytes.NewReader(tt.data)).Next()
			var fe *FrameError
			if !errors.As(err, &fe) {
				t.Fatalf("Next() = %v, want *FrameError", err)
			}
			if fe.Kind != tt.kind {
				t.Errorf("Kind = %d, want %d", fe.Kind, tt.kind)
			}
		})
	}
}

func TestRecorderSkipsEmpty(t *testing.T) {
	var capture bytes.Buffer
	rec := NewRecorder(&capture)
	if err := rec.Record(DirRx, nil); err != nil {
		t.Fatal(err)
	}
	if capture.Len() != 0 {
		t.Errorf("capture holds %d bytes", capture.Len())
	}
}
