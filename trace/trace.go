// Package trace captures the raw bytes exchanged with a bootloader.
//
// A capture is a stream of length-prefixed msgpack entries: a 4-byte
// big-endian payload size followed by one encoded Entry. Captures taken on
// real hardware double as golden vectors for the frame codec.
package trace

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"
)

const (
	// LengthPrefixSize is the size of the entry length prefix in bytes.
	LengthPrefixSize = 4
	// MaxEntrySize bounds one encoded entry.
	MaxEntrySize = 1 << 20
)

// Direction tells who sent the bytes of an entry.
type Direction string

const (
	DirTx Direction = "tx" // host to device
	DirRx Direction = "rx" // device to host
)

// Entry is one captured read or write.
type Entry struct {
	Session string    `msgpack:"session"`
	Seq     uint64    `msgpack:"seq"`
	Time    time.Time `msgpack:"time"`
	Dir     Direction `msgpack:"dir"`
	Data    []byte    `msgpack:"data"`
}

// FrameErrorKind classifies capture decoding errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated entry.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates an entry exceeding MaxEntrySize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack decoding error.
	FrameErrorDecode
)

// FrameError represents a capture decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// Recorder appends entries to a capture. It is safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	w       io.Writer
	session string
	seq     uint64
	now     func() time.Time
}

// NewRecorder starts a capture on w under a fresh session id.
func NewRecorder(w io.Writer) *Recorder {
	return &Recorder{
		w:       w,
		session: uuid.NewString(),
		now:     time.Now,
	}
}

// Session returns the capture session id.
func (r *Recorder) Session() string {
	return r.session
}

// Record appends one entry. Empty data is not recorded.
func (r *Recorder) Record(dir Direction, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	r.seq++
	payload, err := msgpack.Marshal(&Entry{
		Session: r.session,
		Seq:     r.seq,
		Time:    r.now(),
		Dir:     dir,
		Data:    data,
	})
	if err != nil {
		return err
	}

	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(payload)))
	if _, err := r.w.Write(prefix[:]); err != nil {
		return err
	}
	_, err = r.w.Write(payload)
	return err
}

// Reader reads entries back from a capture.
type Reader struct {
	r io.Reader
}

// NewReader creates a capture reader.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: r}
}

// Next returns the next entry.
//
// Errors:
//   - io.EOF: capture ended cleanly
//   - *FrameError: truncated, oversized or undecodable entry
func (r *Reader) Next() (*Entry, error) {
	var prefix [LengthPrefixSize]byte
	if _, err := io.ReadFull(r.r, prefix[:]); err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read length prefix", Err: err}
	}

	size := binary.BigEndian.Uint32(prefix[:])
	if size > MaxEntrySize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("entry size %d exceeds maximum %d", size, MaxEntrySize),
		}
	}

	payload := make([]byte, size)
	if _, err := io.ReadFull(r.r, payload); err != nil {
		return nil, &FrameError{Kind: FrameErrorPartial, Msg: "failed to read entry", Err: err}
	}

	var e Entry
	if err := msgpack.Unmarshal(payload, &e); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode entry", Err: err}
	}
	return &e, nil
}

// Tap wraps a byte channel and records every write and every non-empty
// read. Recording failures are reported to onErr, if set, and never fail
// the I/O itself.
type Tap struct {
	rw    io.ReadWriter
	rec   *Recorder
	onErr func(error)
}

// NewTap returns a recording view of rw.
func NewTap(rw io.ReadWriter, rec *Recorder, onErr func(error)) *Tap {
	return &Tap{rw: rw, rec: rec, onErr: onErr}
}

func (t *Tap) Read(p []byte) (int, error) {
	n, err := t.rw.Read(p)
	if n > 0 {
		t.record(DirRx, p[:n])
	}
	return n, err
}

func (t *Tap) Write(p []byte) (int, error) {
	n, err := t.rw.Write(p)
	if n > 0 {
		t.record(DirTx, p[:n])
	}
	return n, err
}

func (t *Tap) record(dir Direction, data []byte) {
	if err := t.rec.Record(dir, data); err != nil && t.onErr != nil {
		t.onErr(err)
	}
}
