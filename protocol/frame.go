package protocol

import "github.com/pkg/errors"

// ErrFrameTooLarge is returned by the Decoder when a frame body grows past
// the receive capacity before its EOT arrives. The partial frame is dropped
// and the decoder skips input until the next unescaped SOH.
var ErrFrameTooLarge = errors.New("protocol: frame exceeds receive buffer")

// MaxEncodedLen returns the largest frame Encode can produce for a payload
// of n bytes.
func MaxEncodedLen(n int) int {
	return 2*(n+CRCSize) + 2
}

func isMarker(b byte) bool {
	return b == SOH || b == EOT || b == DLE
}

// Encode wraps payload into a frame: SOH, the DLE-escaped payload followed
// by its little-endian CRC16, EOT.
func Encode(payload []byte) []byte {
	crc := CRC16(payload)

	frame := make([]byte, 0, MaxEncodedLen(len(payload)))
	frame = append(frame, SOH)
	for _, b := range payload {
		if isMarker(b) {
			frame = append(frame, DLE)
		}
		frame = append(frame, b)
	}
	for _, b := range []byte{byte(crc), byte(crc >> 8)} {
		if isMarker(b) {
			frame = append(frame, DLE)
		}
		frame = append(frame, b)
	}
	return append(frame, EOT)
}

// Counters tracks what a Decoder has seen since it was created.
type Counters struct {
	Frames    uint64 // frames that passed the CRC check
	CRCErrors uint64 // frames dropped on a CRC mismatch or runt body
	Overflows uint64 // frames dropped because they outgrew the buffer
}

// Decoder rebuilds validated payloads from a raw byte stream. It is fed one
// byte at a time (or a chunk through Decode) and keeps its state between
// calls, so frames may be split across reads arbitrarily.
type Decoder struct {
	buf      []byte
	capacity int
	escape   bool
	discard  bool
	counters Counters
}

// NewDecoder creates a decoder whose body buffer holds at most capacity
// unescaped bytes (payload plus CRC). capacity <= 0 selects DefaultCapacity.
func NewDecoder(capacity int) *Decoder {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Decoder{
		buf:      make([]byte, 0, capacity),
		capacity: capacity,
	}
}

// Reset drops any partially received frame.
func (d *Decoder) Reset() {
	d.buf = d.buf[:0]
	d.escape = false
	d.discard = false
}

// Counters returns a copy of the decoder statistics.
func (d *Decoder) Counters() Counters {
	return d.counters
}

// Feed consumes one byte. It returns the payload (CRC stripped) when b
// completes a valid frame. Frames failing the CRC check are dropped silently;
// the sender retransmits them. ErrFrameTooLarge is returned once per
// oversized frame.
func (d *Decoder) Feed(b byte) ([]byte, error) {
	if d.discard {
		switch {
		case d.escape:
			d.escape = false
		case b == DLE:
			d.escape = true
		case b == SOH:
			d.Reset()
		}
		return nil, nil
	}

	if d.escape {
		d.escape = false
		return nil, d.append(b)
	}

	switch b {
	case SOH:
		d.buf = d.buf[:0]
	case EOT:
		return d.finish(), nil
	case DLE:
		d.escape = true
	default:
		return nil, d.append(b)
	}
	return nil, nil
}

// Decode feeds every byte of p and returns the frames completed by it. An
// overflow does not stop decoding; ErrFrameTooLarge is returned alongside
// whatever frames were recovered.
func (d *Decoder) Decode(p []byte) ([][]byte, error) {
	var (
		frames [][]byte
		first  error
	)
	for _, b := range p {
		frame, err := d.Feed(b)
		if err != nil && first == nil {
			first = err
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames, first
}

func (d *Decoder) append(b byte) error {
	if len(d.buf) >= d.capacity {
		d.buf = d.buf[:0]
		d.discard = true
		d.counters.Overflows++
		return ErrFrameTooLarge
	}
	d.buf = append(d.buf, b)
	return nil
}

func (d *Decoder) finish() []byte {
	defer func() { d.buf = d.buf[:0] }()

	n := len(d.buf)
	if n <= CRCSize {
		if n > 0 {
			d.counters.CRCErrors++
		}
		return nil
	}
	want := uint16(d.buf[n-2]) | uint16(d.buf[n-1])<<8
	if CRC16(d.buf[:n-CRCSize]) != want {
		d.counters.CRCErrors++
		return nil
	}
	d.counters.Frames++

	payload := make([]byte, n-CRCSize)
	copy(payload, d.buf)
	return payload
}
