package hexfile

import (
	"io"

	"github.com/marcinbor85/gohex"
	"github.com/pkg/errors"
)

// Segment is a contiguous run of data in an image.
type Segment struct {
	Address   uint32 // as written in the file
	Size      int
	Protected bool // maps into the boot sector and is never programmed
}

// Summary describes an image without touching the simulated flash.
type Summary struct {
	Segments     []Segment
	Bytes        int // total data bytes
	Programmable int // data bytes below the boot sector
	StartAddress uint32
	HasStart     bool
}

// Inspect parses a whole image strictly, record checksums included, and
// summarises its data segments against layout. It is meant for offline
// checks of a file before it is streamed to a device.
func Inspect(r io.Reader, layout Layout) (*Summary, error) {
	mem := gohex.NewMemory()
	if err := mem.ParseIntelHex(r); err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}

	s := &Summary{}
	s.StartAddress, s.HasStart = mem.GetStartAddress()
	for _, seg := range mem.GetDataSegments() {
		protected := seg.Address|layout.KernelBit >= layout.BootSectorBegin
		s.Segments = append(s.Segments, Segment{
			Address:   seg.Address,
			Size:      len(seg.Data),
			Protected: protected,
		})
		s.Bytes += len(seg.Data)
		if !protected {
			s.Programmable += len(seg.Data)
		}
	}
	if len(s.Segments) == 0 {
		return nil, ErrNoRecord
	}
	return s, nil
}

// WriteBinary writes data as an Intel-HEX image placed at address, with
// lineLength data bytes per record.
func WriteBinary(w io.Writer, address uint32, data []byte, lineLength byte) error {
	mem := gohex.NewMemory()
	if err := mem.AddBinary(address, data); err != nil {
		return errors.Wrapf(err, "place %d bytes at 0x%08X", len(data), address)
	}
	return mem.DumpIntelHex(w, lineLength)
}
