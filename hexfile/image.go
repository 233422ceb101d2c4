package hexfile

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"

	"github.com/tocurd/go-pic32-isp/protocol"
)

// Erased is the value of an unprogrammed flash byte.
const Erased = 0xFF

// Layout describes the device address map used to place records into the
// simulated flash.
type Layout struct {
	// ApplicationBase is the physical address of VirtualFlash offset 0.
	ApplicationBase uint32 `yaml:"application_base"`
	// BootSectorBegin is the first address of the protected boot region.
	// Data at or above it is neither simulated nor counted in the range.
	BootSectorBegin uint32 `yaml:"boot_sector_begin"`
	// KernelBit is OR-ed into record addresses to map them into KSEG0.
	KernelBit uint32 `yaml:"kernel_bit"`
	// FlashSize is the size of the simulated flash in bytes.
	FlashSize int `yaml:"flash_size"`
}

// PIC32MX is the address map of the PIC32MX bootloader.
var PIC32MX = Layout{
	ApplicationBase: 0x9D000000,
	BootSectorBegin: 0x9FC00000,
	KernelBit:       0x80000000,
	FlashSize:       5 * 1024 * 1024,
}

// Checksum is the result of a verification pass: the 4-byte aligned range
// covered by the image and the CRC16 of the simulated flash over it.
type Checksum struct {
	StartAddress uint32
	Length       uint32
	CRC          uint16
}

// Image is a loaded HEX file with a forward line cursor. The cursor is
// shared by NextRecord and Verify; callers must not interleave a streaming
// transfer with a verification pass.
type Image struct {
	layout Layout
	flash  []byte

	path   string
	file   *os.File
	reader *bufio.Reader
	line   int
	total  int
}

// New returns an empty Image for the given layout. The simulated flash is
// allocated here, once.
func New(layout Layout) *Image {
	if layout.FlashSize <= 0 {
		layout.FlashSize = PIC32MX.FlashSize
	}
	layout.FlashSize &^= 3
	return &Image{
		layout: layout,
		flash:  make([]byte, layout.FlashSize),
	}
}

// Layout returns the address map the image was created with.
func (m *Image) Layout() Layout {
	return m.layout
}

// Load opens path, counts its lines and puts the cursor on line 0. A
// previously loaded file is closed first.
func (m *Image) Load(path string) error {
	if path == "" {
		return ErrNoSelection
	}

	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(ErrUnreadable, "%s: %v", path, err)
	}

	total := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		total++
	}
	if err := scanner.Err(); err != nil {
		f.Close()
		return errors.Wrapf(ErrUnreadable, "%s: %v", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		f.Close()
		return errors.Wrapf(ErrUnreadable, "%s: %v", path, err)
	}

	m.Close()
	m.path = path
	m.file = f
	m.reader = bufio.NewReader(f)
	m.total = total
	m.line = 0
	return nil
}

// Loaded reports whether an image is open.
func (m *Image) Loaded() bool {
	return m.file != nil
}

// Path returns the loaded file path.
func (m *Image) Path() string {
	return m.path
}

// Lines returns the number of lines counted by Load.
func (m *Image) Lines() int {
	return m.total
}

// Progress returns (lines consumed, total lines).
func (m *Image) Progress() (int, int) {
	return m.line, m.total
}

// Close releases the file. The Image can be loaded again afterwards.
func (m *Image) Close() error {
	if m.file == nil {
		return nil
	}
	err := m.file.Close()
	m.file = nil
	m.reader = nil
	m.path = ""
	m.line = 0
	m.total = 0
	return err
}

// ResetCursor rewinds to line 0.
func (m *Image) ResetCursor() error {
	if m.file == nil {
		return ErrNotLoaded
	}
	if _, err := m.file.Seek(0, io.SeekStart); err != nil {
		return errors.Wrapf(ErrUnreadable, "%s: %v", m.path, err)
	}
	m.reader.Reset(m.file)
	m.line = 0
	return nil
}

// NextRecord returns the raw bytes of the next record. At end of file it
// returns an empty slice and a nil error. Blank lines are skipped.
func (m *Image) NextRecord() ([]byte, error) {
	if m.file == nil {
		return nil, ErrNotLoaded
	}
	for {
		s, err := m.reader.ReadString('\n')
		if err != nil && err != io.EOF {
			return nil, errors.Wrapf(ErrUnreadable, "%s: %v", m.path, err)
		}
		if s == "" && err == io.EOF {
			return nil, nil
		}
		m.line++

		s = strings.TrimRight(s, "\r\n")
		if strings.TrimSpace(s) == "" {
			if err == io.EOF {
				return nil, nil
			}
			continue
		}
		raw, derr := decodeLine(s)
		if derr != nil {
			return nil, errors.WithMessagef(derr, "%s:%d", m.path, m.line)
		}
		return raw, nil
	}
}

// Verify erases the simulated flash, replays every record of the image into
// it and returns the aligned range written and its CRC16. The cursor is
// rewound before and after the pass.
func (m *Image) Verify() (Checksum, error) {
	if err := m.ResetCursor(); err != nil {
		return Checksum{}, err
	}
	defer m.ResetCursor()

	for i := range m.flash {
		m.flash[i] = Erased
	}

	var (
		base    = m.layout.ApplicationBase
		end     = base + uint32(len(m.flash))
		lo      = uint32(0xFFFFFFFF)
		hi      = uint32(0)
		ext     uint32
		written bool
	)

	for {
		raw, err := m.NextRecord()
		if err != nil {
			return Checksum{}, err
		}
		if len(raw) == 0 {
			break
		}
		rec, err := ParseRecord(raw)
		if err != nil {
			return Checksum{}, errors.WithMessagef(err, "%s:%d", m.path, m.line)
		}

		switch rec.Type {
		case RecordData:
			addr := (uint32(rec.Offset) + ext) | m.layout.KernelBit
			if addr >= m.layout.BootSectorBegin {
				continue
			}
			n := uint32(len(rec.Data))
			if addr < base || addr+n > end {
				return Checksum{}, &AddressError{Line: m.line, Address: addr, Length: len(rec.Data)}
			}
			copy(m.flash[addr-base:], rec.Data)
			if addr < lo {
				lo = addr
			}
			if addr+n > hi {
				hi = addr + n
			}
			written = true
		case RecordExtSegment:
			if len(rec.Data) < 2 {
				return Checksum{}, errors.Wrapf(ErrMalformed, "%s:%d: short address record", m.path, m.line)
			}
			ext = uint32(rec.Data[0])<<16 | uint32(rec.Data[1])<<8
		case RecordExtLinear:
			if len(rec.Data) < 2 {
				return Checksum{}, errors.Wrapf(ErrMalformed, "%s:%d: short address record", m.path, m.line)
			}
			ext = uint32(rec.Data[0])<<24 | uint32(rec.Data[1])<<16
		default:
			ext = 0
		}
	}

	if !written {
		return Checksum{}, errors.Wrapf(ErrNoRecord, "%s: no programmable data", m.path)
	}

	lo &^= 3
	hi = (hi + 3) &^ 3
	length := hi - lo
	off := lo - base
	return Checksum{
		StartAddress: lo,
		Length:       length,
		CRC:          protocol.CRC16(m.flash[off : off+length]),
	}, nil
}
