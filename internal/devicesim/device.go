// Package devicesim emulates a PIC32 serial bootloader behind an
// io.ReadWriter. It decodes host frames, keeps a model of the device flash
// and answers like the firmware does, so sessions can be exercised without
// hardware.
package devicesim

import (
	"bytes"
	"encoding/binary"

	"go.uber.org/zap"

	"github.com/tocurd/go-pic32-isp/hexfile"
	"github.com/tocurd/go-pic32-isp/protocol"
)

// Device is an in-memory bootloader. It is not safe for concurrent use.
type Device struct {
	// Major and Minor are reported by ReadBootInfo.
	Major, Minor byte

	// Drop, when set, is asked about every request; returning true makes
	// the device ignore it. n counts requests of that command, from 1.
	Drop func(cmd protocol.Command, n int) bool

	// Chunk limits the bytes returned per Read. Zero means no limit.
	Chunk int

	layout hexfile.Layout
	flash  []byte
	ext    uint32
	dec    *protocol.Decoder
	out    bytes.Buffer
	seen   map[protocol.Command]int
	log    []protocol.Command
	jumped bool
	logger *zap.Logger
}

// New returns an erased device with the given address map.
func New(layout hexfile.Layout, logger *zap.Logger) *Device {
	if logger == nil {
		logger = zap.NewNop()
	}
	if layout.FlashSize <= 0 {
		layout.FlashSize = hexfile.PIC32MX.FlashSize
	}
	d := &Device{
		Major:  1,
		Minor:  0,
		layout: layout,
		flash:  make([]byte, layout.FlashSize),
		dec:    protocol.NewDecoder(4096),
		seen:   make(map[protocol.Command]int),
		logger: logger.Named("devicesim"),
	}
	d.erase()
	return d
}

// Write accepts host bytes and queues any responses they trigger.
func (d *Device) Write(p []byte) (int, error) {
	frames, err := d.dec.Decode(p)
	if err != nil {
		d.logger.Warn("request dropped", zap.Error(err))
	}
	for _, f := range frames {
		d.handle(f)
	}
	return len(p), nil
}

// Read returns pending response bytes; (0, nil) when there are none.
func (d *Device) Read(p []byte) (int, error) {
	if d.out.Len() == 0 {
		return 0, nil
	}
	if d.Chunk > 0 && len(p) > d.Chunk {
		p = p[:d.Chunk]
	}
	return d.out.Read(p)
}

// Close implements io.Closer.
func (d *Device) Close() error {
	return nil
}

// Requests returns the commands received, in order, dropped ones included.
func (d *Device) Requests() []protocol.Command {
	return d.log
}

// Count returns how many times cmd was received.
func (d *Device) Count(cmd protocol.Command) int {
	return d.seen[cmd]
}

// Jumped reports whether JmpToApp was received.
func (d *Device) Jumped() bool {
	return d.jumped
}

// Flash returns n bytes of the flash model at a physical address.
func (d *Device) Flash(addr uint32, n int) []byte {
	off := int(addr - d.layout.ApplicationBase)
	return d.flash[off : off+n]
}

// Poke overwrites one flash byte, simulating a bad write.
func (d *Device) Poke(addr uint32, b byte) {
	d.flash[addr-d.layout.ApplicationBase] = b
}

func (d *Device) handle(payload []byte) {
	cmd := protocol.Command(payload[0])
	d.seen[cmd]++
	d.log = append(d.log, cmd)
	if d.Drop != nil && d.Drop(cmd, d.seen[cmd]) {
		d.logger.Debug("request ignored", zap.Stringer("command", cmd), zap.Int("n", d.seen[cmd]))
		return
	}

	switch cmd {
	case protocol.CommandReadBootInfo:
		d.reply(cmd, d.Major, d.Minor)
	case protocol.CommandEraseFlash:
		d.erase()
		d.reply(cmd)
	case protocol.CommandProgramFlash:
		d.program(payload[1:])
		d.reply(cmd)
	case protocol.CommandReadCrc:
		if len(payload) < protocol.ReadCrcRequestSize {
			return
		}
		start := binary.LittleEndian.Uint32(payload[1:5])
		length := binary.LittleEndian.Uint32(payload[5:9])
		crc := d.crc(start, length)
		d.reply(cmd, byte(crc), byte(crc>>8))
	case protocol.CommandJmpToApp:
		d.jumped = true
	}
}

func (d *Device) reply(cmd protocol.Command, body ...byte) {
	d.out.Write(protocol.Encode(append([]byte{byte(cmd)}, body...)))
}

func (d *Device) erase() {
	for i := range d.flash {
		d.flash[i] = hexfile.Erased
	}
	d.ext = 0
}

// program applies the records packed back to back in body.
func (d *Device) program(body []byte) {
	for len(body) > 0 {
		rec, err := hexfile.ParseRecord(body)
		if err != nil {
			d.logger.Warn("bad record", zap.Error(err))
			return
		}
		body = body[5+int(rec.Length):]

		switch rec.Type {
		case hexfile.RecordData:
			addr := (uint32(rec.Offset) + d.ext) | d.layout.KernelBit
			if addr >= d.layout.BootSectorBegin || addr < d.layout.ApplicationBase {
				continue
			}
			off := int(addr - d.layout.ApplicationBase)
			if off+len(rec.Data) > len(d.flash) {
				continue
			}
			copy(d.flash[off:], rec.Data)
		case hexfile.RecordExtSegment:
			if len(rec.Data) < 2 {
				return
			}
			d.ext = uint32(rec.Data[0])<<16 | uint32(rec.Data[1])<<8
		case hexfile.RecordExtLinear:
			if len(rec.Data) < 2 {
				return
			}
			d.ext = uint32(rec.Data[0])<<24 | uint32(rec.Data[1])<<16
		default:
			d.ext = 0
		}
	}
}

func (d *Device) crc(start, length uint32) uint16 {
	if start < d.layout.ApplicationBase {
		return 0xFFFF
	}
	off := uint64(start - d.layout.ApplicationBase)
	if off+uint64(length) > uint64(len(d.flash)) {
		return 0xFFFF
	}
	return protocol.CRC16(d.flash[off : off+uint64(length)])
}
