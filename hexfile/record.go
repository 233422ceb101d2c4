// Package hexfile reads Intel-HEX firmware images for the PIC32 bootloader.
//
// An Image streams raw records to the programmer through a line cursor and
// rebuilds a simulated flash from the same file to compute the address range
// and CRC the device will report after programming.
package hexfile

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// RecordType is the Intel-HEX record type byte.
type RecordType byte

const (
	RecordData       RecordType = 0x00
	RecordEOF        RecordType = 0x01
	RecordExtSegment RecordType = 0x02
	RecordStartSeg   RecordType = 0x03
	RecordExtLinear  RecordType = 0x04
	RecordStartLin   RecordType = 0x05
)

// headerSize counts the length, offset and type bytes. A raw record is
// header, data and one checksum byte.
const headerSize = 4

// Record is one decoded HEX line. The checksum is carried but not checked.
type Record struct {
	Length   byte
	Offset   uint16
	Type     RecordType
	Data     []byte
	Checksum byte
}

// ParseRecord splits a raw record (the hex-decoded bytes of one line) into
// its fields. Data aliases raw.
func ParseRecord(raw []byte) (Record, error) {
	if len(raw) < headerSize+1 {
		return Record{}, errors.Wrapf(ErrMalformed, "record of %d bytes", len(raw))
	}
	n := int(raw[0])
	if len(raw) < headerSize+n+1 {
		return Record{}, errors.Wrapf(ErrMalformed, "record declares %d data bytes, has %d", n, len(raw)-headerSize-1)
	}
	return Record{
		Length:   raw[0],
		Offset:   uint16(raw[1])<<8 | uint16(raw[2]),
		Type:     RecordType(raw[3]),
		Data:     raw[headerSize : headerSize+n],
		Checksum: raw[headerSize+n],
	}, nil
}

// decodeLine turns ":LLAAAATT..." into raw record bytes. line has its
// line ending stripped.
func decodeLine(line string) ([]byte, error) {
	if len(line) == 0 || line[0] != ':' {
		return nil, errors.Wrap(ErrMalformed, "missing ':'")
	}
	raw, err := hex.DecodeString(strings.TrimSpace(line[1:]))
	if err != nil {
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	if _, err := ParseRecord(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

func (t RecordType) String() string {
	switch t {
	case RecordData:
		return "data"
	case RecordEOF:
		return "eof"
	case RecordExtSegment:
		return "extended segment address"
	case RecordStartSeg:
		return "start segment address"
	case RecordExtLinear:
		return "extended linear address"
	case RecordStartLin:
		return "start linear address"
	default:
		return fmt.Sprintf("type 0x%02X", byte(t))
	}
}
