package protocol

import (
	"encoding/binary"
	"fmt"

	"github.com/pkg/errors"
)

// ErrShortResponse is returned when a response payload is too small for the
// command it answers.
var ErrShortResponse = errors.New("protocol: short response")

// ReadCrcRequestSize is the ReadCrc payload size: tag, start, length, crc.
const ReadCrcRequestSize = 1 + 4 + 4 + 2

// BuildCommand returns the payload of a command that carries no arguments
// (ReadBootInfo, EraseFlash, JmpToApp).
func BuildCommand(cmd Command) []byte {
	return []byte{byte(cmd)}
}

// BuildProgramFlash returns a ProgramFlash payload: the tag followed by the
// decoded HEX records, back to back.
//
//	[0x03][record_0]...[record_n]
func BuildProgramFlash(records [][]byte) []byte {
	n := 1
	for _, r := range records {
		n += len(r)
	}
	payload := make([]byte, 0, n)
	payload = append(payload, byte(CommandProgramFlash))
	for _, r := range records {
		payload = append(payload, r...)
	}
	return payload
}

// BuildReadCrc returns a ReadCrc payload asking the device for the CRC of
// length bytes starting at start. crc is the value computed locally.
//
//	[0x04][START(4, LE)][LENGTH(4, LE)][CRC(2, LE)]
func BuildReadCrc(start, length uint32, crc uint16) []byte {
	payload := make([]byte, ReadCrcRequestSize)
	payload[0] = byte(CommandReadCrc)
	binary.LittleEndian.PutUint32(payload[1:5], start)
	binary.LittleEndian.PutUint32(payload[5:9], length)
	binary.LittleEndian.PutUint16(payload[9:11], crc)
	return payload
}

// BootInfo is the answer to ReadBootInfo.
type BootInfo struct {
	Major byte
	Minor byte
}

func (b BootInfo) String() string {
	return fmt.Sprintf("%d.%d", b.Major, b.Minor)
}

// ParseBootInfo decodes a ReadBootInfo response body (tag stripped).
func ParseBootInfo(data []byte) (BootInfo, error) {
	if len(data) < 2 {
		return BootInfo{}, errors.Wrapf(ErrShortResponse, "boot info: %d bytes", len(data))
	}
	return BootInfo{Major: data[0], Minor: data[1]}, nil
}

// ParseCRC decodes a ReadCrc response body (tag stripped) into the CRC the
// device computed over its flash.
func ParseCRC(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, errors.Wrapf(ErrShortResponse, "read crc: %d bytes", len(data))
	}
	return binary.LittleEndian.Uint16(data), nil
}
