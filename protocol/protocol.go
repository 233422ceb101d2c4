// Package protocol implements the wire side of the PIC32 serial bootloader:
// command tags, CRC-16 framing with DLE byte stuffing, an incremental frame
// decoder and helpers for building and parsing command payloads.
//
// A frame on the wire looks like:
//
//	[SOH] payload || crc16(payload) (DLE-escaped) [EOT]
//
// where the CRC is appended little-endian and every SOH, EOT or DLE inside
// the escaped region is preceded by DLE.
package protocol

import "fmt"

// Frame markers.
const (
	SOH byte = 0x01 // start of header
	EOT byte = 0x04 // end of transmission
	DLE byte = 0x10 // data link escape
)

const (
	// DefaultCapacity is the receive buffer size of the device firmware. A
	// frame whose unescaped body grows past it is dropped.
	DefaultCapacity = 255

	// RecordsPerBatch is the number of HEX records packed into one
	// ProgramFlash command.
	RecordsPerBatch = 11

	// CRCSize is the size of the trailing frame checksum.
	CRCSize = 2
)

// Command is the leading tag byte of every request and response payload.
type Command byte

const (
	CommandReadBootInfo Command = 0x01 // bootloader version
	CommandEraseFlash   Command = 0x02 // erase the application region
	CommandProgramFlash Command = 0x03 // program up to RecordsPerBatch HEX records
	CommandReadCrc      Command = 0x04 // device side CRC over an address range
	CommandJmpToApp     Command = 0x05 // leave the bootloader
)

// Commands lists every command in tag order.
var Commands = []Command{
	CommandReadBootInfo,
	CommandEraseFlash,
	CommandProgramFlash,
	CommandReadCrc,
	CommandJmpToApp,
}

// Valid reports whether c is a known command tag.
func (c Command) Valid() bool {
	return c >= CommandReadBootInfo && c <= CommandJmpToApp
}

func (c Command) String() string {
	switch c {
	case CommandReadBootInfo:
		return "ReadBootInfo"
	case CommandEraseFlash:
		return "EraseFlash"
	case CommandProgramFlash:
		return "ProgramFlash"
	case CommandReadCrc:
		return "ReadCrc"
	case CommandJmpToApp:
		return "JmpToApp"
	default:
		return fmt.Sprintf("Command(0x%02X)", byte(c))
	}
}

// ParseCommand maps a command name (as printed by String) back to its tag.
func ParseCommand(name string) (Command, error) {
	for _, c := range Commands {
		if c.String() == name {
			return c, nil
		}
	}
	return 0, fmt.Errorf("unknown command %q", name)
}
