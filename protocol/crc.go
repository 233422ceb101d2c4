package protocol

import "github.com/sigurn/crc16"

// The bootloader firmware uses CRC-16/XMODEM: polynomial 0x1021, initial
// value 0x0000, no reflection and no final xor.
var crcTable = crc16.MakeTable(crc16.CRC16_XMODEM)

// CRC16 returns the frame checksum of data. The same function protects
// outgoing frames, validates incoming ones and checksums the flash image.
func CRC16(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}
