package isp

import (
	"context"

	"github.com/tocurd/go-pic32-isp/hexfile"
	"github.com/tocurd/go-pic32-isp/protocol"
)

type Interface interface {
	// Bootloader version; also serves as the connect handshake
	ReadBootInfo(ctx context.Context) (protocol.BootInfo, error)

	// Erase the application flash
	EraseFlash(ctx context.Context) error

	// Open a HEX file for Verify
	Load(path string) error

	// Program a HEX file
	WriteFile(ctx context.Context, path string, progress func(float64)) error

	// Compare device and image CRC
	Verify(ctx context.Context) (hexfile.Checksum, error)

	// Jump to the application
	Run(ctx context.Context) error

	// Connect, erase, program, verify and optionally run
	Flash(ctx context.Context, path string, run bool, progress func(float64)) error
}

var _ Interface = (*ISP)(nil)
