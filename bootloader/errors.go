package bootloader

import "github.com/pkg/errors"

var (
	// ErrTransferInProgress is returned by Send when a ReadCrc would rewind
	// the image under a streaming ProgramFlash transfer.
	ErrTransferInProgress = errors.New("bootloader: program transfer in progress")

	// ErrUnknownCommand is returned by Send for a tag outside the command set.
	ErrUnknownCommand = errors.New("bootloader: unknown command")

	// ErrNoImage is returned by Send for ProgramFlash and ReadCrc when the
	// session has no image.
	ErrNoImage = errors.New("bootloader: no image attached")
)
