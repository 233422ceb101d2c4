package hexfile

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNoSelection is returned by Load when no path was given.
	ErrNoSelection = errors.New("hexfile: no image selected")

	// ErrUnreadable is returned by Load when the file cannot be opened or read.
	ErrUnreadable = errors.New("hexfile: image unreadable")

	// ErrNotLoaded is returned by cursor operations before a successful Load.
	ErrNotLoaded = errors.New("hexfile: no image loaded")

	// ErrMalformed is returned for a line that is not a HEX record.
	ErrMalformed = errors.New("hexfile: malformed record")

	// ErrNoRecord means the cursor had no record left to give. The programmer
	// treats it as the end of a ProgramFlash transfer.
	ErrNoRecord = errors.New("hexfile: no record")
)

// AddressError reports a data record that maps outside the simulated flash
// window while still below the boot sector.
type AddressError struct {
	Line    int
	Address uint32
	Length  int
}

func (e *AddressError) Error() string {
	return fmt.Sprintf("hexfile: line %d: %d bytes at 0x%08X outside flash window", e.Line, e.Length, e.Address)
}
