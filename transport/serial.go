// Package transport provides the byte channel to a bootloader: a serial
// port opened in non-blocking read mode, modem-line helpers to reset the
// target, and USB VID/PID based port discovery.
package transport

import (
	"io"
	"time"

	"github.com/pkg/errors"
	"go.bug.st/serial"
)

// DefaultBaudRate is the bootloader UART speed.
const DefaultBaudRate = 115200

// ErrClosed is returned by I/O on a closed port.
var ErrClosed = errors.New("transport: port closed")

// port is the part of serial.Port the channel uses.
type port interface {
	io.ReadWriteCloser
	SetDTR(dtr bool) error
	SetRTS(rts bool) error
	ResetInputBuffer() error
}

// Serial is a byte channel over a serial port. Reads never block: a read
// with nothing pending returns (0, nil).
type Serial struct {
	name string
	port port
}

// Open opens name at baud (8N1) with a zero read timeout and discards any
// stale input.
func Open(name string, baud int) (*Serial, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}
	mode := &serial.Mode{
		BaudRate:          baud,
		DataBits:          8,
		Parity:            serial.NoParity,
		StopBits:          serial.OneStopBit,
		InitialStatusBits: &serial.ModemOutputBits{RTS: false, DTR: false},
	}
	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "open %s", name)
	}
	if err := p.SetReadTimeout(0); err != nil {
		p.Close()
		return nil, errors.Wrapf(err, "set read timeout on %s", name)
	}
	if err := p.ResetInputBuffer(); err != nil {
		p.Close()
		return nil, errors.Wrapf(err, "flush %s", name)
	}
	return &Serial{name: name, port: p}, nil
}

func newSerial(name string, p port) *Serial {
	return &Serial{name: name, port: p}
}

// Name returns the port name.
func (s *Serial) Name() string {
	return s.name
}

// IsOpen reports whether the port is open.
func (s *Serial) IsOpen() bool {
	return s.port != nil
}

func (s *Serial) Read(p []byte) (int, error) {
	if s.port == nil {
		return 0, ErrClosed
	}
	return s.port.Read(p)
}

func (s *Serial) Write(p []byte) (int, error) {
	if s.port == nil {
		return 0, ErrClosed
	}
	return s.port.Write(p)
}

// Close closes the port. Closing twice is a no-op.
func (s *Serial) Close() error {
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

/*
 * @Description: pulse the reset line (RTS) with DTR released
 * @receiver s
 * @param hold how long reset stays asserted
 * @return error
 */
func (s *Serial) Reset(hold time.Duration) error {
	if s.port == nil {
		return ErrClosed
	}
	if err := s.port.SetDTR(false); err != nil {
		return err
	}
	if err := s.port.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(hold)
	if err := s.port.SetRTS(false); err != nil {
		return err
	}
	return nil
}

/*
 * @Description: restart the target with the bootloader request line (DTR)
 * held, so the bootloader stays resident instead of jumping to the application
 * @receiver s
 * @param hold settle time between line changes
 * @return error
 */
func (s *Serial) Activation(hold time.Duration) error {
	if s.port == nil {
		return ErrClosed
	}
	if err := s.port.SetDTR(false); err != nil {
		return err
	}
	if err := s.port.SetRTS(false); err != nil {
		return err
	}
	time.Sleep(hold)

	if err := s.port.SetDTR(true); err != nil {
		return err
	}
	if err := s.port.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(hold)

	if err := s.port.SetRTS(false); err != nil {
		return err
	}
	time.Sleep(hold)
	if err := s.port.SetDTR(false); err != nil {
		return err
	}
	return s.port.ResetInputBuffer()
}
