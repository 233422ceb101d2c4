package transport

import (
	"strings"

	"github.com/pkg/errors"
	"go.bug.st/serial/enumerator"
)

// USB identifiers of the FTDI bridge used on the reference boards.
const (
	DefaultVID = "0403"
	DefaultPID = "6015"
)

// ErrNotFound is returned by Find when no port matches.
var ErrNotFound = errors.New("transport: no matching port")

// PortInfo describes a serial port on the host.
type PortInfo struct {
	Name         string
	IsUSB        bool
	VID          string
	PID          string
	SerialNumber string
	Product      string
}

// List returns the serial ports on the host.
func List() ([]PortInfo, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate ports")
	}
	out := make([]PortInfo, 0, len(ports))
	for _, p := range ports {
		out = append(out, PortInfo{
			Name:         p.Name,
			IsUSB:        p.IsUSB,
			VID:          p.VID,
			PID:          p.PID,
			SerialNumber: p.SerialNumber,
			Product:      p.Product,
		})
	}
	return out, nil
}

// Find returns the name of the first USB port with the given vendor and
// product id (hex, case insensitive, optional 0x prefix).
func Find(vid, pid string) (string, error) {
	ports, err := List()
	if err != nil {
		return "", err
	}
	return match(ports, vid, pid)
}

func match(ports []PortInfo, vid, pid string) (string, error) {
	vid, pid = normalizeID(vid), normalizeID(pid)
	for _, p := range ports {
		if !p.IsUSB {
			continue
		}
		if normalizeID(p.VID) == vid && normalizeID(p.PID) == pid {
			return p.Name, nil
		}
	}
	return "", errors.Wrapf(ErrNotFound, "usb %s:%s", vid, pid)
}

func normalizeID(id string) string {
	id = strings.TrimSpace(strings.ToUpper(id))
	return strings.TrimPrefix(id, "0X")
}
