package serialport

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenReal opens the serial device at path with go.bug.st/serial and applies
// the read timeout from opts.
func OpenReal(path string, opts PortOptions) (Port, error) {
	opts, err := opts.Normalise()
	if err != nil {
		return nil, err
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	return port, nil
}

var _ Opener = OpenReal
