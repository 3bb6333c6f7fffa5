package acquire

import (
	"fmt"
	"io"

	"go.bug.st/serial"
)

// Port is the minimal serial port surface the reader needs. It lets tests
// run without hardware.
type Port interface {
	io.ReadWriteCloser
}

// Opener opens a port at path. OpenSerial is the production opener.
type Opener func(path string, opts PortOptions) (Port, error)

// OpenSerial opens a real serial port with the given options.
func OpenSerial(path string, opts PortOptions) (Port, error) {
	opts, err := opts.Normalize()
	if err != nil {
		return nil, err
	}
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}
	if err := port.SetReadTimeout(opts.Timeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout on %s: %w", path, err)
	}
	return port, nil
}
