package uart

import (
	"fmt"

	"go.bug.st/serial"
)

// NewRealTransport opens the serial port at path with the given options.
func NewRealTransport(path string, opts PortOptions) (*Transport[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %w", path, err)
	}

	return NewTransport[serial.Port](port), nil
}
