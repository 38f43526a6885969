package serialmux

import (
	"fmt"

	"go.bug.st/serial"
)

// OpenSerialPort opens a real serial device with the given options.
func OpenSerialPort(path string, opts PortOptions) (SerialPorter, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return port, nil
}

// NewRealSerialMux creates a SerialMux backed by the serial device at path.
func NewRealSerialMux(path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	return NewSerialMuxWith(OpenSerialPort, path, opts)
}

// NewSerialMuxWith opens path with open and wraps the port in a SerialMux.
func NewSerialMuxWith(open SerialPortOpener, path string, opts PortOptions) (*SerialMux[SerialPorter], error) {
	if path == "" {
		return nil, fmt.Errorf("serial port path is required")
	}
	port, err := open(path, opts)
	if err != nil {
		return nil, err
	}
	return NewSerialMux(port), nil
}
