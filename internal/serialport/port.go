// Package serialport opens and abstracts the radar's UART.
package serialport

import (
	"errors"
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

var (
	// ErrWriteFailed reports a short write to the port.
	ErrWriteFailed = errors.New("failed to write to serial port")
	// ErrPortClosed is returned by reads on a closed test port.
	ErrPortClosed = errors.New("serial port closed")
)

// SerialPorter defines the minimal interface needed for a serial port.
// This abstraction enables unit testing without real serial hardware.
type SerialPorter interface {
	io.ReadWriter
	io.Closer
}

// TimeoutSerialPorter is implemented by ports whose reads can be bounded so a
// reader loop can notice cancellation.
type TimeoutSerialPorter interface {
	SerialPorter
	SetReadTimeout(timeout time.Duration) error
}

// Open opens the port at path with opts and bounds reads by opts.ReadTimeout.
func Open(path string, opts PortOptions) (SerialPorter, error) {
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
		return nil, fmt.Errorf("open serial port %s: %w", path, err)
	}
	if err := port.SetReadTimeout(opts.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("set read timeout on %s: %w", path, err)
	}
	return port, nil
}

// WriteFrame writes frame in a single call and reports short writes as
// ErrWriteFailed.
func WriteFrame(w io.Writer, frame []byte) error {
	n, err := w.Write(frame)
	if err != nil {
		return fmt.Errorf("write %d bytes: %w", len(frame), err)
	}
	if n != len(frame) {
		return ErrWriteFailed
	}
	return nil
}
