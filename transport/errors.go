package transport

import "errors"

var (
	// ErrTimeout indicates that a read deadline passed before the requested
	// bytes arrived.
	ErrTimeout = errors.New("transport: read timeout")

	// ErrClosed indicates that the port was closed.
	ErrClosed = errors.New("transport: port closed")

	// ErrNoPorts indicates that no serial port matched the requested pattern.
	ErrNoPorts = errors.New("transport: no matching serial ports")
)
