package transport

import (
	"io"
	"time"
)

// Port is a bidirectional byte stream with a configurable read timeout.
//
// go.bug.st/serial.Port satisfies Port, so a real serial port can be passed
// anywhere a Port is accepted.
type Port interface {
	io.ReadWriteCloser

	// SetReadTimeout sets the timeout of subsequent Read calls. A negative
	// value blocks until data arrives. A Read that times out returns (0, nil).
	SetReadTimeout(t time.Duration) error

	// ResetInputBuffer drops any bytes received but not yet read.
	ResetInputBuffer() error
}

// NoTimeout blocks reads until data arrives.
const NoTimeout time.Duration = -1
