// Package transport provides the byte links that carry packets between the
// host and the first device of a chain, and between neighbouring devices.
//
// A Port is any half of a byte stream with a read timeout. Real serial ports
// opened with OpenSerial, TCP connections wrapped with FromConn, and the
// in-memory pipes from NewPipe all satisfy it. A Link wraps a Port with the
// deadline-driven read helpers used by the protocol code.
//
// Read timeouts follow the go.bug.st/serial convention: a Read that times out
// returns (0, nil) rather than an error.
package transport
