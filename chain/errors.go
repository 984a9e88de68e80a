package chain

import (
	"errors"
	"fmt"

	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/transport"
)

var (
	// ErrTimeout indicates that an expected reply did not arrive in time.
	ErrTimeout = transport.ErrTimeout

	// ErrAddressOutOfRange indicates an offset beyond the device memory,
	// detected by the host or reported by the device with a NACK.
	ErrAddressOutOfRange = errors.New("chain: address out of range")

	// ErrUnexpectedReply indicates a well-formed reply that does not belong
	// to the current exchange.
	ErrUnexpectedReply = errors.New("chain: unexpected reply")

	// ErrInvalidTarget indicates an operation addressed to the broadcast id.
	ErrInvalidTarget = errors.New("chain: invalid target")

	// ErrWorkerClosed indicates a request to a closed worker.
	ErrWorkerClosed = errors.New("chain: worker closed")

	// ErrQueueTimeout indicates that the worker did not accept a request in time.
	ErrQueueTimeout = errors.New("chain: request queue timeout")
)

// Operation names used in OpError.
const (
	OpDiscover = "discover"
	OpPing     = "ping"
	OpRead     = "read"
	OpWrite    = "write"
)

// OpError describes a failed chain operation.
type OpError struct {
	Op     string
	Port   string
	Target packet.BoardID
	Err    error
}

func (e *OpError) Error() string {
	if e.Target.IsBroadcast() {
		return fmt.Sprintf("chain: %s on %s: %v", e.Op, e.Port, e.Err)
	}

	return fmt.Sprintf("chain: %s %s on %s: %v", e.Op, e.Target, e.Port, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// IsTimeout reports whether err is caused by a missing reply.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout)
}
