package packet

import "errors"

var (
	// ErrFraming indicates a packet with the wrong byte count or an
	// unrecognized operation/kind byte.
	ErrFraming = errors.New("packet: framing error")

	// ErrChecksumMismatch indicates the computed checksum does not match the
	// transmitted checksum field.
	ErrChecksumMismatch = errors.New("packet: checksum mismatch")

	// ErrInvalidBoardID indicates a board id string that is not valid hex of
	// the expected length.
	ErrInvalidBoardID = errors.New("packet: invalid board id")
)
