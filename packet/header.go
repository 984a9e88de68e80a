package packet

import "fmt"

// HeaderSize is the wire size of a Header: 3 metadata bytes + BoardID.
const HeaderSize = 3 + BoardIDSize

const headerChecksumIndex = 2

// Operation is the first byte of a Header.
type Operation uint8

// Header operations. Values are shared with the firmware and never overlap
// with BodyKind values, so the first byte of a reply tells the two apart.
const (
	OpAck   Operation = 1
	OpPing  Operation = 2
	OpRead  Operation = 3
	OpWrite Operation = 4
	OpExec  Operation = 5
	// OpNack is sent by a device instead of acting on a Body it rejects.
	OpNack Operation = 9
)

// IsValid reports whether op is a known operation.
func (op Operation) IsValid() bool {
	switch op {
	case OpAck, OpPing, OpRead, OpWrite, OpExec, OpNack:
		return true
	default:
		return false
	}
}

// ExpectsBody reports whether an accepted header of this operation is
// followed by a Body.
func (op Operation) ExpectsBody() bool {
	return op == OpRead || op == OpWrite
}

func (op Operation) String() string {
	switch op {
	case OpAck:
		return "ACK"
	case OpPing:
		return "PING"
	case OpRead:
		return "READ"
	case OpWrite:
		return "WRITE"
	case OpExec:
		return "EXEC"
	case OpNack:
		return "NACK"
	default:
		return fmt.Sprintf("OP(%d)", uint8(op))
	}
}

// Header is the fixed-size control packet.
type Header struct {
	Op       Operation
	HopCount uint8
	Checksum uint8
	Target   BoardID
}

// NewHeader returns a header for op addressed to target with a zero hop count.
func NewHeader(op Operation, target BoardID) Header {
	return Header{Op: op, Target: target}
}

// Encode serializes h to its 15-byte wire form.
//
//	[op][hop][checksum][high LE][medium LE][low LE]
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	buf[0] = byte(h.Op)
	buf[1] = h.HopCount
	buf[2] = h.Checksum
	putBoardID(buf[3:], h.Target)

	return buf
}

// Bytes returns the wire form as a slice.
func (h Header) Bytes() []byte {
	buf := h.Encode()
	return buf[:]
}

// DecodeHeader parses a header from exactly HeaderSize bytes.
// Field values are not validated.
func DecodeHeader(data []byte) (Header, error) {
	if len(data) != HeaderSize {
		return Header{}, fmt.Errorf("%w: header is %d bytes, want %d", ErrFraming, len(data), HeaderSize)
	}

	return Header{
		Op:       Operation(data[0]),
		HopCount: data[1],
		Checksum: data[2],
		Target:   readBoardID(data[3:]),
	}, nil
}

// ComputeChecksum returns the Sum8 checksum of h.
func (h Header) ComputeChecksum() uint8 {
	buf := h.Encode()
	return sum8(buf[:], headerChecksumIndex)
}

// Seal returns a copy of h with the checksum field set for mode.
func (h Header) Seal(mode ChecksumMode) Header {
	if mode == ChecksumSum8 {
		h.Checksum = h.ComputeChecksum()
	}

	return h
}

// Verify checks the checksum field of h for mode.
func (h Header) Verify(mode ChecksumMode) error {
	return verify(mode, h.Checksum, h.ComputeChecksum())
}

// Validate checks that the operation byte is known.
func (h Header) Validate() error {
	if !h.Op.IsValid() {
		return fmt.Errorf("%w: unknown operation 0x%02X", ErrFraming, uint8(h.Op))
	}

	return nil
}

func (h Header) String() string {
	return fmt.Sprintf("[%s, hop=%d, crc=0x%02X, %s]", h.Op, h.HopCount, h.Checksum, h.Target)
}
