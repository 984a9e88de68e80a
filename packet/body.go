package packet

import (
	"encoding/binary"
	"fmt"
)

// PayloadSize is the fixed payload carried by every Body.
const PayloadSize = 512

// bodyMetaSize is kind + checksum + BoardID + address offset.
const bodyMetaSize = 2 + BoardIDSize + 2

// BodySize is the wire size of a Body.
const BodySize = bodyMetaSize + PayloadSize

const bodyChecksumIndex = 1

// Payload is the fixed data block of a Body.
type Payload [PayloadSize]byte

// Inverted returns a copy of p with every bit flipped.
func (p Payload) Inverted() Payload {
	var out Payload
	for i, b := range p {
		out[i] = b ^ 0xFF
	}

	return out
}

// BodyKind is the first byte of a Body.
type BodyKind uint8

// Body kinds. Sensors and Code are reserved and carry a zero payload.
const (
	KindMemory  BodyKind = 6
	KindSensors BodyKind = 7
	KindCode    BodyKind = 8
)

// IsValid reports whether k is a known kind.
func (k BodyKind) IsValid() bool {
	return k == KindMemory || k == KindSensors || k == KindCode
}

func (k BodyKind) String() string {
	switch k {
	case KindMemory:
		return "MEMORY"
	case KindSensors:
		return "SENSORS"
	case KindCode:
		return "CODE"
	default:
		return fmt.Sprintf("KIND(%d)", uint8(k))
	}
}

// Body is the fixed-size data packet following an accepted Header.
type Body struct {
	Kind          BodyKind
	Checksum      uint8
	Target        BoardID
	AddressOffset uint16
	Payload       Payload
}

// NewMemoryBody returns a Memory body for target at offset carrying data.
func NewMemoryBody(target BoardID, offset uint16, data Payload) Body {
	return Body{Kind: KindMemory, Target: target, AddressOffset: offset, Payload: data}
}

// Address returns the byte address addressed by the body: offset * PayloadSize.
func (b Body) Address() uint32 {
	return AddressOf(b.AddressOffset)
}

// AddressOf converts an address offset to a byte address.
func AddressOf(offset uint16) uint32 {
	return uint32(offset) * PayloadSize
}

// FormatAddress formats the byte address of offset as "0x%08x".
func FormatAddress(offset uint16) string {
	return fmt.Sprintf("0x%08x", AddressOf(offset))
}

// Encode serializes b to its wire form.
//
//	[kind][checksum][high LE][medium LE][low LE][offset LE][payload 512]
//
// The full payload is always emitted, whatever the kind.
func (b Body) Encode() [BodySize]byte {
	var buf [BodySize]byte
	buf[0] = byte(b.Kind)
	buf[1] = b.Checksum
	putBoardID(buf[2:], b.Target)
	binary.LittleEndian.PutUint16(buf[14:16], b.AddressOffset)
	copy(buf[bodyMetaSize:], b.Payload[:])

	return buf
}

// Bytes returns the wire form as a slice.
func (b Body) Bytes() []byte {
	buf := b.Encode()
	return buf[:]
}

// DecodeBody parses a body from exactly BodySize bytes.
// Field values are not validated.
func DecodeBody(data []byte) (Body, error) {
	if len(data) != BodySize {
		return Body{}, fmt.Errorf("%w: body is %d bytes, want %d", ErrFraming, len(data), BodySize)
	}

	b := Body{
		Kind:          BodyKind(data[0]),
		Checksum:      data[1],
		Target:        readBoardID(data[2:]),
		AddressOffset: binary.LittleEndian.Uint16(data[14:16]),
	}
	copy(b.Payload[:], data[bodyMetaSize:])

	return b, nil
}

// ComputeChecksum returns the Sum8 checksum of b.
func (b Body) ComputeChecksum() uint8 {
	buf := b.Encode()
	return sum8(buf[:], bodyChecksumIndex)
}

// Seal returns a copy of b with the checksum field set for mode.
func (b Body) Seal(mode ChecksumMode) Body {
	if mode == ChecksumSum8 {
		b.Checksum = b.ComputeChecksum()
	}

	return b
}

// Verify checks the checksum field of b for mode.
func (b Body) Verify(mode ChecksumMode) error {
	return verify(mode, b.Checksum, b.ComputeChecksum())
}

// Validate checks that the kind byte is known.
func (b Body) Validate() error {
	if !b.Kind.IsValid() {
		return fmt.Errorf("%w: unknown body kind 0x%02X", ErrFraming, uint8(b.Kind))
	}

	return nil
}

func (b Body) String() string {
	return fmt.Sprintf("[%s, crc=0x%02X, %s, addr=%s]", b.Kind, b.Checksum, b.Target, FormatAddress(b.AddressOffset))
}

// IsBodyLead reports whether the first byte of a reply starts a Body rather
// than a Header.
func IsBodyLead(first byte) bool {
	return BodyKind(first).IsValid()
}

// FrameSize returns the size of the packet starting with lead: BodySize for a
// body kind, HeaderSize otherwise. Unknown lead bytes frame as a header and
// are rejected by Validate.
func FrameSize(lead byte) int {
	if IsBodyLead(lead) {
		return BodySize
	}

	return HeaderSize
}
