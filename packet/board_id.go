package packet

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"
)

// BoardIDSize is the wire size of a BoardID.
const BoardIDSize = 12

// boardIDHexDigits is the number of hex digits in a formatted BoardID.
const boardIDHexDigits = 24

// BoardID is the 96-bit unique identity of a device, stored by the firmware
// as three 32-bit words.
//
// The all-zero value is the broadcast sentinel: a PING targeted at it is
// claimed by the first device that has not answered yet.
type BoardID struct {
	High   uint32
	Medium uint32
	Low    uint32
}

// Broadcast is the reserved all-zero sentinel BoardID.
var Broadcast = BoardID{}

// NewBoardID returns a BoardID built from its three words.
func NewBoardID(high, medium, low uint32) BoardID {
	return BoardID{High: high, Medium: medium, Low: low}
}

// IsBroadcast reports whether id is the all-zero sentinel.
func (id BoardID) IsBroadcast() bool {
	return id == Broadcast
}

// String formats the id as "0x" followed by 24 upper-case hex digits.
func (id BoardID) String() string {
	return fmt.Sprintf("0x%08X%08X%08X", id.High, id.Medium, id.Low)
}

// MarshalText implements encoding.TextMarshaler.
func (id BoardID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *BoardID) UnmarshalText(text []byte) error {
	parsed, err := ParseBoardID(string(text))
	if err != nil {
		return err
	}
	*id = parsed

	return nil
}

// putBoardID writes id into buf[0:12].
func putBoardID(buf []byte, id BoardID) {
	binary.LittleEndian.PutUint32(buf[0:4], id.High)
	binary.LittleEndian.PutUint32(buf[4:8], id.Medium)
	binary.LittleEndian.PutUint32(buf[8:12], id.Low)
}

// readBoardID reads a BoardID from buf[0:12].
func readBoardID(buf []byte) BoardID {
	return BoardID{
		High:   binary.LittleEndian.Uint32(buf[0:4]),
		Medium: binary.LittleEndian.Uint32(buf[4:8]),
		Low:    binary.LittleEndian.Uint32(buf[8:12]),
	}
}

// ParseBoardID parses a 96-bit board id from its hex form.
//
// The string must hold exactly 24 hex digits, optionally prefixed with "0x"
// or "0X". Both letter cases are accepted. The broadcast sentinel is
// rejected because no real device may hold it.
func ParseBoardID(s string) (BoardID, error) {
	digits := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(digits) != boardIDHexDigits {
		return BoardID{}, fmt.Errorf("%w: %q has %d hex digits, want %d", ErrInvalidBoardID, s, len(digits), boardIDHexDigits)
	}

	var words [3]uint32
	for i := range words {
		v, err := strconv.ParseUint(digits[i*8:(i+1)*8], 16, 32)
		if err != nil {
			return BoardID{}, fmt.Errorf("%w: %q: %w", ErrInvalidBoardID, s, err)
		}
		words[i] = uint32(v)
	}

	id := BoardID{High: words[0], Medium: words[1], Low: words[2]}
	if id.IsBroadcast() {
		return BoardID{}, fmt.Errorf("%w: %q is the broadcast sentinel", ErrInvalidBoardID, s)
	}

	return id, nil
}
