package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/registry"
)

func checkOutput(format string) error {
	if format != "text" && format != "json" {
		return fmt.Errorf("invalid output format '%s'; must be 'text' or 'json'", format)
	}

	return nil
}

// render writes v as indented JSON, or calls text for the text format.
func render(w io.Writer, format string, v any, text func(io.Writer)) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(v)
	}

	text(w)

	return nil
}

func printDevices(w io.Writer, ports []string, devices map[string][]registry.DeviceRecord) {
	for _, port := range ports {
		records := devices[port]
		fmt.Fprintf(w, "%s: %d device(s)\n", port, len(records))
		for _, r := range records {
			state := "online"
			if !r.Online {
				state = "offline"
			}
			fmt.Fprintf(w, "  %3d  %s  %s\n", r.Position, r.BoardID, state)
		}
	}
}

// hexDump prints a page 16 bytes per line, prefixed with the byte address.
func hexDump(w io.Writer, offset uint16, data []byte) {
	base := packet.AddressOf(offset)
	for i := 0; i < len(data); i += 16 {
		end := min(i+16, len(data))
		fmt.Fprintf(w, "%08x  % x\n", base+uint32(i), data[i:end])
	}
}

// parsePayload builds a page from a hex string, zero padded to the page
// size. Spaces and colons between bytes are ignored.
func parsePayload(s string) (packet.Payload, error) {
	var p packet.Payload

	clean := strings.NewReplacer(" ", "", ":", "", "\n", "").Replace(strings.TrimPrefix(s, "0x"))
	raw, err := hex.DecodeString(clean)
	if err != nil {
		return p, fmt.Errorf("invalid hex data: %w", err)
	}
	if len(raw) > packet.PayloadSize {
		return p, fmt.Errorf("data is %d bytes, a page holds %d", len(raw), packet.PayloadSize)
	}
	copy(p[:], raw)

	return p, nil
}

// parseFill parses a byte value such as "0xAA" or "170".
func parseFill(s string) (byte, error) {
	v, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid fill byte %q: %w", s, err)
	}

	return byte(v), nil
}
