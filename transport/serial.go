package transport

import (
	"fmt"
	"regexp"
	"sort"

	"go.bug.st/serial"
)

// DefaultBaudRate is the line speed of the device firmware.
const DefaultBaudRate = 115200

// DefaultPortPattern matches the USB serial adapters the chains hang off.
const DefaultPortPattern = `.*USB.?`

// OpenSerial opens the named serial port at baud with 8 data bits, no parity
// and one stop bit.
func OpenSerial(name string, baud int) (Port, error) {
	if baud <= 0 {
		baud = DefaultBaudRate
	}

	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	p, err := serial.Open(name, mode)
	if err != nil {
		return nil, fmt.Errorf("transport: open %s: %w", name, err)
	}

	return p, nil
}

// ListPorts returns the sorted names of the serial ports whose name matches
// pattern. An empty pattern uses DefaultPortPattern.
func ListPorts(pattern string) ([]string, error) {
	if pattern == "" {
		pattern = DefaultPortPattern
	}

	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("transport: invalid port pattern %q: %w", pattern, err)
	}

	all, err := serial.GetPortsList()
	if err != nil {
		return nil, fmt.Errorf("transport: list ports: %w", err)
	}

	return filterPorts(all, re)
}

func filterPorts(all []string, re *regexp.Regexp) ([]string, error) {
	ports := make([]string, 0, len(all))
	for _, name := range all {
		if re.MatchString(name) {
			ports = append(ports, name)
		}
	}

	if len(ports) == 0 {
		return nil, ErrNoPorts
	}

	sort.Strings(ports)

	return ports, nil
}
