// Package registry keeps the devices found on each port by the most recent
// discovery sweep.
package registry

import (
	"sort"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/mfkiwl/SRAM-Acquisition/packet"
)

// DeviceRecord describes one device found by discovery.
type DeviceRecord struct {
	BoardID packet.BoardID `json:"board_id"`
	// Position is the hop count at discovery time, 1 for the device
	// closest to the host.
	Position int  `json:"position"`
	Online   bool `json:"online"`
}

// Registry maps port names to the ordered devices of their chain.
//
// A port's list is only ever replaced as a whole. Lists handed out are
// copies and may be modified by the caller.
type Registry struct {
	ports *xsync.MapOf[string, []DeviceRecord]
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{ports: xsync.NewMapOf[string, []DeviceRecord]()}
}

// Register adds an empty entry for port. It reports false if the port was
// already registered, in which case its devices are kept.
func (r *Registry) Register(port string) bool {
	_, loaded := r.ports.LoadOrStore(port, nil)
	return !loaded
}

// Replace discards the devices of port and stores records in their place.
func (r *Registry) Replace(port string, records []DeviceRecord) {
	r.ports.Store(port, cloneRecords(records))
}

// Remove drops port from the registry.
func (r *Registry) Remove(port string) {
	r.ports.Delete(port)
}

// Devices returns the devices of port in chain order.
func (r *Registry) Devices(port string) ([]DeviceRecord, bool) {
	records, ok := r.ports.Load(port)
	if !ok {
		return nil, false
	}

	return cloneRecords(records), true
}

// Ports returns the registered port names, sorted.
func (r *Registry) Ports() []string {
	ports := make([]string, 0, r.ports.Size())
	r.ports.Range(func(port string, _ []DeviceRecord) bool {
		ports = append(ports, port)
		return true
	})
	sort.Strings(ports)

	return ports
}

// Snapshot returns a copy of every port's devices.
func (r *Registry) Snapshot() map[string][]DeviceRecord {
	out := make(map[string][]DeviceRecord, r.ports.Size())
	r.ports.Range(func(port string, records []DeviceRecord) bool {
		out[port] = cloneRecords(records)
		return true
	})

	return out
}

// Lookup finds the port and record of id. Ports are searched in name order
// and the first match wins.
func (r *Registry) Lookup(id packet.BoardID) (string, DeviceRecord, bool) {
	for _, port := range r.Ports() {
		records, _ := r.ports.Load(port)
		for _, rec := range records {
			if rec.BoardID == id {
				return port, rec, true
			}
		}
	}

	return "", DeviceRecord{}, false
}

// SetOnline updates the online flag of id on port. It reports whether the
// device was found.
func (r *Registry) SetOnline(port string, id packet.BoardID, online bool) bool {
	found := false
	r.ports.Compute(port, func(records []DeviceRecord, loaded bool) ([]DeviceRecord, bool) {
		if !loaded {
			return nil, true
		}

		updated := cloneRecords(records)
		for i := range updated {
			if updated[i].BoardID == id {
				updated[i].Online = online
				found = true
			}
		}

		return updated, false
	})

	return found
}

// Count returns the number of devices across all ports.
func (r *Registry) Count() int {
	n := 0
	r.ports.Range(func(_ string, records []DeviceRecord) bool {
		n += len(records)
		return true
	})

	return n
}

func cloneRecords(records []DeviceRecord) []DeviceRecord {
	if records == nil {
		return []DeviceRecord{}
	}

	out := make([]DeviceRecord, len(records))
	copy(out, records)

	return out
}
