package station

import "github.com/mfkiwl/SRAM-Acquisition/transport"

// PortStats is a snapshot of one port's counters.
type PortStats struct {
	Port      string              `json:"port"`
	Discovers uint64              `json:"discovers"`
	Pings     uint64              `json:"pings"`
	Reads     uint64              `json:"reads"`
	Writes    uint64              `json:"writes"`
	Errors    uint64              `json:"errors"`
	Timeouts  uint64              `json:"timeouts"`
	Nacks     uint64              `json:"nacks"`
	Link      transport.LinkStats `json:"link"`
}
