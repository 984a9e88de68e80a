package endpoint

import "sync/atomic"

// Metrics contains atomic counters of an endpoint.
type Metrics struct {
	// ClaimCount is the number of broadcast PINGs claimed.
	ClaimCount atomic.Uint64
	// AckCount is the number of ACKs originated by this device.
	AckCount atomic.Uint64
	// NackCount is the number of NACKs originated by this device.
	NackCount atomic.Uint64
	// ForwardCount is the number of packets passed downlink.
	ForwardCount atomic.Uint64
	// RelayCount is the number of packets passed uplink.
	RelayCount atomic.Uint64
	// MemoryReadCount is the number of pages read from memory.
	MemoryReadCount atomic.Uint64
	// MemoryWriteCount is the number of pages written to memory.
	MemoryWriteCount atomic.Uint64
	// DropCount is the number of packets dropped as malformed, corrupted or
	// unexpected.
	DropCount atomic.Uint64
	// TimeoutCount is the number of exchanges abandoned by timeout.
	TimeoutCount atomic.Uint64
}

func (m *Metrics) incClaimCount()       { m.ClaimCount.Add(1) }
func (m *Metrics) incAckCount()         { m.AckCount.Add(1) }
func (m *Metrics) incNackCount()        { m.NackCount.Add(1) }
func (m *Metrics) incForwardCount()     { m.ForwardCount.Add(1) }
func (m *Metrics) incRelayCount()       { m.RelayCount.Add(1) }
func (m *Metrics) incMemoryReadCount()  { m.MemoryReadCount.Add(1) }
func (m *Metrics) incMemoryWriteCount() { m.MemoryWriteCount.Add(1) }
func (m *Metrics) incDropCount()        { m.DropCount.Add(1) }
func (m *Metrics) incTimeoutCount()     { m.TimeoutCount.Add(1) }
