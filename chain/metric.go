package chain

import "sync/atomic"

// Metrics contains atomic counters of a Controller.
type Metrics struct {
	// DiscoverCount is the number of discovery sweeps started.
	DiscoverCount atomic.Uint64
	// PingCount is the number of addressed pings started.
	PingCount atomic.Uint64
	// ReadCount is the number of page reads started.
	ReadCount atomic.Uint64
	// WriteCount is the number of page writes started.
	WriteCount atomic.Uint64
	// ErrorCount is the number of failed operations.
	ErrorCount atomic.Uint64
	// TimeoutCount is the number of operations failed by a missing reply.
	TimeoutCount atomic.Uint64
	// NackCount is the number of NACK replies received.
	NackCount atomic.Uint64
	// DevicesGauge is the device count found by the last successful sweep.
	DevicesGauge atomic.Int64
}

func (m *Metrics) incDiscoverCount() { m.DiscoverCount.Add(1) }
func (m *Metrics) incPingCount()     { m.PingCount.Add(1) }
func (m *Metrics) incReadCount()     { m.ReadCount.Add(1) }
func (m *Metrics) incWriteCount()    { m.WriteCount.Add(1) }
func (m *Metrics) incErrorCount()    { m.ErrorCount.Add(1) }
func (m *Metrics) incTimeoutCount()  { m.TimeoutCount.Add(1) }
func (m *Metrics) incNackCount()     { m.NackCount.Add(1) }

func (m *Metrics) setDevicesGauge(n int) { m.DevicesGauge.Store(int64(n)) }
