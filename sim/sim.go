// Package sim wires endpoint runners into an in-process chain, so the host
// side can be exercised without hardware.
package sim

import (
	"context"
	"errors"
	"fmt"

	"github.com/mfkiwl/SRAM-Acquisition/endpoint"
	"github.com/mfkiwl/SRAM-Acquisition/internal/task"
	"github.com/mfkiwl/SRAM-Acquisition/packet"
	"github.com/mfkiwl/SRAM-Acquisition/transport"
)

// ErrEmptyChain indicates a chain without devices.
var ErrEmptyChain = errors.New("sim: chain needs at least one device")

// Chain is a running chain of simulated devices. The first id is the
// device closest to the host.
type Chain struct {
	host     transport.Port
	machines []*endpoint.Machine
	ports    []transport.Port
	tm       *task.Manager
}

// NewChain starts one endpoint runner per id. opts apply to every device.
func NewChain(ids []packet.BoardID, opts ...endpoint.Option) (*Chain, error) {
	if len(ids) == 0 {
		return nil, ErrEmptyChain
	}

	cfg, err := endpoint.NewConfig(opts...)
	if err != nil {
		return nil, err
	}

	seen := make(map[packet.BoardID]struct{}, len(ids))
	machines := make([]*endpoint.Machine, 0, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("sim: duplicate device id %s", id)
		}
		seen[id] = struct{}{}

		m, err := endpoint.NewMachine(id, cfg)
		if err != nil {
			return nil, err
		}
		machines = append(machines, m)
	}

	c := &Chain{
		machines: machines,
		tm:       task.NewManager(context.Background(), cfg.Logger()),
	}

	// Each device's uplink is the far end of the previous downlink pipe.
	host, uplink := transport.NewPipe()
	c.host = host
	c.ports = append(c.ports, host, uplink)

	for i, m := range machines {
		var downlink, nextUplink transport.Port
		if i < len(machines)-1 {
			downlink, nextUplink = transport.NewPipe()
			c.ports = append(c.ports, downlink, nextUplink)
		}

		runner := endpoint.NewRunner(m, uplink, downlink)
		l := cfg.Logger()
		if err := c.tm.Go(fmt.Sprintf("device-%d", i+1), func(ctx context.Context) {
			if err := runner.Run(ctx); err != nil && ctx.Err() == nil {
				l.Debug("sim: runner stopped", "device", m.ID().String(), "error", err)
			}
		}); err != nil {
			c.Close()
			return nil, err
		}

		uplink = nextUplink
	}

	return c, nil
}

// GenerateIDs returns n distinct non-broadcast ids derived from seed.
func GenerateIDs(seed uint32, n int) []packet.BoardID {
	ids := make([]packet.BoardID, n)
	for i := range ids {
		v := seed + uint32(i)
		ids[i] = packet.NewBoardID(0x53494D00|v>>24, v*0x9E3779B1, v+1)
	}

	return ids
}

// Host returns the port the host controller talks to.
func (c *Chain) Host() transport.Port {
	return c.host
}

// Machines returns the devices in chain order.
func (c *Chain) Machines() []*endpoint.Machine {
	return c.machines
}

// IDs returns the device ids in chain order.
func (c *Chain) IDs() []packet.BoardID {
	ids := make([]packet.BoardID, len(c.machines))
	for i, m := range c.machines {
		ids[i] = m.ID()
	}

	return ids
}

// Close stops every runner and closes the internal links.
func (c *Chain) Close() {
	c.tm.Stop()
	for _, p := range c.ports {
		_ = p.Close()
	}
	c.tm.Wait()
}
