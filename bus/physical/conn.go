package physical

import (
	"context"
	"fmt"
	"sync"

	"github.com/fernandosanchezjr/gousbhost/bus"
	"github.com/google/gousb"
	log "github.com/sirupsen/logrus"
)

const genericFailureCode = bus.TransferCode(-99)

type conn struct {
	dev *gousb.Device

	mu       sync.Mutex
	cfg      *gousb.Config
	ifaces   map[int]*gousb.Interface
	alts     map[int]int
	inflight map[*bus.Transfer]context.CancelFunc
}

func (c *conn) config() (*gousb.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	num, err := c.dev.ActiveConfigNum()
	if err != nil {
		return nil, err
	}
	cfg, err := c.dev.Config(num)
	if err != nil {
		return nil, err
	}
	c.cfg = cfg
	return cfg, nil
}

func (c *conn) Claim(iface int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, held := c.ifaces[iface]; held {
		return nil
	}
	cfg, err := c.config()
	if err != nil {
		return err
	}
	intf, err := cfg.Interface(iface, 0)
	if err != nil {
		return err
	}
	c.ifaces[iface] = intf
	c.alts[iface] = 0
	return nil
}

func (c *conn) Release(iface int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if intf, held := c.ifaces[iface]; held {
		intf.Close()
		delete(c.ifaces, iface)
		delete(c.alts, iface)
	}
}

// SetAlt reopens the interface with the new alternate setting; gousb binds
// the setting at claim time.
func (c *conn) SetAlt(iface, alt int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	intf, held := c.ifaces[iface]
	if !held {
		return fmt.Errorf("interface %d is not claimed", iface)
	}
	intf.Close()
	delete(c.ifaces, iface)
	cfg, err := c.config()
	if err != nil {
		return err
	}
	reopened, err := cfg.Interface(iface, alt)
	if err != nil {
		return err
	}
	c.ifaces[iface] = reopened
	c.alts[iface] = alt
	return nil
}

func (c *conn) Submit(t *bus.Transfer) error {
	ctx, cancel := context.WithCancel(context.Background())
	c.mu.Lock()
	c.inflight[t] = cancel
	c.mu.Unlock()
	go c.run(ctx, t)
	return nil
}

func (c *conn) Cancel(t *bus.Transfer) {
	c.mu.Lock()
	cancel, found := c.inflight[t]
	c.mu.Unlock()
	if found {
		cancel()
	}
}

func (c *conn) run(ctx context.Context, t *bus.Transfer) {
	defer func() {
		c.mu.Lock()
		delete(c.inflight, t)
		c.mu.Unlock()
	}()
	var n int
	var err error
	switch t.Type {
	case bus.TransferTypeControl:
		n, err = c.dev.Control(t.Setup.RequestType, t.Setup.Request, t.Setup.Value, t.Setup.Index, t.Buf)
	default:
		n, err = c.endpointTransfer(ctx, t)
	}
	outcome := bus.Outcome{Length: n, Code: mapCode(err)}
	if t.Type == bus.TransferTypeIsochronous {
		outcome.Packets = splitPackets(n, t.IsoPackets, t.IsoPacketLength, outcome.Code)
	}
	t.Complete(outcome)
}

func (c *conn) endpointTransfer(ctx context.Context, t *bus.Transfer) (int, error) {
	number := int(t.Endpoint & 0x0f)
	in := t.Endpoint&0x80 != 0
	intf, err := c.interfaceForEndpoint(number, in)
	if err != nil {
		return 0, err
	}
	if in {
		ep, err := intf.InEndpoint(number)
		if err != nil {
			return 0, err
		}
		return ep.ReadContext(ctx, t.Buf)
	}
	ep, err := intf.OutEndpoint(number)
	if err != nil {
		return 0, err
	}
	return ep.WriteContext(ctx, t.Buf)
}

func (c *conn) interfaceForEndpoint(number int, in bool) (*gousb.Interface, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	direction := gousb.EndpointDirectionOut
	if in {
		direction = gousb.EndpointDirectionIn
	}
	for _, intf := range c.ifaces {
		for _, ep := range intf.Setting.Endpoints {
			if ep.Number == number && ep.Direction == direction {
				return intf, nil
			}
		}
	}
	return nil, fmt.Errorf("no claimed interface carries endpoint %d", number)
}

// Reset invalidates the cached configuration and interface claims before
// resetting the device; libusb invalidates them anyway, and dropping them
// here makes the subsequent re-claims reopen fresh interfaces.
func (c *conn) Reset() error {
	c.mu.Lock()
	for iface, intf := range c.ifaces {
		intf.Close()
		delete(c.ifaces, iface)
		delete(c.alts, iface)
	}
	if c.cfg != nil {
		if err := c.cfg.Close(); err != nil {
			log.WithError(err).Debug("Error releasing configuration before reset")
		}
		c.cfg = nil
	}
	c.mu.Unlock()
	return c.dev.Reset()
}

func (c *conn) Close() error {
	c.mu.Lock()
	for _, cancel := range c.inflight {
		cancel()
	}
	c.inflight = map[*bus.Transfer]context.CancelFunc{}
	for iface, intf := range c.ifaces {
		intf.Close()
		delete(c.ifaces, iface)
	}
	if c.cfg != nil {
		if err := c.cfg.Close(); err != nil {
			log.WithError(err).Debug("Error releasing configuration")
		}
		c.cfg = nil
	}
	c.mu.Unlock()
	return c.dev.Close()
}

// mapCode translates a gousb failure into the opaque transport code passed
// upward. libusb error numbers are forwarded as-is.
func mapCode(err error) bus.TransferCode {
	if err == nil {
		return bus.CodeSuccess
	}
	if e, ok := err.(gousb.Error); ok {
		return bus.TransferCode(int32(e))
	}
	if s, ok := err.(gousb.TransferStatus); ok {
		return bus.TransferCode(int32(s))
	}
	return genericFailureCode
}

// splitPackets synthesizes per-packet outcomes for isochronous transfers;
// gousb reports a single byte count for the whole submission.
func splitPackets(n, packets, packetLength int, code bus.TransferCode) []bus.PacketOutcome {
	out := make([]bus.PacketOutcome, packets)
	remaining := n
	for i := range out {
		length := packetLength
		if remaining < length {
			length = remaining
		}
		out[i] = bus.PacketOutcome{Length: length, Code: code}
		remaining -= length
	}
	return out
}
