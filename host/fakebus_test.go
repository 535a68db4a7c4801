package host

import (
	"fmt"
	"sync"

	"github.com/fernandosanchezjr/gousbhost/bus"
)

// fakeBus implements bus.Bus in memory. Submitted transfers are either
// resolved by the optional completer or parked on the submitted channel so
// tests control individual transfer completion explicitly.
type fakeBus struct {
	mu      sync.Mutex
	devices []*bus.DeviceDesc

	// completer resolves submissions synchronously when set; otherwise the
	// transfer stays in flight and is delivered on submitted.
	completer func(*bus.Transfer) bus.Outcome
	submitted chan *bus.Transfer

	openErr  map[uint32]error
	resetErr map[uint32]error
	conns    []*fakeConn
}

func newFakeBus(devices ...*bus.DeviceDesc) *fakeBus {
	return &fakeBus{
		devices:   devices,
		submitted: make(chan *bus.Transfer, 16),
		openErr:   map[uint32]error{},
		resetErr:  map[uint32]error{},
	}
}

func (f *fakeBus) Enumerate() ([]*bus.DeviceDesc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*bus.DeviceDesc{}, f.devices...), nil
}

func (f *fakeBus) Open(id uint32) (bus.Conn, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.openErr[id]; err != nil {
		return nil, err
	}
	for _, desc := range f.devices {
		if desc.ID == id {
			conn := &fakeConn{fake: f, device: id, claims: map[int]bool{}, alts: map[int]int{}}
			f.conns = append(f.conns, conn)
			return conn, nil
		}
	}
	return nil, fmt.Errorf("no device %d", id)
}

func (f *fakeBus) Close() error { return nil }

func (f *fakeBus) unplug(id uint32) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var remaining []*bus.DeviceDesc
	for _, desc := range f.devices {
		if desc.ID != id {
			remaining = append(remaining, desc)
		}
	}
	f.devices = remaining
}

func (f *fakeBus) lastConn() *fakeConn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

func (f *fakeBus) setCompleter(completer func(*bus.Transfer) bus.Outcome) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completer = completer
}

// echoCompleter completes every transfer successfully for its full length.
func echoCompleter(t *bus.Transfer) bus.Outcome {
	outcome := bus.Outcome{Length: len(t.Buf)}
	for i := 0; i < t.IsoPackets; i++ {
		outcome.Packets = append(outcome.Packets, bus.PacketOutcome{Length: t.IsoPacketLength})
	}
	return outcome
}

type fakeConn struct {
	fake   *fakeBus
	device uint32

	mu         sync.Mutex
	closed     bool
	claims     map[int]bool
	alts       map[int]int
	cancels    int
	claimCalls []int
	altCalls   [][2]int
}

func (c *fakeConn) Claim(iface int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.claims[iface] = true
	c.claimCalls = append(c.claimCalls, iface)
	return nil
}

func (c *fakeConn) Release(iface int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, iface)
}

func (c *fakeConn) SetAlt(iface, alt int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.claims[iface] {
		return fmt.Errorf("interface %d not claimed on transport", iface)
	}
	c.alts[iface] = alt
	c.altCalls = append(c.altCalls, [2]int{iface, alt})
	return nil
}

func (c *fakeConn) Submit(t *bus.Transfer) error {
	c.fake.mu.Lock()
	completer := c.fake.completer
	c.fake.mu.Unlock()
	if completer != nil {
		t.Complete(completer(t))
		return nil
	}
	c.fake.submitted <- t
	return nil
}

func (c *fakeConn) Cancel(*bus.Transfer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cancels++
}

func (c *fakeConn) Reset() error {
	c.fake.mu.Lock()
	defer c.fake.mu.Unlock()
	return c.fake.resetErr[c.device]
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) cancelCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cancels
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDevice builds a descriptor with two interfaces:
//
//	interface 0, alt 0: bulk out 1, bulk in 2, iso out 3, interrupt in 4
//	interface 1, alt 0: bulk out 5 / alt 1: bulk in 6
func fakeDevice(id uint32, vendor, product uint16) *bus.DeviceDesc {
	return &bus.DeviceDesc{
		ID:      id,
		Vendor:  vendor,
		Product: product,
		Serial:  fmt.Sprintf("FAKE-%d", id),
		Interfaces: []bus.InterfaceDesc{
			{
				Number: 0,
				AltSettings: []bus.AltSettingDesc{
					{
						Alternate: 0,
						Endpoints: []bus.EndpointDesc{
							{Number: 1, Direction: bus.DirectionOut, TransferType: bus.TransferTypeBulk, MaxPacketSize: 512},
							{Number: 2, Direction: bus.DirectionIn, TransferType: bus.TransferTypeBulk, MaxPacketSize: 512},
							{Number: 3, Direction: bus.DirectionOut, TransferType: bus.TransferTypeIsochronous, MaxPacketSize: 1024},
							{Number: 4, Direction: bus.DirectionIn, TransferType: bus.TransferTypeInterrupt, MaxPacketSize: 64, PollingInterval: 10},
						},
					},
				},
			},
			{
				Number: 1,
				AltSettings: []bus.AltSettingDesc{
					{
						Alternate: 0,
						Endpoints: []bus.EndpointDesc{
							{Number: 5, Direction: bus.DirectionOut, TransferType: bus.TransferTypeBulk, MaxPacketSize: 512},
						},
					},
					{
						Alternate: 1,
						Endpoints: []bus.EndpointDesc{
							{Number: 6, Direction: bus.DirectionIn, TransferType: bus.TransferTypeBulk, MaxPacketSize: 512},
						},
					},
				},
			},
		},
	}
}
