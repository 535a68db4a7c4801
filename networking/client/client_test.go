package client

import (
	"bytes"
	"io/ioutil"
	"os"
	"path"
	"testing"

	"github.com/fernandosanchezjr/gousbhost/bus"
	"github.com/fernandosanchezjr/gousbhost/host"
	"github.com/fernandosanchezjr/gousbhost/networking/services"
	"github.com/fernandosanchezjr/gousbhost/permissions"
	"github.com/valyala/gorpc"
)

type loopBus struct {
	devices []*bus.DeviceDesc
}

func (lb *loopBus) Enumerate() ([]*bus.DeviceDesc, error) {
	return lb.devices, nil
}

func (lb *loopBus) Open(uint32) (bus.Conn, error) {
	return &loopConn{}, nil
}

func (lb *loopBus) Close() error {
	return nil
}

// loopConn completes every transfer immediately with an indexed payload.
type loopConn struct{}

func (lc *loopConn) Claim(int) error { return nil }

func (lc *loopConn) Release(int) {}

func (lc *loopConn) SetAlt(int, int) error { return nil }

func (lc *loopConn) Submit(t *bus.Transfer) error {
	for i := range t.Buf {
		t.Buf[i] = byte(i)
	}
	t.Complete(bus.Outcome{Length: len(t.Buf)})
	return nil
}

func (lc *loopConn) Cancel(*bus.Transfer) {}

func (lc *loopConn) Reset() error { return nil }

func (lc *loopConn) Close() error { return nil }

func loopDevice() *bus.DeviceDesc {
	return &bus.DeviceDesc{
		ID:      1,
		Vendor:  0x1a2b,
		Product: 0x3c4d,
		Serial:  "LOOP-1",
		Interfaces: []bus.InterfaceDesc{
			{
				Number: 0,
				AltSettings: []bus.AltSettingDesc{
					{
						Alternate: 0,
						Endpoints: []bus.EndpointDesc{
							{Number: 2, Direction: bus.DirectionIn, TransferType: bus.TransferTypeBulk, MaxPacketSize: 64},
						},
					},
				},
			},
		},
	}
}

// TestClientRoundTrip drives the host operations through the real
// dispatcher over a unix socket: registration, gob transport and reply
// decoding all participate.
func TestClientRoundTrip(t *testing.T) {
	dir, err := ioutil.TempDir("", "rpc")
	if err != nil {
		t.Fatal(err)
	}
	defer func() {
		_ = os.RemoveAll(dir)
	}()
	socketPath := path.Join(dir, "rpc.sock")
	registry := services.NewRegistry()
	h := host.New(&loopBus{devices: []*bus.DeviceDesc{loopDevice()}}, permissions.AllowAll{})
	registry.AddService("USBHost", services.NewUSBHostService(h))
	dispatcher := gorpc.NewDispatcher()
	for name, service := range registry.Services {
		dispatcher.AddService(name, service)
	}
	srv := gorpc.NewUnixServer(socketPath, dispatcher.NewHandlerFunc())
	srv.LogError = gorpc.NilErrorLogger
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	defer srv.Stop()
	cl := NewUnixClient(socketPath, registry)
	cl.Start()
	defer cl.Stop()

	raw, err := cl.Call("USBHost", "GetDevices", &services.DevicesRequest{})
	if err != nil {
		t.Fatal(err)
	}
	devices := raw.(*services.DevicesReply)
	if len(devices.Devices) != 1 {
		t.Fatalf("expected 1 device, got %d", len(devices.Devices))
	}
	if dev := devices.Devices[0]; dev.Vendor != 0x1a2b || dev.Serial != "LOOP-1" {
		t.Fatalf("unexpected device message: %+v", dev)
	}

	raw, err = cl.Call("USBHost", "OpenDevice", &services.OpenRequest{Device: 1})
	if err != nil {
		t.Fatal(err)
	}
	handle := raw.(*services.OpenReply).Handle.Handle
	if _, err := cl.Call("USBHost", "ClaimInterface", &services.ClaimRequest{Handle: handle, Interface: 0}); err != nil {
		t.Fatal(err)
	}
	raw, err = cl.Call("USBHost", "BulkTransfer", &services.GenericTransferRequest{
		Handle:    handle,
		Direction: int(bus.DirectionIn),
		Endpoint:  2,
		Length:    4,
	})
	if err != nil {
		t.Fatal(err)
	}
	transfer := raw.(*services.TransferReply)
	if transfer.Code != 0 || !bytes.Equal(transfer.Data, []byte{0, 1, 2, 3}) {
		t.Fatalf("unexpected transfer reply: %+v", transfer)
	}
	if _, err := cl.Call("USBHost", "CloseDevice", &services.CloseRequest{Handle: handle}); err != nil {
		t.Fatal(err)
	}
	if _, err := cl.Call("USBHost", "ClaimInterface", &services.ClaimRequest{Handle: handle, Interface: 0}); err == nil {
		t.Fatal("expected claim on closed handle to fail over RPC")
	}
	if _, err := cl.Call("NoSuchService", "GetDevices", &services.DevicesRequest{}); err != ServiceNotFound {
		t.Fatalf("expected ServiceNotFound, got %v", err)
	}
}
