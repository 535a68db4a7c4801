package host

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/fernandosanchezjr/gousbhost/bus"
)

func TestControlTransferNeedsOnlyOpenHandle(t *testing.T) {
	t.Parallel()
	fake := newFakeBus(fakeDevice(1, 0x1234, 0x0001))
	fake.setCompleter(func(xfer *bus.Transfer) bus.Outcome {
		if xfer.Setup == nil {
			t.Error("control transfer submitted without a setup packet")
			return bus.Outcome{Code: 1}
		}
		if xfer.Setup.RequestType != 0x80 {
			t.Errorf("RequestType = %02x, want 80 (in/standard/device)", xfer.Setup.RequestType)
		}
		copy(xfer.Buf, []byte{0x12, 0x01})
		return bus.Outcome{Length: 2}
	})
	h := newTestHost(t, fake)
	h1 := openHandle(t, h, 1)

	resp := <-h.ControlTransfer(h1, &ControlRequest{
		Direction: bus.DirectionIn,
		Recipient: RecipientDevice,
		Type:      RequestTypeStandard,
		Request:   0x06,
		Value:     0x0100,
		Length:    2,
	})
	if resp.Err != nil {
		t.Fatalf("ControlTransfer(): %v", resp.Err)
	}
	if resp.Result.Failed() {
		t.Fatalf("result code = %d, want 0", resp.Result.Code)
	}
	if !bytes.Equal(resp.Result.Data, []byte{0x12, 0x01}) {
		t.Errorf("data = %x, want 1201", resp.Result.Data)
	}
}

func TestBulkTransferRequiresClaim(t *testing.T) {
	t.Parallel()
	fake := newFakeBus(fakeDevice(1, 0x1234, 0x0001))
	fake.setCompleter(echoCompleter)
	h := newTestHost(t, fake)
	h1 := openHandle(t, h, 1)

	req := &GenericRequest{Direction: bus.DirectionOut, Endpoint: 1, Data: []byte("ping")}
	if resp := <-h.BulkTransfer(h1, req); !errors.Is(resp.Err, ErrInterfaceNotClaimed) {
		t.Fatalf("unclaimed bulk err = %v, want ErrInterfaceNotClaimed", resp.Err)
	}
	if ack := <-h.ClaimInterface(h1, 0); ack.Err != nil {
		t.Fatal(ack.Err)
	}
	resp := <-h.BulkTransfer(h1, req)
	if resp.Err != nil {
		t.Fatalf("claimed bulk: %v", resp.Err)
	}
	if resp.Result.Code != bus.CodeSuccess {
		t.Errorf("result code = %d, want 0", resp.Result.Code)
	}
}

func TestBulkClaimMustBelongToCallingHandle(t *testing.T) {
	t.Parallel()
	fake := newFakeBus(fakeDevice(1, 0x1234, 0x0001))
	fake.setCompleter(echoCompleter)
	h := newTestHost(t, fake)
	h1 := openHandle(t, h, 1)
	h2 := openHandle(t, h, 1)
	if ack := <-h.ClaimInterface(h1, 0); ack.Err != nil {
		t.Fatal(ack.Err)
	}
	req := &GenericRequest{Direction: bus.DirectionOut, Endpoint: 1, Data: []byte("x")}
	if resp := <-h.BulkTransfer(h2, req); !errors.Is(resp.Err, ErrInterfaceNotClaimed) {
		t.Errorf("foreign-handle bulk err = %v, want ErrInterfaceNotClaimed", resp.Err)
	}
}

func TestInterruptTransfer(t *testing.T) {
	t.Parallel()
	fake := newFakeBus(fakeDevice(1, 0x1234, 0x0001))
	fake.setCompleter(func(xfer *bus.Transfer) bus.Outcome {
		if xfer.Type != bus.TransferTypeInterrupt {
			t.Errorf("transfer type = %s, want interrupt", xfer.Type)
		}
		if xfer.Endpoint != 0x84 {
			t.Errorf("endpoint address = %02x, want 84", xfer.Endpoint)
		}
		copy(xfer.Buf, []byte{1})
		return bus.Outcome{Length: 1}
	})
	h := newTestHost(t, fake)
	h1 := openHandle(t, h, 1)
	if ack := <-h.ClaimInterface(h1, 0); ack.Err != nil {
		t.Fatal(ack.Err)
	}
	resp := <-h.InterruptTransfer(h1, &GenericRequest{Direction: bus.DirectionIn, Endpoint: 4, Length: 8})
	if resp.Err != nil {
		t.Fatal(resp.Err)
	}
	if len(resp.Result.Data) != 1 {
		t.Errorf("data length = %d, want 1", len(resp.Result.Data))
	}
}

func TestDirectionFieldCoupling(t *testing.T) {
	t.Parallel()
	fake := newFakeBus(fakeDevice(1, 0x1234, 0x0001))
	fake.setCompleter(echoCompleter)
	h := newTestHost(t, fake)
	h1 := openHandle(t, h, 1)
	if ack := <-h.ClaimInterface(h1, 0); ack.Err != nil {
		t.Fatal(ack.Err)
	}

	// in without an expected length
	if resp := <-h.BulkTransfer(h1, &GenericRequest{Direction: bus.DirectionIn, Endpoint: 2}); resp.Err == nil {
		t.Error("in transfer without length accepted")
	}
	// out without a payload
	if resp := <-h.BulkTransfer(h1, &GenericRequest{Direction: bus.DirectionOut, Endpoint: 1}); resp.Err == nil {
		t.Error("out transfer without data accepted")
	}
	// out ignores the length field
	resp := <-h.BulkTransfer(h1, &GenericRequest{Direction: bus.DirectionOut, Endpoint: 1, Data: []byte("abc"), Length: 9999})
	if resp.Err != nil {
		t.Errorf("out transfer with stray length rejected: %v", resp.Err)
	}
}

func TestTransferFailureCodeIsOpaque(t *testing.T) {
	t.Parallel()
	fake := newFakeBus(fakeDevice(1, 0x1234, 0x0001))
	fake.setCompleter(func(*bus.Transfer) bus.Outcome {
		return bus.Outcome{Code: -32}
	})
	h := newTestHost(t, fake)
	h1 := openHandle(t, h, 1)
	if ack := <-h.ClaimInterface(h1, 0); ack.Err != nil {
		t.Fatal(ack.Err)
	}
	resp := <-h.BulkTransfer(h1, &GenericRequest{Direction: bus.DirectionOut, Endpoint: 1, Data: []byte("x")})
	if resp.Err != nil {
		t.Fatalf("hardware failure surfaced as error %v, want result code", resp.Err)
	}
	if resp.Result.Code != -32 {
		t.Errorf("result code = %d, want -32 passed through", resp.Result.Code)
	}
}

func TestIsochronousPartition(t *testing.T) {
	t.Parallel()
	fake := newFakeBus(fakeDevice(1, 0x1234, 0x0001))
	var submitted *bus.Transfer
	fake.setCompleter(func(xfer *bus.Transfer) bus.Outcome {
		submitted = xfer
		return echoCompleter(xfer)
	})
	h := newTestHost(t, fake)
	h1 := openHandle(t, h, 1)
	if ack := <-h.ClaimInterface(h1, 0); ack.Err != nil {
		t.Fatal(ack.Err)
	}

	payload := bytes.Repeat([]byte{0xAB}, 64)
	resp := <-h.IsochronousTransfer(h1, &IsochronousRequest{
		Generic:      GenericRequest{Direction: bus.DirectionOut, Endpoint: 3, Data: payload},
		PacketCount:  4,
		PacketLength: 16,
	})
	if resp.Err != nil {
		t.Fatal(resp.Err)
	}
	if submitted == nil {
		t.Fatal("no transfer reached the transport")
	}
	// one logical transfer carrying the whole buffer and the packet geometry
	if submitted.IsoPackets != 4 || submitted.IsoPacketLength != 16 || len(submitted.Buf) != 64 {
		t.Errorf("submitted geometry = %d x %d over %d bytes, want 4 x 16 over 64",
			submitted.IsoPackets, submitted.IsoPacketLength, len(submitted.Buf))
	}
	if len(resp.Result.Packets) != 4 {
		t.Fatalf("result has %d packets, want 4", len(resp.Result.Packets))
	}
	for i, packet := range resp.Result.Packets {
		if packet.Length != 16 || packet.Code != bus.CodeSuccess {
			t.Errorf("packet %d = {%d, %d}, want {16, 0}", i, packet.Length, packet.Code)
		}
	}
}

func TestIsochronousGeometryValidation(t *testing.T) {
	t.Parallel()
	fake := newFakeBus(fakeDevice(1, 0x1234, 0x0001))
	fake.setCompleter(echoCompleter)
	h := newTestHost(t, fake)
	h1 := openHandle(t, h, 1)
	if ack := <-h.ClaimInterface(h1, 0); ack.Err != nil {
		t.Fatal(ack.Err)
	}
	// 60-byte payload cannot be split into 4 x 16
	resp := <-h.IsochronousTransfer(h1, &IsochronousRequest{
		Generic:      GenericRequest{Direction: bus.DirectionOut, Endpoint: 3, Data: make([]byte, 60)},
		PacketCount:  4,
		PacketLength: 16,
	})
	if resp.Err == nil {
		t.Error("mismatched isochronous geometry accepted")
	}
	resp = <-h.IsochronousTransfer(h1, &IsochronousRequest{
		Generic:      GenericRequest{Direction: bus.DirectionOut, Endpoint: 3, Data: make([]byte, 64)},
		PacketCount:  0,
		PacketLength: 16,
	})
	if resp.Err == nil {
		t.Error("zero packet count accepted")
	}
}

func TestCloseCancelsInflightTransfer(t *testing.T) {
	t.Parallel()
	fake := newFakeBus(fakeDevice(1, 0x1234, 0x0001))
	h := newTestHost(t, fake)
	h1 := openHandle(t, h, 1)
	if ack := <-h.ClaimInterface(h1, 0); ack.Err != nil {
		t.Fatal(ack.Err)
	}

	// no completer: the transfer stays in flight on the fake bus
	respCh := h.BulkTransfer(h1, &GenericRequest{Direction: bus.DirectionIn, Endpoint: 2, Length: 64})
	inflight := <-fake.submitted

	<-h.CloseDevice(h1)
	select {
	case resp := <-respCh:
		if !errors.Is(resp.Err, ErrCancelled) {
			t.Fatalf("transfer err = %v, want ErrCancelled", resp.Err)
		}
	case <-time.After(time.Second):
		t.Fatal("close did not resolve the in-flight transfer")
	}

	// a late transport completion must never deliver a second result
	inflight.Complete(bus.Outcome{Length: 64})
	select {
	case resp, open := <-respCh:
		if open {
			t.Fatalf("late completion delivered %+v after cancellation", resp)
		}
	case <-time.After(50 * time.Millisecond):
	}
}

func TestTransferOnClosedHandle(t *testing.T) {
	t.Parallel()
	fake := newFakeBus(fakeDevice(1, 0x1234, 0x0001))
	fake.setCompleter(echoCompleter)
	h := newTestHost(t, fake)
	h1 := openHandle(t, h, 1)
	<-h.CloseDevice(h1)
	resp := <-h.ControlTransfer(h1, &ControlRequest{Direction: bus.DirectionOut, Data: []byte{}})
	if !errors.Is(resp.Err, ErrClosed) {
		t.Errorf("transfer on closed handle err = %v, want ErrClosed", resp.Err)
	}
}
