package host

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fernandosanchezjr/gousbhost/bus"
)

type Recipient int

const (
	RecipientDevice Recipient = iota
	RecipientInterface
	RecipientEndpoint
	RecipientOther
)

type RequestType int

const (
	RequestTypeStandard RequestType = iota
	RequestTypeClass
	RequestTypeVendor
	RequestTypeReserved
)

// ControlRequest targets the device's default control endpoint; it needs
// only an open handle, no interface claim.
type ControlRequest struct {
	Direction bus.Direction
	Recipient Recipient
	Type      RequestType
	Request   uint8
	Value     uint16
	Index     uint16
	// Length is the expected byte count for in transfers; ignored for out.
	Length int
	// Data is the payload for out transfers; ignored for in.
	Data []byte
}

// GenericRequest is the shared shape of bulk and interrupt transfers:
// endpoint-number addressing instead of recipient/request fields.
type GenericRequest struct {
	Direction bus.Direction
	Endpoint  int
	Length    int
	Data      []byte
}

// IsochronousRequest splits its payload into PacketCount segments of
// PacketLength bytes, submitted as one logical transfer with per-packet
// status.
type IsochronousRequest struct {
	Generic      GenericRequest
	PacketCount  int
	PacketLength int
}

type PacketResult struct {
	Length int
	Code   bus.TransferCode
}

// Result is the completion of a transfer. Code 0 is success; any other value
// is the transport's failure code, reported opaquely upward.
type Result struct {
	Code    bus.TransferCode
	Data    []byte
	Packets []PacketResult
}

func (r *Result) Failed() bool {
	return r.Code != bus.CodeSuccess
}

// TransferResponse is delivered exactly once per submission: a Result, or an
// error (validation failure, closed handle, or ErrCancelled).
type TransferResponse struct {
	Result *Result
	Err    error
}

// Stats are the engine's running counters.
type Stats struct {
	Completed uint64
	Cancelled uint64
	BytesIn   uint64
	BytesOut  uint64
}

// Engine executes transfers against open handles. Each submission is
// validated, registered with its handle, handed to the transport, and
// resolved by a worker goroutine when the transport signals completion or
// the handle is closed.
type Engine struct {
	manager *Manager
	claims  *ClaimTable

	completed uint64
	cancelled uint64
	bytesIn   uint64
	bytesOut  uint64
}

func NewEngine(manager *Manager, claims *ClaimTable) *Engine {
	return &Engine{manager: manager, claims: claims}
}

type transferTicket struct {
	xfer      *bus.Transfer
	direction bus.Direction
	out       chan TransferResponse
	once      sync.Once
	cancelled chan struct{}
	engine    *Engine
}

func (t *transferTicket) deliver(resp TransferResponse) {
	t.once.Do(func() {
		t.out <- resp
	})
}

// cancel resolves the ticket with ErrCancelled and tells the transport to
// abandon the transfer. A late transport completion is discarded by the
// worker; a cancelled transfer never delivers a result afterwards.
func (t *transferTicket) cancel(conn bus.Conn) {
	atomic.AddUint64(&t.engine.cancelled, 1)
	t.deliver(TransferResponse{Err: ErrCancelled})
	close(t.cancelled)
	conn.Cancel(t.xfer)
}

func failed(err error) chan TransferResponse {
	out := make(chan TransferResponse, 1)
	out <- TransferResponse{Err: err}
	return out
}

// directionBuffer enforces the directional field coupling: in transfers
// need an expected length, out transfers need a payload.
func directionBuffer(direction bus.Direction, length int, data []byte) ([]byte, error) {
	if direction == bus.DirectionIn {
		if length <= 0 {
			return nil, fmt.Errorf("in transfer requires a positive expected length")
		}
		return make([]byte, length), nil
	}
	if data == nil {
		return nil, fmt.Errorf("out transfer requires a data payload")
	}
	return data, nil
}

func controlRequestType(direction bus.Direction, requestType RequestType, recipient Recipient) uint8 {
	var b uint8
	if direction == bus.DirectionIn {
		b |= 0x80
	}
	b |= uint8(requestType) << 5
	b |= uint8(recipient)
	return b
}

// Control submits a control transfer. Only an open handle is required.
func (e *Engine) Control(handleID uint64, req *ControlRequest) <-chan TransferResponse {
	buf, err := directionBuffer(req.Direction, req.Length, req.Data)
	if err != nil {
		return failed(err)
	}
	h, found := e.manager.Lookup(handleID)
	if !found {
		return failed(ErrClosed)
	}
	xfer := bus.NewTransfer(bus.TransferTypeControl, 0, buf)
	xfer.Setup = &bus.ControlSetup{
		RequestType: controlRequestType(req.Direction, req.Type, req.Recipient),
		Request:     req.Request,
		Value:       req.Value,
		Index:       req.Index,
	}
	return e.start(h, xfer, req.Direction)
}

// Bulk submits a bulk transfer against an endpoint of a claimed interface.
func (e *Engine) Bulk(handleID uint64, req *GenericRequest) <-chan TransferResponse {
	return e.generic(handleID, req, bus.TransferTypeBulk)
}

// Interrupt submits an interrupt transfer against an endpoint of a claimed
// interface.
func (e *Engine) Interrupt(handleID uint64, req *GenericRequest) <-chan TransferResponse {
	return e.generic(handleID, req, bus.TransferTypeInterrupt)
}

func (e *Engine) generic(handleID uint64, req *GenericRequest, transferType bus.TransferType) <-chan TransferResponse {
	buf, err := directionBuffer(req.Direction, req.Length, req.Data)
	if err != nil {
		return failed(err)
	}
	h, found := e.manager.Lookup(handleID)
	if !found {
		return failed(ErrClosed)
	}
	endpoint, err := e.claimedEndpoint(h, req.Endpoint, req.Direction)
	if err != nil {
		return failed(err)
	}
	xfer := bus.NewTransfer(transferType, endpoint, buf)
	return e.start(h, xfer, req.Direction)
}

// Isochronous submits one logical transfer partitioned into fixed-size
// packets; the payload or expected length must equal PacketCount times
// PacketLength exactly.
func (e *Engine) Isochronous(handleID uint64, req *IsochronousRequest) <-chan TransferResponse {
	if req.PacketCount <= 0 || req.PacketLength <= 0 {
		return failed(fmt.Errorf("isochronous transfer requires positive packet count and length"))
	}
	total := req.PacketCount * req.PacketLength
	if req.Generic.Direction == bus.DirectionIn {
		if req.Generic.Length != total {
			return failed(fmt.Errorf("expected length %d does not match %d packets of %d bytes",
				req.Generic.Length, req.PacketCount, req.PacketLength))
		}
	} else if len(req.Generic.Data) != total {
		return failed(fmt.Errorf("payload of %d bytes does not match %d packets of %d bytes",
			len(req.Generic.Data), req.PacketCount, req.PacketLength))
	}
	buf, err := directionBuffer(req.Generic.Direction, req.Generic.Length, req.Generic.Data)
	if err != nil {
		return failed(err)
	}
	h, found := e.manager.Lookup(handleID)
	if !found {
		return failed(ErrClosed)
	}
	endpoint, err := e.claimedEndpoint(h, req.Generic.Endpoint, req.Generic.Direction)
	if err != nil {
		return failed(err)
	}
	xfer := bus.NewTransfer(bus.TransferTypeIsochronous, endpoint, buf)
	xfer.IsoPackets = req.PacketCount
	xfer.IsoPacketLength = req.PacketLength
	return e.start(h, xfer, req.Generic.Direction)
}

// claimedEndpoint resolves the endpoint's parent interface against the
// descriptor snapshot (using the alternate setting in effect for claimed
// interfaces) and requires the calling handle to hold the claim.
func (e *Engine) claimedEndpoint(h *Handle, number int, direction bus.Direction) (uint8, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.desc.Interfaces {
		intf := &h.desc.Interfaces[i]
		alt, exists := intf.AltSetting(h.activeAlt(intf.Number))
		if !exists {
			continue
		}
		endpoint, exists := alt.Endpoint(number, direction)
		if !exists {
			continue
		}
		if !e.claims.Holds(h.desc.ID, intf.Number, h.ID) {
			return 0, fmt.Errorf("%w: endpoint %d belongs to interface %d", ErrInterfaceNotClaimed, number, intf.Number)
		}
		return endpoint.Address(), nil
	}
	return 0, fmt.Errorf("%w: no claimed interface carries %s endpoint %d", ErrInterfaceNotClaimed, direction, number)
}

func (e *Engine) start(h *Handle, xfer *bus.Transfer, direction bus.Direction) <-chan TransferResponse {
	out := make(chan TransferResponse, 1)
	ticket := &transferTicket{
		xfer:      xfer,
		direction: direction,
		out:       out,
		cancelled: make(chan struct{}),
		engine:    e,
	}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		out <- TransferResponse{Err: ErrClosed}
		return out
	}
	h.inflight[ticket] = struct{}{}
	h.mu.Unlock()
	if err := h.conn.Submit(xfer); err != nil {
		h.removeTicket(ticket)
		ticket.deliver(TransferResponse{Err: err})
		return out
	}
	go e.wait(h, ticket)
	return out
}

func (e *Engine) wait(h *Handle, ticket *transferTicket) {
	select {
	case outcome := <-ticket.xfer.Done:
		h.removeTicket(ticket)
		ticket.deliver(e.resolve(ticket, outcome))
	case <-ticket.cancelled:
		// The closing handle already delivered ErrCancelled; discard any
		// late transport completion.
	}
}

func (e *Engine) resolve(ticket *transferTicket, outcome bus.Outcome) TransferResponse {
	result := &Result{Code: outcome.Code}
	if ticket.direction == bus.DirectionIn && outcome.Length > 0 {
		result.Data = ticket.xfer.Buf[:outcome.Length]
	}
	for _, packet := range outcome.Packets {
		result.Packets = append(result.Packets, PacketResult{Length: packet.Length, Code: packet.Code})
	}
	atomic.AddUint64(&e.completed, 1)
	if outcome.Code == bus.CodeSuccess {
		if ticket.direction == bus.DirectionIn {
			atomic.AddUint64(&e.bytesIn, uint64(outcome.Length))
		} else {
			atomic.AddUint64(&e.bytesOut, uint64(outcome.Length))
		}
	}
	return TransferResponse{Result: result}
}

func (e *Engine) Stats() Stats {
	return Stats{
		Completed: atomic.LoadUint64(&e.completed),
		Cancelled: atomic.LoadUint64(&e.cancelled),
		BytesIn:   atomic.LoadUint64(&e.bytesIn),
		BytesOut:  atomic.LoadUint64(&e.bytesOut),
	}
}
