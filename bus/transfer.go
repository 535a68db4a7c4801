package bus

// TransferCode is the transport-level completion code. Zero is success; any
// other value comes from the underlying stack and is passed upward without
// interpretation.
type TransferCode int32

const CodeSuccess TransferCode = 0

// ControlSetup is the setup packet of a control transfer. RequestType is the
// assembled bmRequestType byte (direction, type and recipient bits included).
type ControlSetup struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
}

// PacketOutcome is the per-packet completion of an isochronous transfer.
type PacketOutcome struct {
	Length int
	Code   TransferCode
}

// Outcome is the completion of a single transfer. Length is how many bytes
// of Buf were transferred. Packets is populated for isochronous transfers
// only.
type Outcome struct {
	Length  int
	Code    TransferCode
	Packets []PacketOutcome
}

// Transfer is one submission to the transport. Buf carries the payload for
// out transfers and receives data for in transfers. Done must be buffered
// with capacity 1; the transport sends at most one Outcome on it.
type Transfer struct {
	Type     TransferType
	Endpoint uint8
	Setup    *ControlSetup
	Buf      []byte

	// Isochronous packet geometry; zero for other transfer types.
	IsoPackets      int
	IsoPacketLength int

	Done chan Outcome
}

// NewTransfer allocates a transfer with a correctly sized completion channel.
func NewTransfer(transferType TransferType, endpoint uint8, buf []byte) *Transfer {
	return &Transfer{
		Type:     transferType,
		Endpoint: endpoint,
		Buf:      buf,
		Done:     make(chan Outcome, 1),
	}
}

// Complete delivers the outcome without blocking the transport. The host
// core guarantees it reads Done at most once, so a single buffered slot is
// always available.
func (t *Transfer) Complete(o Outcome) {
	select {
	case t.Done <- o:
	default:
	}
}
