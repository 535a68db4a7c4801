package services

// Wire messages for the RPC surface. All fields are gob-friendly; direction,
// recipient and request-type enums travel as plain ints matching the host
// package values.

type DeviceMessage struct {
	ID      uint32
	Vendor  uint16
	Product uint16
	Serial  string
}

type EndpointMessage struct {
	Number          int
	Direction       int
	TransferType    int
	MaxPacketSize   int
	PollingInterval int
}

type AltSettingMessage struct {
	Alternate int
	Class     uint8
	SubClass  uint8
	Protocol  uint8
	Endpoints []EndpointMessage
}

type InterfaceMessage struct {
	Number      int
	AltSettings []AltSettingMessage
}

type HandleMessage struct {
	Handle  uint64
	Vendor  uint16
	Product uint16
}

type DevicesRequest struct {
	Vendor  uint16
	Product uint16
}

type DevicesReply struct {
	Devices []DeviceMessage
}

type AccessRequest struct {
	Device    uint32
	Interface int
}

type AccessReply struct {
	Granted bool
}

type OpenRequest struct {
	Device uint32
}

type OpenReply struct {
	Handle HandleMessage
}

type FindRequest struct {
	Vendor       uint16
	Product      uint16
	Interface    int
	HasInterface bool
}

type FindReply struct {
	Handles []HandleMessage
}

type CloseRequest struct {
	Handle uint64
}

type ListInterfacesRequest struct {
	Handle uint64
}

type ListInterfacesReply struct {
	Interfaces []InterfaceMessage
}

type ClaimRequest struct {
	Handle    uint64
	Interface int
}

type AltSettingRequest struct {
	Handle    uint64
	Interface int
	Alternate int
}

type ControlTransferRequest struct {
	Handle      uint64
	Direction   int
	Recipient   int
	RequestType int
	Request     uint8
	Value       uint16
	Index       uint16
	Length      int
	Data        []byte
}

type GenericTransferRequest struct {
	Handle    uint64
	Direction int
	Endpoint  int
	Length    int
	Data      []byte
}

type IsochronousTransferRequest struct {
	Generic      GenericTransferRequest
	PacketCount  int
	PacketLength int
}

type PacketMessage struct {
	Length int
	Code   int32
}

type TransferReply struct {
	Code    int32
	Data    []byte
	Packets []PacketMessage
}

// GrantRequest targets a grant-store entry for an attached device.
// Interface -1 grants or revokes the whole device.
type GrantRequest struct {
	Device    uint32
	Interface int
}

type ResetRequest struct {
	Handle uint64
}

type ResetReply struct {
	Success bool
}
