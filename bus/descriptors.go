package bus

import "fmt"

type TransferType int

const (
	TransferTypeControl TransferType = iota
	TransferTypeBulk
	TransferTypeInterrupt
	TransferTypeIsochronous
)

func (tt TransferType) String() string {
	switch tt {
	case TransferTypeControl:
		return "control"
	case TransferTypeBulk:
		return "bulk"
	case TransferTypeInterrupt:
		return "interrupt"
	case TransferTypeIsochronous:
		return "isochronous"
	}
	return fmt.Sprintf("unknown(%d)", int(tt))
}

type Direction int

const (
	DirectionOut Direction = iota
	DirectionIn
)

func (d Direction) String() string {
	if d == DirectionIn {
		return "in"
	}
	return "out"
}

// DeviceDesc is the descriptor snapshot taken at enumeration time. It is
// immutable once returned; a re-attached device gets a fresh ID and a fresh
// snapshot.
type DeviceDesc struct {
	ID      uint32
	Vendor  uint16
	Product uint16
	Serial  string

	Class    uint8
	SubClass uint8
	Protocol uint8

	Interfaces []InterfaceDesc
}

func (d *DeviceDesc) String() string {
	return fmt.Sprintf("dev=%d,vid=%04x,pid=%04x", d.ID, d.Vendor, d.Product)
}

// Key identifies the device across attachments, used for persistent
// permission grants.
func (d *DeviceDesc) Key() string {
	return fmt.Sprintf("%04x:%04x:%s", d.Vendor, d.Product, d.Serial)
}

// Interface returns the interface descriptor with the given number.
func (d *DeviceDesc) Interface(number int) (*InterfaceDesc, bool) {
	for i := range d.Interfaces {
		if d.Interfaces[i].Number == number {
			return &d.Interfaces[i], true
		}
	}
	return nil, false
}

type InterfaceDesc struct {
	Number      int
	AltSettings []AltSettingDesc
}

// AltSetting returns the descriptor for the given alternate setting number.
func (i *InterfaceDesc) AltSetting(alternate int) (*AltSettingDesc, bool) {
	for a := range i.AltSettings {
		if i.AltSettings[a].Alternate == alternate {
			return &i.AltSettings[a], true
		}
	}
	return nil, false
}

type AltSettingDesc struct {
	Alternate int
	Class     uint8
	SubClass  uint8
	Protocol  uint8
	Endpoints []EndpointDesc
}

// Endpoint returns the endpoint with the given number and direction, if the
// setting has one.
func (a *AltSettingDesc) Endpoint(number int, direction Direction) (*EndpointDesc, bool) {
	for e := range a.Endpoints {
		if a.Endpoints[e].Number == number && a.Endpoints[e].Direction == direction {
			return &a.Endpoints[e], true
		}
	}
	return nil, false
}

type EndpointDesc struct {
	Number          int
	Direction       Direction
	TransferType    TransferType
	MaxPacketSize   int
	PollingInterval int
}

// Address is the endpoint address byte: the endpoint number with the
// direction bit (0x80) set for in endpoints.
func (e *EndpointDesc) Address() uint8 {
	addr := uint8(e.Number)
	if e.Direction == DirectionIn {
		addr |= 0x80
	}
	return addr
}
