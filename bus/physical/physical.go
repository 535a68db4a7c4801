// Package physical implements bus.Bus over libusb via github.com/google/gousb.
package physical

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/fernandosanchezjr/gousbhost/bus"
	"github.com/google/gousb"
	log "github.com/sirupsen/logrus"
)

// Backend enumerates and opens devices through a shared gousb context.
// Device IDs are minted per physical attachment: a device keeps its ID across
// snapshots while it stays at the same bus position, and gets a fresh ID when
// it reappears.
type Backend struct {
	ctx   *gousb.Context
	allow map[uint16]bool

	mu        sync.Mutex
	nextID    uint32
	known     map[string]uint32
	locations map[uint32]location
	serials   map[string]string
}

type location struct {
	busNumber int
	address   int
}

func New(vendorAllowList []uint16) *Backend {
	b := &Backend{
		ctx:       gousb.NewContext(),
		known:     map[string]uint32{},
		locations: map[uint32]location{},
		serials:   map[string]string{},
	}
	if len(vendorAllowList) > 0 {
		b.allow = map[uint16]bool{}
		for _, vendor := range vendorAllowList {
			b.allow[vendor] = true
		}
	}
	return b
}

func (b *Backend) Enumerate() ([]*bus.DeviceDesc, error) {
	var raw []*gousb.DeviceDesc
	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		if b.allow != nil && !b.allow[uint16(desc.Vendor)] {
			return false
		}
		raw = append(raw, desc)
		return false
	})
	for _, d := range devs {
		_ = d.Close()
	}
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	seen := map[string]bool{}
	var out []*bus.DeviceDesc
	for _, desc := range raw {
		key := attachmentKey(desc)
		seen[key] = true
		id, found := b.known[key]
		if !found {
			b.nextID++
			id = b.nextID
			b.known[key] = id
			b.locations[id] = location{busNumber: desc.Bus, address: desc.Address}
			b.serials[key] = b.readSerial(desc)
		}
		out = append(out, convertDesc(id, desc, b.serials[key]))
	}
	for key, id := range b.known {
		if !seen[key] {
			delete(b.known, key)
			delete(b.locations, id)
			delete(b.serials, key)
		}
	}
	return out, nil
}

func (b *Backend) Open(id uint32) (bus.Conn, error) {
	b.mu.Lock()
	loc, found := b.locations[id]
	b.mu.Unlock()
	if !found {
		return nil, fmt.Errorf("device %d is not attached", id)
	}
	devs, err := b.ctx.OpenDevices(func(desc *gousb.DeviceDesc) bool {
		return desc.Bus == loc.busNumber && desc.Address == loc.address
	})
	if err != nil && len(devs) == 0 {
		return nil, err
	}
	if len(devs) == 0 {
		return nil, fmt.Errorf("device %d vanished before open", id)
	}
	dev := devs[0]
	for _, extra := range devs[1:] {
		_ = extra.Close()
	}
	if err := dev.SetAutoDetach(true); err != nil {
		log.WithError(err).WithField("device", id).Warn("Could not enable kernel driver auto-detach")
	}
	return &conn{
		dev:      dev,
		ifaces:   map[int]*gousb.Interface{},
		alts:     map[int]int{},
		inflight: map[*bus.Transfer]context.CancelFunc{},
	}, nil
}

func (b *Backend) Close() error {
	return b.ctx.Close()
}

// readSerial opens the device briefly to fetch its serial number string,
// once per attachment. Devices without one, or that cannot be opened, get
// an empty serial.
func (b *Backend) readSerial(desc *gousb.DeviceDesc) string {
	devs, err := b.ctx.OpenDevices(func(d *gousb.DeviceDesc) bool {
		return d.Bus == desc.Bus && d.Address == desc.Address
	})
	var dev *gousb.Device
	for _, d := range devs {
		if dev == nil {
			dev = d
		} else {
			_ = d.Close()
		}
	}
	if dev == nil {
		if err != nil {
			log.WithError(err).WithFields(log.Fields{
				"bus":     desc.Bus,
				"address": desc.Address,
			}).Debug("Could not open device to read serial")
		}
		return ""
	}
	defer func() {
		_ = dev.Close()
	}()
	serial, err := dev.SerialNumber()
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"bus":     desc.Bus,
			"address": desc.Address,
		}).Debug("Could not read device serial")
		return ""
	}
	return serial
}

func attachmentKey(desc *gousb.DeviceDesc) string {
	return fmt.Sprintf("%d:%d:%s:%s", desc.Bus, desc.Address, desc.Vendor, desc.Product)
}

func convertDesc(id uint32, desc *gousb.DeviceDesc, serial string) *bus.DeviceDesc {
	out := &bus.DeviceDesc{
		ID:       id,
		Vendor:   uint16(desc.Vendor),
		Product:  uint16(desc.Product),
		Serial:   serial,
		Class:    uint8(desc.Class),
		SubClass: uint8(desc.SubClass),
		Protocol: uint8(desc.Protocol),
	}
	cfg, found := activeConfig(desc)
	if !found {
		return out
	}
	for _, intf := range cfg.Interfaces {
		converted := bus.InterfaceDesc{Number: intf.Number}
		for _, alt := range intf.AltSettings {
			altDesc := bus.AltSettingDesc{
				Alternate: alt.Alternate,
				Class:     uint8(alt.Class),
				SubClass:  uint8(alt.SubClass),
				Protocol:  uint8(alt.Protocol),
			}
			for _, ep := range alt.Endpoints {
				direction := bus.DirectionOut
				if ep.Direction == gousb.EndpointDirectionIn {
					direction = bus.DirectionIn
				}
				altDesc.Endpoints = append(altDesc.Endpoints, bus.EndpointDesc{
					Number:          ep.Number,
					Direction:       direction,
					TransferType:    convertTransferType(ep.TransferType),
					MaxPacketSize:   ep.MaxPacketSize,
					PollingInterval: int(ep.PollInterval.Milliseconds()),
				})
			}
			sort.Slice(altDesc.Endpoints, func(i, j int) bool {
				return altDesc.Endpoints[i].Number < altDesc.Endpoints[j].Number
			})
			converted.AltSettings = append(converted.AltSettings, altDesc)
		}
		out.Interfaces = append(out.Interfaces, converted)
	}
	return out
}

func activeConfig(desc *gousb.DeviceDesc) (gousb.ConfigDesc, bool) {
	var ids []int
	for id := range desc.Configs {
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return gousb.ConfigDesc{}, false
	}
	sort.Ints(ids)
	return desc.Configs[ids[0]], true
}

func convertTransferType(tt gousb.TransferType) bus.TransferType {
	switch tt {
	case gousb.TransferTypeBulk:
		return bus.TransferTypeBulk
	case gousb.TransferTypeInterrupt:
		return bus.TransferTypeInterrupt
	case gousb.TransferTypeIsochronous:
		return bus.TransferTypeIsochronous
	}
	return bus.TransferTypeControl
}
