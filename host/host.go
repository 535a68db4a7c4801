// Package host implements the USB host-communication core: device registry,
// connection-handle lifecycle, interface-claim arbitration, transfer
// execution and device reset. Every public operation is asynchronous and
// completes exactly once on its returned channel, with either a value or a
// failure, even under cancellation.
package host

import (
	"github.com/fernandosanchezjr/gousbhost/bus"
	"github.com/fernandosanchezjr/gousbhost/permissions"
)

type Host struct {
	registry *Registry
	claims   *ClaimTable
	manager  *Manager
	engine   *Engine
}

func New(b bus.Bus, gate permissions.Broker) *Host {
	registry := NewRegistry(b)
	claims := NewClaimTable()
	manager := NewManager(b, registry, gate, claims)
	return &Host{
		registry: registry,
		claims:   claims,
		manager:  manager,
		engine:   NewEngine(manager, claims),
	}
}

type DevicesResponse struct {
	Devices []*bus.DeviceDesc
	Err     error
}

type AccessResponse struct {
	Granted bool
	Err     error
}

// HandleInfo identifies an open handle; the handle ID is distinct from the
// device ID, and several handles may reference one device.
type HandleInfo struct {
	Handle  uint64
	Vendor  uint16
	Product uint16
}

type OpenResponse struct {
	Info HandleInfo
	Err  error
}

type FindResponse struct {
	Handles []HandleInfo
}

type InterfacesResponse struct {
	Interfaces []bus.InterfaceDesc
	Err        error
}

// Ack completes operations that only succeed or fail.
type Ack struct {
	Err error
}

type ResetResponse struct {
	Success bool
}

func handleInfo(h *Handle) HandleInfo {
	return HandleInfo{Handle: h.ID, Vendor: h.Vendor, Product: h.Product}
}

// GetDevices re-enumerates the bus and returns the devices matching the
// filter; zero filter fields are wildcards.
func (ho *Host) GetDevices(filter Filter) <-chan DevicesResponse {
	out := make(chan DevicesResponse, 1)
	go func() {
		devices, err := ho.registry.Snapshot(filter)
		out <- DevicesResponse{Devices: devices, Err: err}
	}()
	return out
}

// RequestAccess consults the access gate for a device/interface pair.
func (ho *Host) RequestAccess(deviceID uint32, interfaceID int) <-chan AccessResponse {
	out := make(chan AccessResponse, 1)
	go func() {
		granted, err := ho.manager.RequestAccess(deviceID, interfaceID)
		out <- AccessResponse{Granted: granted, Err: err}
	}()
	return out
}

// OpenDevice creates a connection handle for an enumerated device.
func (ho *Host) OpenDevice(deviceID uint32) <-chan OpenResponse {
	out := make(chan OpenResponse, 1)
	go func() {
		h, err := ho.manager.Open(deviceID)
		if err != nil {
			out <- OpenResponse{Err: err}
			return
		}
		out <- OpenResponse{Info: handleInfo(h)}
	}()
	return out
}

// FindDevices enumerates, optionally authorizes, and opens matching devices
// in one batch. Per-device failures are swallowed; only successes appear in
// the result.
func (ho *Host) FindDevices(filter Filter, interfaceID *int) <-chan FindResponse {
	out := make(chan FindResponse, 1)
	go func() {
		var infos []HandleInfo
		for _, h := range ho.manager.FindAndOpen(filter, interfaceID) {
			infos = append(infos, handleInfo(h))
		}
		out <- FindResponse{Handles: infos}
	}()
	return out
}

// CloseDevice closes a handle, cancelling its in-flight transfers and
// releasing its claims. It never fails; closing an unknown handle is a
// no-op.
func (ho *Host) CloseDevice(handleID uint64) <-chan Ack {
	out := make(chan Ack, 1)
	go func() {
		ho.manager.Close(handleID)
		out <- Ack{}
	}()
	return out
}

// ListInterfaces returns the descriptor snapshot of the handle's device.
func (ho *Host) ListInterfaces(handleID uint64) <-chan InterfacesResponse {
	out := make(chan InterfacesResponse, 1)
	go func() {
		interfaces, err := ho.manager.ListInterfaces(handleID)
		out <- InterfacesResponse{Interfaces: interfaces, Err: err}
	}()
	return out
}

// ClaimInterface acquires an exclusive claim on an interface. At most one
// handle holds a given interface of a device at a time, process-wide.
func (ho *Host) ClaimInterface(handleID uint64, iface int) <-chan Ack {
	out := make(chan Ack, 1)
	go func() {
		out <- Ack{Err: ho.manager.Claim(handleID, iface)}
	}()
	return out
}

// ReleaseInterface drops a claim. It never fails; releasing an interface the
// handle does not hold is a no-op.
func (ho *Host) ReleaseInterface(handleID uint64, iface int) <-chan Ack {
	out := make(chan Ack, 1)
	go func() {
		ho.manager.Release(handleID, iface)
		out <- Ack{}
	}()
	return out
}

// SetInterfaceAltSetting selects an alternate setting on a claimed
// interface.
func (ho *Host) SetInterfaceAltSetting(handleID uint64, iface, alternate int) <-chan Ack {
	out := make(chan Ack, 1)
	go func() {
		out <- Ack{Err: ho.manager.SetAltSetting(handleID, iface, alternate)}
	}()
	return out
}

func (ho *Host) ControlTransfer(handleID uint64, req *ControlRequest) <-chan TransferResponse {
	return ho.engine.Control(handleID, req)
}

func (ho *Host) BulkTransfer(handleID uint64, req *GenericRequest) <-chan TransferResponse {
	return ho.engine.Bulk(handleID, req)
}

func (ho *Host) InterruptTransfer(handleID uint64, req *GenericRequest) <-chan TransferResponse {
	return ho.engine.Interrupt(handleID, req)
}

func (ho *Host) IsochronousTransfer(handleID uint64, req *IsochronousRequest) <-chan TransferResponse {
	return ho.engine.Isochronous(handleID, req)
}

// ResetDevice resets the handle's device. Failure invalidates the handle
// and is reported as success=false, not as an error.
func (ho *Host) ResetDevice(handleID uint64) <-chan ResetResponse {
	out := make(chan ResetResponse, 1)
	go func() {
		out <- ResetResponse{Success: ho.manager.Reset(handleID)}
	}()
	return out
}

// Registry exposes the device registry for the rescan scheduler.
func (ho *Host) Registry() *Registry {
	return ho.registry
}

// Shutdown closes every open handle.
func (ho *Host) Shutdown() {
	ho.manager.CloseAll()
}

// Counters reports the running totals used by the status service.
func (ho *Host) Counters() (handles, devices, claims int, stats Stats) {
	return ho.manager.HandleCount(), ho.registry.Count(), ho.claims.Count(), ho.engine.Stats()
}
