package host

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fernandosanchezjr/gousbhost/bus"
	"github.com/fernandosanchezjr/gousbhost/permissions"
	log "github.com/sirupsen/logrus"
)

// Handle is one open session against a device. Several handles may reference
// the same device; each owns its claims and in-flight transfers, and closing
// it cancels the transfers and releases the claims atomically with respect
// to new claim and transfer attempts.
type Handle struct {
	ID      uint64
	Vendor  uint16
	Product uint16

	desc *bus.DeviceDesc
	conn bus.Conn

	mu       sync.Mutex
	closed   bool
	inflight map[*transferTicket]struct{}
	alts     map[int]int
}

func (h *Handle) Device() *bus.DeviceDesc {
	return h.desc
}

func (h *Handle) String() string {
	return fmt.Sprintf("handle=%d,%s", h.ID, h.desc)
}

func (h *Handle) removeTicket(t *transferTicket) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.inflight, t)
}

// activeAlt reports the alternate setting in effect for an interface; zero
// when never changed.
func (h *Handle) activeAlt(iface int) int {
	return h.alts[iface]
}

// Manager owns the handle table: open, find-and-open, close, claims and
// alternate settings, and device reset.
type Manager struct {
	registry *Registry
	gate     permissions.Broker
	claims   *ClaimTable
	b        bus.Bus

	nextHandleID uint64

	mu      sync.Mutex
	handles map[uint64]*Handle
}

func NewManager(b bus.Bus, registry *Registry, gate permissions.Broker, claims *ClaimTable) *Manager {
	return &Manager{
		registry: registry,
		gate:     gate,
		claims:   claims,
		b:        b,
		handles:  map[uint64]*Handle{},
	}
}

// Open creates a handle for the device. The device must be present in the
// registry snapshot (a refresh is attempted once) and pass the access gate.
func (m *Manager) Open(deviceID uint32) (*Handle, error) {
	desc, found := m.registry.Lookup(deviceID)
	if !found {
		m.registry.Refresh()
		if desc, found = m.registry.Lookup(deviceID); !found {
			return nil, ErrDeviceUnavailable
		}
	}
	if !m.gate.Authorize(desc, permissions.WholeDevice) {
		return nil, ErrAccessDenied
	}
	conn, err := m.b.Open(deviceID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}
	h := &Handle{
		ID:       atomic.AddUint64(&m.nextHandleID, 1),
		Vendor:   desc.Vendor,
		Product:  desc.Product,
		desc:     desc,
		conn:     conn,
		inflight: map[*transferTicket]struct{}{},
		alts:     map[int]int{},
	}
	m.mu.Lock()
	m.handles[h.ID] = h
	m.mu.Unlock()
	log.WithFields(log.Fields{
		"handle": h.ID,
		"device": desc.String(),
	}).Debug("Opened device")
	return h, nil
}

// FindAndOpen enumerates matching devices and opens each that passes every
// step. When interfaceID is non-nil the access gate is consulted per device
// first. Devices that fail any step are skipped silently; this is a batch
// convenience, not a transaction.
func (m *Manager) FindAndOpen(filter Filter, interfaceID *int) []*Handle {
	descs, err := m.registry.Snapshot(filter)
	if err != nil {
		log.WithError(err).Warn("Enumeration failed during find")
		return nil
	}
	var handles []*Handle
	for _, desc := range descs {
		if interfaceID != nil && !m.gate.Authorize(desc, *interfaceID) {
			continue
		}
		h, err := m.Open(desc.ID)
		if err != nil {
			log.WithError(err).WithField("device", desc.String()).Debug("Skipping device during find")
			continue
		}
		handles = append(handles, h)
	}
	return handles
}

// RequestAccess consults the access gate for a device/interface pair.
func (m *Manager) RequestAccess(deviceID uint32, interfaceID int) (bool, error) {
	desc, found := m.registry.Lookup(deviceID)
	if !found {
		return false, ErrDeviceUnavailable
	}
	return m.gate.Authorize(desc, interfaceID), nil
}

// Lookup resolves a handle ID; closed handles are not found.
func (m *Manager) Lookup(handleID uint64) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, found := m.handles[handleID]
	return h, found
}

// Close tears a handle down. Unknown or already-closed handles are a no-op;
// failing here would only mask leaks.
func (m *Manager) Close(handleID uint64) {
	m.mu.Lock()
	h, found := m.handles[handleID]
	if found {
		delete(m.handles, handleID)
	}
	m.mu.Unlock()
	if !found {
		return
	}
	m.shutdown(h)
}

// CloseAll tears down every open handle, used at daemon shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	handles := make([]*Handle, 0, len(m.handles))
	for id, h := range m.handles {
		handles = append(handles, h)
		delete(m.handles, id)
	}
	m.mu.Unlock()
	for _, h := range handles {
		m.shutdown(h)
	}
}

func (m *Manager) shutdown(h *Handle) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	tickets := make([]*transferTicket, 0, len(h.inflight))
	for t := range h.inflight {
		tickets = append(tickets, t)
	}
	h.inflight = map[*transferTicket]struct{}{}
	released := m.claims.ReleaseAll(h.ID)
	h.mu.Unlock()

	for _, t := range tickets {
		t.cancel(h.conn)
	}
	for _, key := range released {
		h.conn.Release(key.iface)
	}
	if err := h.conn.Close(); err != nil {
		log.WithError(err).WithField("handle", h.ID).Debug("Error closing connection")
	}
	log.WithFields(log.Fields{
		"handle":    h.ID,
		"transfers": len(tickets),
		"claims":    len(released),
	}).Debug("Closed handle")
}

// Claim acquires the interface for the handle. The claim-table insert and
// the closed check happen under the handle lock so close cannot interleave.
func (m *Manager) Claim(handleID uint64, iface int) error {
	h, found := m.Lookup(handleID)
	if !found {
		return ErrClosed
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if _, exists := h.desc.Interface(iface); !exists {
		return fmt.Errorf("%s has no interface %d", h.desc, iface)
	}
	if err := m.claims.Claim(h.desc.ID, iface, h.ID); err != nil {
		return err
	}
	if err := h.conn.Claim(iface); err != nil {
		m.claims.Release(h.desc.ID, iface, h.ID)
		return err
	}
	h.alts[iface] = 0
	return nil
}

// Release drops the handle's claim on the interface; a no-op when the handle
// does not hold it.
func (m *Manager) Release(handleID uint64, iface int) {
	h, found := m.Lookup(handleID)
	if !found {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if m.claims.Release(h.desc.ID, iface, h.ID) {
		h.conn.Release(iface)
		delete(h.alts, iface)
	}
}

// SetAltSetting selects an alternate setting on an interface the handle has
// claimed.
func (m *Manager) SetAltSetting(handleID uint64, iface, alternate int) error {
	h, found := m.Lookup(handleID)
	if !found {
		return ErrClosed
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrClosed
	}
	if !m.claims.Holds(h.desc.ID, iface, h.ID) {
		return ErrNotClaimed
	}
	intf, exists := h.desc.Interface(iface)
	if !exists {
		return fmt.Errorf("%s has no interface %d", h.desc, iface)
	}
	if _, exists := intf.AltSetting(alternate); !exists {
		return fmt.Errorf("interface %d of %s has no alternate setting %d", iface, h.desc, alternate)
	}
	if err := h.conn.SetAlt(iface, alternate); err != nil {
		return err
	}
	h.alts[iface] = alternate
	return nil
}

// ListInterfaces returns the descriptor snapshot of the handle's device.
func (m *Manager) ListInterfaces(handleID uint64) ([]bus.InterfaceDesc, error) {
	h, found := m.Lookup(handleID)
	if !found {
		return nil, ErrClosed
	}
	return h.desc.Interfaces, nil
}

// HandleCount reports the number of open handles.
func (m *Manager) HandleCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.handles)
}
