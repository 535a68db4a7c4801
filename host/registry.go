package host

import (
	"sync"

	"github.com/fernandosanchezjr/gousbhost/bus"
	log "github.com/sirupsen/logrus"
)

// Filter selects devices by vendor and product ID. A zero field matches any
// value; VID/PID 0x0000 is not assigned by the USB-IF.
type Filter struct {
	Vendor  uint16
	Product uint16
}

func (f Filter) Matches(desc *bus.DeviceDesc) bool {
	if f.Vendor != 0 && desc.Vendor != f.Vendor {
		return false
	}
	if f.Product != 0 && desc.Product != f.Product {
		return false
	}
	return true
}

// Registry holds the most recent enumeration snapshot. The snapshot is not a
// live view; staleness is resolved only by re-enumerating.
type Registry struct {
	b bus.Bus

	mu       sync.Mutex
	snapshot map[uint32]*bus.DeviceDesc
}

func NewRegistry(b bus.Bus) *Registry {
	return &Registry{
		b:        b,
		snapshot: map[uint32]*bus.DeviceDesc{},
	}
}

// Snapshot re-enumerates the bus, replaces the stored snapshot, and returns
// the devices matching the filter.
func (r *Registry) Snapshot(filter Filter) ([]*bus.DeviceDesc, error) {
	descs, err := r.b.Enumerate()
	if err != nil {
		return nil, err
	}
	fresh := make(map[uint32]*bus.DeviceDesc, len(descs))
	var matched []*bus.DeviceDesc
	for _, desc := range descs {
		fresh[desc.ID] = desc
		if filter.Matches(desc) {
			matched = append(matched, desc)
		}
	}
	r.mu.Lock()
	r.snapshot = fresh
	r.mu.Unlock()
	return matched, nil
}

// Lookup resolves a device ID against the current snapshot.
func (r *Registry) Lookup(id uint32) (*bus.DeviceDesc, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	desc, found := r.snapshot[id]
	return desc, found
}

// Refresh re-enumerates and discards the result, keeping only the snapshot.
// Used by the periodic rescan.
func (r *Registry) Refresh() {
	if _, err := r.Snapshot(Filter{}); err != nil {
		log.WithError(err).Warn("Bus rescan failed")
	}
}

// Count reports the size of the current snapshot.
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snapshot)
}
