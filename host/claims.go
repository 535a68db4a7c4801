package host

import "sync"

type claimKey struct {
	device uint32
	iface  int
}

// ClaimTable enforces at most one claimant per (device, interface) across
// all handles in the process. Claim is an atomic check-and-set: concurrent
// attempts on the same interface resolve with exactly one winner.
type ClaimTable struct {
	mu     sync.Mutex
	owners map[claimKey]uint64
}

func NewClaimTable() *ClaimTable {
	return &ClaimTable{owners: map[claimKey]uint64{}}
}

func (ct *ClaimTable) Claim(device uint32, iface int, handleID uint64) error {
	key := claimKey{device: device, iface: iface}
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if _, taken := ct.owners[key]; taken {
		return ErrAlreadyClaimed
	}
	ct.owners[key] = handleID
	return nil
}

// Release drops the claim if handleID owns it and reports whether it did.
func (ct *ClaimTable) Release(device uint32, iface int, handleID uint64) bool {
	key := claimKey{device: device, iface: iface}
	ct.mu.Lock()
	defer ct.mu.Unlock()
	if ct.owners[key] != handleID {
		return false
	}
	delete(ct.owners, key)
	return true
}

// Holds reports whether handleID owns the claim on (device, iface).
func (ct *ClaimTable) Holds(device uint32, iface int, handleID uint64) bool {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return ct.owners[claimKey{device: device, iface: iface}] == handleID
}

// HeldBy lists the interface numbers handleID currently holds on the device.
func (ct *ClaimTable) HeldBy(device uint32, handleID uint64) []int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	var ifaces []int
	for key, owner := range ct.owners {
		if key.device == device && owner == handleID {
			ifaces = append(ifaces, key.iface)
		}
	}
	return ifaces
}

// ReleaseAll drops every claim owned by handleID and returns the released
// interface numbers per device.
func (ct *ClaimTable) ReleaseAll(handleID uint64) []claimKey {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	var released []claimKey
	for key, owner := range ct.owners {
		if owner == handleID {
			released = append(released, key)
			delete(ct.owners, key)
		}
	}
	return released
}

// Count reports the number of active claims.
func (ct *ClaimTable) Count() int {
	ct.mu.Lock()
	defer ct.mu.Unlock()
	return len(ct.owners)
}
