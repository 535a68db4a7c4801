package host

import (
	log "github.com/sirupsen/logrus"
)

// Reset performs a hardware reset of the handle's device. On success the
// handle stays valid and its claims are re-asserted against the refreshed
// connection. On failure the device is treated as disconnected: the handle
// is torn down exactly like Close and the caller must re-enumerate for a
// fresh device identity. Failure is an expected outcome, not an error.
func (m *Manager) Reset(handleID uint64) bool {
	h, found := m.Lookup(handleID)
	if !found {
		return false
	}
	if err := h.conn.Reset(); err != nil {
		log.WithError(err).WithField("handle", h.ID).Warn("Device reset failed, invalidating handle")
		m.Close(handleID)
		return false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	for _, iface := range m.claims.HeldBy(h.desc.ID, h.ID) {
		if err := h.conn.Claim(iface); err != nil {
			log.WithError(err).WithFields(log.Fields{
				"handle":    h.ID,
				"interface": iface,
			}).Warn("Could not re-claim interface after reset")
			continue
		}
		if alt := h.activeAlt(iface); alt != 0 {
			if err := h.conn.SetAlt(iface, alt); err != nil {
				log.WithError(err).WithFields(log.Fields{
					"handle":    h.ID,
					"interface": iface,
					"alternate": alt,
				}).Warn("Could not restore alternate setting after reset")
			}
		}
	}
	return true
}
