package services

import (
	"github.com/fernandosanchezjr/gousbhost/bus"
	"github.com/fernandosanchezjr/gousbhost/host"
	"github.com/fernandosanchezjr/gousbhost/permissions"
)

// PermissionsService administers the persistent grant store over RPC. The
// daemon publishes it only when running with the "grants" broker. Grants
// are keyed by device identity, so they survive detach and re-attach; the
// target device must be attached when the grant is written.
type PermissionsService struct {
	host   *host.Host
	grants *permissions.GrantStore
}

func NewPermissionsService(h *host.Host, grants *permissions.GrantStore) *PermissionsService {
	return &PermissionsService{host: h, grants: grants}
}

func (s *PermissionsService) lookup(deviceID uint32) (*bus.DeviceDesc, error) {
	desc, found := s.host.Registry().Lookup(deviceID)
	if !found {
		s.host.Registry().Refresh()
		if desc, found = s.host.Registry().Lookup(deviceID); !found {
			return nil, host.ErrDeviceUnavailable
		}
	}
	return desc, nil
}

func (s *PermissionsService) Grant(req *GrantRequest) error {
	desc, err := s.lookup(req.Device)
	if err != nil {
		return err
	}
	return s.grants.Grant(desc, req.Interface)
}

func (s *PermissionsService) Revoke(req *GrantRequest) error {
	desc, err := s.lookup(req.Device)
	if err != nil {
		return err
	}
	return s.grants.Revoke(desc, req.Interface)
}
