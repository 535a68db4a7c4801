// Package permissions is the access-control gate consulted before a device
// is opened or an interface-scoped access request is made. The broker is an
// injected capability; platforms without a permission service use AllowAll.
package permissions

import (
	"github.com/fernandosanchezjr/gousbhost/bus"
)

// WholeDevice requests authorization for the device itself rather than a
// specific interface.
const WholeDevice = -1

// Broker answers authorization queries. A broker that cannot reach its
// backing policy service must answer false, never panic or block forever.
type Broker interface {
	Authorize(device *bus.DeviceDesc, interfaceID int) bool
}

// AllowAll grants every request. It is the default broker on platforms that
// have no permission service.
type AllowAll struct{}

func (AllowAll) Authorize(*bus.DeviceDesc, int) bool {
	return true
}
