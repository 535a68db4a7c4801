package daemon

import (
	"errors"

	"github.com/fernandosanchezjr/gousbhost/bus"
)

// nopBus is the "none" backend: an empty bus for running the daemon on
// machines without USB access.
type nopBus struct{}

func (nopBus) Enumerate() ([]*bus.DeviceDesc, error) {
	return nil, nil
}

func (nopBus) Open(uint32) (bus.Conn, error) {
	return nil, errors.New("no bus backend configured")
}

func (nopBus) Close() error {
	return nil
}
