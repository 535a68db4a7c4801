// Package bus defines the contracts between the host core and the underlying
// USB stack: device enumeration and per-device raw transport. The physical
// implementation lives in bus/physical; tests inject in-memory fakes.
package bus

// Bus enumerates attached devices and opens raw connections to them.
// Enumerate returns a snapshot; device IDs are stable while a device stays
// attached and are never reused within a process.
type Bus interface {
	Enumerate() ([]*DeviceDesc, error)
	Open(id uint32) (Conn, error)
	Close() error
}

// Conn is a raw transport to one opened device. Claim, Release and SetAlt
// mirror the kernel-level interface operations; Submit hands a transfer to
// the stack, which delivers exactly one Outcome on the transfer's Done
// channel unless Cancel wins first.
type Conn interface {
	Claim(iface int) error
	Release(iface int)
	SetAlt(iface, alt int) error
	Submit(t *Transfer) error
	Cancel(t *Transfer)
	Reset() error
	Close() error
}
