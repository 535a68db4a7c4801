package host

import "errors"

var (
	// ErrDeviceUnavailable is returned when the target device is no longer
	// attached or vanished between enumeration and open.
	ErrDeviceUnavailable = errors.New("device unavailable")
	// ErrAccessDenied is returned when the permission broker rejects the
	// device or interface.
	ErrAccessDenied = errors.New("access denied")
	// ErrAlreadyClaimed is returned when any handle already holds the
	// interface.
	ErrAlreadyClaimed = errors.New("interface already claimed")
	// ErrNotClaimed is returned by alternate-setting changes when the
	// calling handle does not hold the interface.
	ErrNotClaimed = errors.New("interface not claimed by this handle")
	// ErrInterfaceNotClaimed is returned by endpoint transfers when the
	// endpoint's parent interface is not claimed by the calling handle.
	ErrInterfaceNotClaimed = errors.New("endpoint interface not claimed")
	// ErrCancelled is delivered to transfers aborted by handle close or
	// device reset.
	ErrCancelled = errors.New("transfer cancelled")
	// ErrClosed is returned for operations on a closed or unknown handle.
	ErrClosed = errors.New("handle closed")
)
