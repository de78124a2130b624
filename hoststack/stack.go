// Package hoststack defines the boundary to the USB host stack: descriptor
// access, interface claim/release, and asynchronous transfer submission.
//
// The stack owns devices and client contexts; consumers hold opaque,
// non-owning handles. Completion callbacks run on the stack's own service
// goroutine, never on the submitter's.
package hoststack

import "github.com/Alia5/PrinterBridge/usb"

// DeviceHandle is an opaque reference to an enumerated device. It is owned
// by the host stack; holders must not retain it past a DeviceGone event.
type DeviceHandle interface {
	// Addr returns the bus address assigned during enumeration.
	Addr() uint8
}

// ClientHandle is an opaque reference to a registered host-stack client
// context, used for claim/release/submit calls.
type ClientHandle interface {
	// Name returns the client name given at registration.
	Name() string
}

// TransferStatus is the terminal state of a submitted transfer.
type TransferStatus int

const (
	TransferStatusCompleted TransferStatus = iota
	TransferStatusError
	TransferStatusTimedOut
	TransferStatusCancelled
	TransferStatusStall
	TransferStatusNoDevice
)

func (s TransferStatus) String() string {
	switch s {
	case TransferStatusCompleted:
		return "completed"
	case TransferStatusError:
		return "error"
	case TransferStatusTimedOut:
		return "timed out"
	case TransferStatusCancelled:
		return "cancelled"
	case TransferStatusStall:
		return "stall"
	case TransferStatusNoDevice:
		return "no device"
	default:
		return "unknown"
	}
}

// Transfer describes one asynchronous operation over a specific endpoint.
// Transfers are one-shot: allocated via TransferAlloc, submitted once, and
// freed via TransferFree (conventionally inside the completion callback).
type Transfer struct {
	DeviceHandle    DeviceHandle
	EndpointAddress uint8

	// DataBuffer is allocated by TransferAlloc; NumBytes is the count the
	// submitter wants transferred.
	DataBuffer []byte
	NumBytes   int

	// Filled in by the stack before the callback is invoked.
	Status         TransferStatus
	ActualNumBytes int

	// Callback is invoked from the stack's service goroutine when the
	// transfer reaches a terminal state.
	Callback func(*Transfer)

	// Context is an opaque user field carried through to the callback.
	Context any
}

// EventType identifies a client event.
type EventType int

const (
	// EventNewDevice signals a newly enumerated device.
	EventNewDevice EventType = iota
	// EventDeviceGone signals a disconnected device; handles referring to
	// it are invalid once the event is delivered.
	EventDeviceGone
)

// DeviceEvent is delivered to a registered client when bus topology changes.
type DeviceEvent struct {
	Type   EventType
	Device DeviceHandle
}

// Stack is the host-stack interface the printer driver runs against.
type Stack interface {
	// ActiveConfigDescriptor returns the active configuration descriptor
	// tree of the device.
	ActiveConfigDescriptor(dev DeviceHandle) (*usb.ConfigDescriptor, error)

	// InterfaceClaim exclusively reserves an interface for the client.
	// Claims must be paired with InterfaceRelease.
	InterfaceClaim(client ClientHandle, dev DeviceHandle, ifaceNum, altSetting uint8) error

	// InterfaceRelease releases a previously claimed interface.
	InterfaceRelease(client ClientHandle, dev DeviceHandle, ifaceNum uint8) error

	// TransferAlloc allocates a transfer with a data buffer of the given
	// size.
	TransferAlloc(size int) (*Transfer, error)

	// TransferSubmit hands the transfer to the stack. On success the stack
	// owns the transfer until its callback has returned.
	TransferSubmit(t *Transfer) error

	// TransferFree returns a transfer to the stack.
	TransferFree(t *Transfer) error
}
