package printer

import (
	"sync/atomic"

	"github.com/Alia5/PrinterBridge/hoststack"
)

// EndpointUnset marks an absent endpoint address on a session.
const EndpointUnset uint8 = 0xFF

// Session lifecycle states. A session accepts a new print job only when
// idle; re-qualification is likewise refused while a transfer is in flight.
const (
	stateIdle int32 = iota
	stateClaimed
	stateSubmitted
)

// completion is the message the transfer callback delivers to the waiting
// submitter: terminal status plus the byte count actually transferred.
type completion struct {
	status      hoststack.TransferStatus
	actualBytes int
}

// Session records the printer interface a qualification pass bound: the
// device and client handles (stack-owned, borrowed here), the selected
// interface, its bulk endpoints, and the in-flight state gate.
type Session struct {
	dev    hoststack.DeviceHandle
	client hoststack.ClientHandle

	interfaceNumber uint8
	bulkOutEP       uint8
	bulkInEP        uint8 // EndpointUnset when unidirectional
	protocol        Protocol

	state atomic.Int32
}

// usable reports whether the session can carry a print job: a device handle
// and a bulk OUT endpoint are both required.
func (s *Session) usable() bool {
	return s != nil && s.dev != nil && s.bulkOutEP != EndpointUnset
}

// Info is a read-only snapshot of a bound session for status reporting.
type Info struct {
	DeviceAddr      uint8
	InterfaceNumber uint8
	BulkOutEndpoint uint8
	BulkInEndpoint  uint8
	Protocol        Protocol
	Busy            bool
}

// Bidirectional reports whether a bulk IN status endpoint was recorded.
// The status channel itself is not read by this driver.
func (i Info) Bidirectional() bool {
	return i.BulkInEndpoint != EndpointUnset
}
