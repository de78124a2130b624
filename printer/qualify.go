package printer

import (
	"fmt"

	"github.com/Alia5/PrinterBridge/hoststack"
	"github.com/Alia5/PrinterBridge/usb"
)

// Qualify inspects the device's active configuration descriptor for a
// printer-class interface and binds the driver's session to the first one
// found. It returns true iff at least one printer interface was seen,
// regardless of whether a usable bulk OUT endpoint was extracted; callers
// must check Info() separately before printing.
//
// Parse failures on individual interfaces or endpoints are logged and
// skipped, never fatal to the scan.
func (d *Driver) Qualify(dev hoststack.DeviceHandle, client hoststack.ClientHandle) bool {
	if dev == nil {
		d.logger.Error("qualify: device handle is nil")
		return false
	}
	if client == nil {
		d.logger.Error("qualify: client handle is nil")
		return false
	}

	d.logger.Info("checking device for printer interfaces", "addr", dev.Addr())

	config, err := d.stack.ActiveConfigDescriptor(dev)
	if err != nil {
		d.logger.Error("get config descriptor", "addr", dev.Addr(), "error", err)
		return false
	}

	found := false
	for i := uint8(0); i < config.BNumInterfaces; i++ {
		span, err := config.Interface(i, 0)
		if err != nil {
			d.logger.Warn("parse interface", "index", i, "error", err)
			continue
		}

		d.logger.Info("interface",
			"index", i,
			"class", hexByte(span.BInterfaceClass),
			"subclass", hexByte(span.BInterfaceSubClass),
			"protocol", hexByte(span.BInterfaceProtocol))

		if span.BInterfaceClass != usb.ClassPrinter {
			d.logger.Debug("not a printer interface", "index", i)
			continue
		}

		proto := Protocol(span.BInterfaceProtocol)
		d.logger.Info("printer interface found", "index", i, "protocol", proto.String())
		if proto == ProtocolBidirectional || proto == ProtocolIEEE1284 {
			// The bulk IN status channel is recorded during extraction but
			// never read; protocol only affects logging here.
			d.logger.Info("printer supports bi-directional communication", "index", i)
		}

		if found {
			// First match wins; later printer interfaces on the same
			// device are ignored.
			d.logger.Warn("additional printer interface ignored", "index", i)
			continue
		}
		found = true
		d.bindSession(dev, client, span, proto)
	}

	if !found {
		d.logger.Info("no printer interface on device", "addr", dev.Addr())
	}
	return found
}

// bindSession extracts the bulk endpoints of a qualifying interface into a
// fresh session and installs it. A missing bulk OUT endpoint abandons the
// population: the previous session, if any, stays in place. Rebinding is
// refused while a transfer is in flight on the current session.
func (d *Driver) bindSession(dev hoststack.DeviceHandle, client hoststack.ClientHandle, span *usb.InterfaceSpan, proto Protocol) {
	s := &Session{
		dev:             dev,
		client:          client,
		interfaceNumber: span.BInterfaceNumber,
		bulkOutEP:       EndpointUnset,
		bulkInEP:        EndpointUnset,
		protocol:        proto,
	}

	for ep := uint8(0); ep < span.BNumEndpoints; ep++ {
		epDesc, err := span.Endpoint(ep)
		if err != nil {
			d.logger.Warn("parse endpoint", "index", ep, "error", err)
			continue
		}
		if !epDesc.IsBulk() {
			continue
		}
		if epDesc.IsIn() {
			// Bulk IN endpoint (status channel, unused).
			s.bulkInEP = epDesc.BEndpointAddress
			d.logger.Info("found bulk IN endpoint", "address", hexByte(s.bulkInEP))
		} else {
			// Bulk OUT endpoint (print data).
			s.bulkOutEP = epDesc.BEndpointAddress
			d.logger.Info("found bulk OUT endpoint", "address", hexByte(s.bulkOutEP))
		}
	}

	if s.bulkOutEP == EndpointUnset {
		d.logger.Error("no bulk OUT endpoint on printer interface", "interface", s.interfaceNumber)
		return
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if old := d.session; old != nil && old.state.Load() != stateIdle {
		d.logger.Error("printer session busy, refusing to rebind",
			"interface", old.interfaceNumber)
		return
	}
	d.session = s

	d.logger.Info("printer session bound",
		"interface", s.interfaceNumber,
		"bulkOut", hexByte(s.bulkOutEP),
		"bulkIn", hexByte(s.bulkInEP),
		"protocol", s.protocol.String())
}

func hexByte(b uint8) string {
	return fmt.Sprintf("0x%02x", b)
}
