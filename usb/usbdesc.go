// Package usb contains helpers for parsing and building USB descriptors.
package usb

import (
	"bytes"
	"encoding/binary"
)

// USB descriptor type constants
const (
	DeviceDescType    = 0x01
	ConfigDescType    = 0x02
	StringDescType    = 0x03
	InterfaceDescType = 0x04
	EndpointDescType  = 0x05
)

// Descriptor lengths in bytes (fixed values from USB spec)
const (
	DeviceDescLen    = 18
	ConfigDescLen    = 9
	InterfaceDescLen = 9
	EndpointDescLen  = 7
)

// Interface class codes relevant to printer qualification.
const (
	ClassHID         = 0x03
	ClassPrinter     = 0x07
	ClassMassStorage = 0x08
)

// Printer class interface protocol values, per the USB Printer Class 1.1a
// specification (usbprint11a021811.pdf).
const (
	PrinterProtocolUnidirectional = 0x01
	PrinterProtocolBidirectional  = 0x02
	PrinterProtocol1284           = 0x03
)

// PrinterSubclass is the only subclass defined for the printer class.
const PrinterSubclass = 0x01

// Endpoint descriptor bit masks: bmAttributes bits 1..0 select the transfer
// type, bEndpointAddress bit 7 is the direction (set = IN).
const (
	EndpointXferTypeMask = 0x03
	EndpointXferControl  = 0x00
	EndpointXferIso      = 0x01
	EndpointXferBulk     = 0x02
	EndpointXferInt      = 0x03

	EndpointDirIn      = 0x80
	EndpointNumberMask = 0x0F
)

// InterfaceConfig holds all descriptors for a single interface of a
// configuration tree.
type InterfaceConfig struct {
	Descriptor InterfaceDescriptor
	Endpoints  []EndpointDescriptor
	ClassData  []byte // optional class-specific bytes emitted after the interface descriptor
}

// ConfigHeader represents the USB configuration descriptor header (9 bytes).
type ConfigHeader struct {
	WTotalLength        uint16 // LE, patched when building a full tree
	BNumInterfaces      uint8
	BConfigurationValue uint8
	IConfiguration      uint8
	BMAttributes        uint8
	BMaxPower           uint8
}

func (h ConfigHeader) Write(b *bytes.Buffer) {
	b.WriteByte(ConfigDescLen)
	b.WriteByte(ConfigDescType)
	_ = binary.Write(b, binary.LittleEndian, h.WTotalLength)
	b.WriteByte(h.BNumInterfaces)
	b.WriteByte(h.BConfigurationValue)
	b.WriteByte(h.IConfiguration)
	b.WriteByte(h.BMAttributes)
	b.WriteByte(h.BMaxPower)
}

// InterfaceDescriptor (9 bytes) for each interface altsetting.
type InterfaceDescriptor struct {
	BInterfaceNumber   uint8
	BAlternateSetting  uint8
	BNumEndpoints      uint8
	BInterfaceClass    uint8
	BInterfaceSubClass uint8
	BInterfaceProtocol uint8
	IInterface         uint8
}

func (i InterfaceDescriptor) Write(b *bytes.Buffer) {
	b.WriteByte(InterfaceDescLen)
	b.WriteByte(InterfaceDescType)
	b.WriteByte(i.BInterfaceNumber)
	b.WriteByte(i.BAlternateSetting)
	b.WriteByte(i.BNumEndpoints)
	b.WriteByte(i.BInterfaceClass)
	b.WriteByte(i.BInterfaceSubClass)
	b.WriteByte(i.BInterfaceProtocol)
	b.WriteByte(i.IInterface)
}

// EndpointDescriptor (7 bytes) for each endpoint.
type EndpointDescriptor struct {
	BEndpointAddress uint8
	BMAttributes     uint8
	WMaxPacketSize   uint16 // LE
	BInterval        uint8
}

func (e EndpointDescriptor) Write(b *bytes.Buffer) {
	b.WriteByte(EndpointDescLen)
	b.WriteByte(EndpointDescType)
	b.WriteByte(e.BEndpointAddress)
	b.WriteByte(e.BMAttributes)
	_ = binary.Write(b, binary.LittleEndian, e.WMaxPacketSize)
	b.WriteByte(e.BInterval)
}

// TransferType returns the transfer type bits of bmAttributes.
func (e EndpointDescriptor) TransferType() uint8 {
	return e.BMAttributes & EndpointXferTypeMask
}

// IsBulk reports whether the endpoint is a bulk endpoint.
func (e EndpointDescriptor) IsBulk() bool {
	return e.TransferType() == EndpointXferBulk
}

// IsIn reports whether the endpoint direction bit is set (device to host).
func (e EndpointDescriptor) IsIn() bool {
	return e.BEndpointAddress&EndpointDirIn != 0
}

// BuildConfigDescriptor assembles a full configuration descriptor tree from
// the given interfaces, with wTotalLength patched into the header.
func BuildConfigDescriptor(hdr ConfigHeader, interfaces []InterfaceConfig) []byte {
	var b bytes.Buffer
	hdr.BNumInterfaces = uint8(len(interfaces))
	hdr.Write(&b)
	for _, iface := range interfaces {
		iface.Descriptor.Write(&b)
		if len(iface.ClassData) > 0 {
			b.Write(iface.ClassData)
		}
		for _, ep := range iface.Endpoints {
			ep.Write(&b)
		}
	}

	data := b.Bytes()
	binary.LittleEndian.PutUint16(data[2:4], uint16(len(data)))
	return data
}
