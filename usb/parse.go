package usb

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Parse errors. Callers that walk descriptor trees treat these as local to
// the offending element, not as fatal to the whole walk.
var (
	ErrDescriptorShort = errors.New("descriptor data too short")
	ErrDescriptorType  = errors.New("unexpected descriptor type")
	ErrNotFound        = errors.New("descriptor not found")
)

// ConfigDescriptor is a parsed configuration descriptor header together with
// the raw configuration tree it heads. The tree is walked lazily: interface
// and endpoint descriptors are located on demand so that a malformed element
// only fails the lookup that touches it.
type ConfigDescriptor struct {
	WTotalLength        uint16
	BNumInterfaces      uint8
	BConfigurationValue uint8
	IConfiguration      uint8
	BMAttributes        uint8
	BMaxPower           uint8

	// Raw holds the full configuration tree, wTotalLength bytes.
	Raw []byte
}

// ParseConfigDescriptor parses the 9-byte configuration descriptor header and
// retains the enclosed tree. The tree is truncated to wTotalLength if the
// input is longer.
func ParseConfigDescriptor(raw []byte) (*ConfigDescriptor, error) {
	if len(raw) < ConfigDescLen {
		return nil, fmt.Errorf("config descriptor: %w (%d bytes)", ErrDescriptorShort, len(raw))
	}
	if raw[1] != ConfigDescType {
		return nil, fmt.Errorf("config descriptor: %w (type 0x%02x)", ErrDescriptorType, raw[1])
	}
	c := &ConfigDescriptor{
		WTotalLength:        binary.LittleEndian.Uint16(raw[2:4]),
		BNumInterfaces:      raw[4],
		BConfigurationValue: raw[5],
		IConfiguration:      raw[6],
		BMAttributes:        raw[7],
		BMaxPower:           raw[8],
		Raw:                 raw,
	}
	if int(c.WTotalLength) < len(raw) {
		c.Raw = raw[:c.WTotalLength]
	}
	return c, nil
}

// InterfaceSpan is an interface descriptor located inside a configuration
// tree, together with the descriptor bytes that follow it (its endpoints and
// class-specific descriptors, up to the next interface descriptor or the end
// of the tree).
type InterfaceSpan struct {
	InterfaceDescriptor
	rest []byte
}

// Interface locates the interface descriptor at the given zero-based index
// with the given alternate setting. Indexing is positional, matching the
// order interfaces appear in the tree, not bInterfaceNumber.
func (c *ConfigDescriptor) Interface(index, altSetting uint8) (*InterfaceSpan, error) {
	seen := -1
	for offset := ConfigDescLen; offset+2 <= len(c.Raw); {
		length := int(c.Raw[offset])
		if length < 2 || offset+length > len(c.Raw) {
			return nil, fmt.Errorf("interface %d: %w at offset %d", index, ErrDescriptorShort, offset)
		}
		if c.Raw[offset+1] == InterfaceDescType {
			if length < InterfaceDescLen {
				return nil, fmt.Errorf("interface %d: %w (%d bytes)", index, ErrDescriptorShort, length)
			}
			d := c.Raw[offset:]
			if d[3] == 0 { // bAlternateSetting 0 marks a new interface
				seen++
			}
			if seen == int(index) && d[3] == altSetting {
				span := &InterfaceSpan{
					InterfaceDescriptor: InterfaceDescriptor{
						BInterfaceNumber:   d[2],
						BAlternateSetting:  d[3],
						BNumEndpoints:      d[4],
						BInterfaceClass:    d[5],
						BInterfaceSubClass: d[6],
						BInterfaceProtocol: d[7],
						IInterface:         d[8],
					},
				}
				span.rest = interfaceTail(c.Raw, offset+length)
				return span, nil
			}
		}
		offset += length
	}
	return nil, fmt.Errorf("interface %d alt %d: %w", index, altSetting, ErrNotFound)
}

// interfaceTail returns the descriptor bytes from start up to the next
// interface descriptor or the end of the tree.
func interfaceTail(raw []byte, start int) []byte {
	for offset := start; offset+2 <= len(raw); {
		length := int(raw[offset])
		if length < 2 || offset+length > len(raw) {
			return raw[start:offset]
		}
		if raw[offset+1] == InterfaceDescType {
			return raw[start:offset]
		}
		offset += length
	}
	return raw[start:]
}

// Endpoint locates the endpoint descriptor at the given zero-based index
// within the interface's descriptor span.
func (s *InterfaceSpan) Endpoint(index uint8) (*EndpointDescriptor, error) {
	seen := -1
	for offset := 0; offset+2 <= len(s.rest); {
		length := int(s.rest[offset])
		if length < 2 || offset+length > len(s.rest) {
			return nil, fmt.Errorf("endpoint %d: %w at offset %d", index, ErrDescriptorShort, offset)
		}
		if s.rest[offset+1] == EndpointDescType {
			seen++
			if seen == int(index) {
				if length < EndpointDescLen {
					return nil, fmt.Errorf("endpoint %d: %w (%d bytes)", index, ErrDescriptorShort, length)
				}
				d := s.rest[offset:]
				return &EndpointDescriptor{
					BEndpointAddress: d[2],
					BMAttributes:     d[3],
					WMaxPacketSize:   binary.LittleEndian.Uint16(d[4:6]),
					BInterval:        d[6],
				}, nil
			}
		}
		offset += length
	}
	return nil, fmt.Errorf("endpoint %d: %w", index, ErrNotFound)
}
