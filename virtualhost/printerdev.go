package virtualhost

import (
	"io"
	"sync"

	"github.com/Alia5/PrinterBridge/hoststack"
	"github.com/Alia5/PrinterBridge/usb"
)

// Endpoint addresses used by the canned printer device.
const (
	printerBulkOutEP = 0x01
	printerBulkInEP  = 0x82
)

// PrinterOptions configures a virtual printer device.
type PrinterOptions struct {
	// Protocol is the bInterfaceProtocol byte; defaults to unidirectional.
	Protocol uint8
	// Bidirectional adds a bulk IN status endpoint to the interface.
	Bidirectional bool
	// Spool receives every payload printed to the device, in order.
	// May be nil; payloads are then kept in memory only.
	Spool io.Writer
}

// Printer is a virtual printer-class device: one interface (class 0x07),
// a mandatory bulk OUT endpoint and an optional bulk IN endpoint. Payloads
// written to the OUT endpoint are spooled.
type Printer struct {
	opts PrinterOptions
	desc []byte

	mu      sync.Mutex
	spooled []byte
	jobs    int
}

// NewPrinter creates a virtual printer device.
func NewPrinter(opts PrinterOptions) *Printer {
	if opts.Protocol == 0 {
		if opts.Bidirectional {
			opts.Protocol = usb.PrinterProtocolBidirectional
		} else {
			opts.Protocol = usb.PrinterProtocolUnidirectional
		}
	}
	endpoints := []usb.EndpointDescriptor{{
		BEndpointAddress: printerBulkOutEP,
		BMAttributes:     usb.EndpointXferBulk,
		WMaxPacketSize:   64,
	}}
	numEndpoints := uint8(1)
	if opts.Bidirectional {
		endpoints = append(endpoints, usb.EndpointDescriptor{
			BEndpointAddress: printerBulkInEP,
			BMAttributes:     usb.EndpointXferBulk,
			WMaxPacketSize:   64,
		})
		numEndpoints = 2
	}
	desc := usb.BuildConfigDescriptor(
		usb.ConfigHeader{
			BConfigurationValue: 1,
			BMAttributes:        0x80, // bus powered
			BMaxPower:           50,   // 100 mA
		},
		[]usb.InterfaceConfig{{
			Descriptor: usb.InterfaceDescriptor{
				BInterfaceNumber:   0,
				BNumEndpoints:      numEndpoints,
				BInterfaceClass:    usb.ClassPrinter,
				BInterfaceSubClass: usb.PrinterSubclass,
				BInterfaceProtocol: opts.Protocol,
			},
			Endpoints: endpoints,
		}},
	)
	return &Printer{opts: opts, desc: desc}
}

// ConfigDescriptor implements Device.
func (p *Printer) ConfigDescriptor() []byte { return p.desc }

// BulkOut implements Device. Data sent to the OUT endpoint is spooled; any
// other endpoint stalls.
func (p *Printer) BulkOut(ep uint8, data []byte) (int, hoststack.TransferStatus) {
	if ep != printerBulkOutEP {
		return 0, hoststack.TransferStatusStall
	}
	p.mu.Lock()
	p.spooled = append(p.spooled, data...)
	p.jobs++
	p.mu.Unlock()
	if p.opts.Spool != nil {
		_, _ = p.opts.Spool.Write(data)
	}
	return len(data), hoststack.TransferStatusCompleted
}

// Spooled returns a copy of all bytes printed so far.
func (p *Printer) Spooled() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]byte, len(p.spooled))
	copy(out, p.spooled)
	return out
}

// Jobs returns the number of bulk OUT transfers handled.
func (p *Printer) Jobs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.jobs
}
