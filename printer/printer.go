// Package printer implements the USB printer-class host driver: qualifying
// enumerated devices by walking their configuration descriptors, and driving
// outbound bulk print transfers through the host stack with completion
// synchronization.
package printer

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Alia5/PrinterBridge/hoststack"
	"github.com/Alia5/PrinterBridge/internal/log"
	"github.com/Alia5/PrinterBridge/usb"
)

// Protocol is the printer interface protocol byte (bInterfaceProtocol).
type Protocol uint8

const (
	ProtocolUnknown        Protocol = 0
	ProtocolUnidirectional Protocol = usb.PrinterProtocolUnidirectional
	ProtocolBidirectional  Protocol = usb.PrinterProtocolBidirectional
	ProtocolIEEE1284       Protocol = usb.PrinterProtocol1284
)

func (p Protocol) String() string {
	switch p {
	case ProtocolUnidirectional:
		return "unidirectional"
	case ProtocolBidirectional:
		return "bidirectional"
	case ProtocolIEEE1284:
		return "IEEE 1284.4"
	default:
		return "unknown"
	}
}

var (
	// ErrInvalidState is returned when no usable printer session is bound.
	ErrInvalidState = errors.New("no usable printer session")
	// ErrBusy is returned when a print transfer is already in flight.
	ErrBusy = errors.New("print transfer already in flight")
	// ErrTimeout is returned when the completion signal was not received
	// within the configured bound. The underlying transfer is not cancelled.
	ErrTimeout = errors.New("print transfer timed out")
)

// DefaultSubmitTimeout bounds the wait for a print transfer completion.
const DefaultSubmitTimeout = 5 * time.Second

// Config represents the printer driver configuration.
type Config struct {
	SubmitTimeout time.Duration `help:"Upper bound to wait for a print transfer to complete" default:"5s" env:"PRINTERBRIDGE_SUBMIT_TIMEOUT"`
}

// Driver owns the printer session and runs the qualification and transfer
// protocols against the host stack.
type Driver struct {
	stack     hoststack.Stack
	config    Config
	logger    *slog.Logger
	rawLogger log.RawLogger

	mu      sync.Mutex
	session *Session
}

// New creates a printer driver on top of the given host stack.
func New(stack hoststack.Stack, config Config, logger *slog.Logger, rawLogger log.RawLogger) *Driver {
	if config.SubmitTimeout <= 0 {
		config.SubmitTimeout = DefaultSubmitTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	if rawLogger == nil {
		rawLogger = log.NewRaw(nil)
	}
	return &Driver{
		stack:     stack,
		config:    config,
		logger:    logger,
		rawLogger: rawLogger,
	}
}

// Info returns a snapshot of the bound session. ok is false when no usable
// session exists.
func (d *Driver) Info() (info Info, ok bool) {
	d.mu.Lock()
	s := d.session
	d.mu.Unlock()
	if !s.usable() {
		return Info{}, false
	}
	return Info{
		DeviceAddr:      s.dev.Addr(),
		InterfaceNumber: s.interfaceNumber,
		BulkOutEndpoint: s.bulkOutEP,
		BulkInEndpoint:  s.bulkInEP,
		Protocol:        s.protocol,
		Busy:            s.state.Load() != stateIdle,
	}, true
}

// Invalidate drops the bound session, typically on device disconnect. It is
// refused while a transfer is in flight.
func (d *Driver) Invalidate() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.session == nil {
		return true
	}
	if d.session.state.Load() != stateIdle {
		d.logger.Warn("session busy, not invalidating")
		return false
	}
	d.session = nil
	d.logger.Info("printer session invalidated")
	return true
}
