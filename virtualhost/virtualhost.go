// Package virtualhost provides an in-process USB host stack backed by
// virtual devices. It implements hoststack.Stack: descriptor access,
// interface claim/release, and asynchronous bulk OUT transfers whose
// completion callbacks run on the stack's own service goroutine.
package virtualhost

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/Alia5/PrinterBridge/hoststack"
	"github.com/Alia5/PrinterBridge/usb"
)

// Device is a virtual USB device attachable to the stack.
type Device interface {
	// ConfigDescriptor returns the device's active configuration
	// descriptor tree.
	ConfigDescriptor() []byte

	// BulkOut handles a bulk OUT transfer to the given endpoint address,
	// returning the number of bytes consumed and the terminal status.
	BulkOut(ep uint8, data []byte) (int, hoststack.TransferStatus)
}

// attachedDevice is the stack-owned record behind a hoststack.DeviceHandle.
type attachedDevice struct {
	dev  Device
	addr uint8
	gone atomic.Bool
}

func (d *attachedDevice) Addr() uint8 { return d.addr }

// Client is a registered host-stack client. Device events are delivered on
// its channel; claim/release/submit calls are keyed by it.
type Client struct {
	stack  *Stack
	name   string
	events chan hoststack.DeviceEvent
}

func (c *Client) Name() string { return c.name }

// Events returns the channel device attach/detach events are delivered on.
// Events are dropped, not blocked on, when the client does not keep up.
func (c *Client) Events() <-chan hoststack.DeviceEvent { return c.events }

type claimKey struct {
	addr  uint8
	iface uint8
}

// Stack is an in-memory USB host stack with attachable virtual devices.
type Stack struct {
	logger *slog.Logger

	mu       sync.Mutex
	devices  map[uint8]*attachedDevice
	clients  map[string]*Client
	claims   map[claimKey]*Client
	alloced  map[*hoststack.Transfer]struct{}
	nextAddr uint8

	jobs      chan *hoststack.Transfer
	ready     chan struct{}
	readyOnce sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

// New creates a virtual host stack. Serve must be called before transfers
// complete.
func New(logger *slog.Logger) *Stack {
	if logger == nil {
		logger = slog.Default()
	}
	return &Stack{
		logger:   logger,
		devices:  make(map[uint8]*attachedDevice),
		clients:  make(map[string]*Client),
		claims:   make(map[claimKey]*Client),
		alloced:  make(map[*hoststack.Transfer]struct{}),
		nextAddr: 1,
		jobs:     make(chan *hoststack.Transfer, 16),
		ready:    make(chan struct{}),
		closed:   make(chan struct{}),
	}
}

// Ready is closed once the service loop is running. Callers must not issue
// transfers before it signals.
func (s *Stack) Ready() <-chan struct{} { return s.ready }

// Serve runs the stack's service loop, dispatching submitted transfers to
// device handlers and invoking completion callbacks. It returns after Close.
func (s *Stack) Serve() error {
	s.logger.Info("virtual host stack started")
	s.readyOnce.Do(func() { close(s.ready) })
	for {
		select {
		case <-s.closed:
			s.logger.Info("virtual host stack stopped")
			return nil
		case t := <-s.jobs:
			s.execute(t)
		}
	}
}

// Close stops the service loop. Transfers still queued are abandoned.
func (s *Stack) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

// RegisterClient registers a named client context with the stack.
func (s *Stack) RegisterClient(name string) (*Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.clients[name]; ok {
		return nil, fmt.Errorf("client %q already registered", name)
	}
	c := &Client{stack: s, name: name, events: make(chan hoststack.DeviceEvent, 8)}
	s.clients[name] = c

	// Replay devices already attached so late clients see them.
	for _, d := range s.devices {
		select {
		case c.events <- hoststack.DeviceEvent{Type: hoststack.EventNewDevice, Device: d}:
		default:
		}
	}
	return c, nil
}

// Attach adds a virtual device to the bus, assigns it an address, and
// notifies registered clients.
func (s *Stack) Attach(dev Device) (hoststack.DeviceHandle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.nextAddr == 0 {
		return nil, fmt.Errorf("no addresses available")
	}
	d := &attachedDevice{dev: dev, addr: s.nextAddr}
	s.nextAddr++
	s.devices[d.addr] = d
	s.logger.Info("device attached", "addr", d.addr)
	s.notifyLocked(hoststack.DeviceEvent{Type: hoststack.EventNewDevice, Device: d})
	return d, nil
}

// Detach removes a device from the bus. Outstanding transfers targeting it
// complete with a no-device status.
func (s *Stack) Detach(h hoststack.DeviceHandle) error {
	d, ok := h.(*attachedDevice)
	if !ok {
		return hoststack.Errf("detach", hoststack.CodeInvalidArg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.devices[d.addr]; !ok {
		return hoststack.Errf("detach", hoststack.CodeNotFound)
	}
	d.gone.Store(true)
	delete(s.devices, d.addr)
	s.logger.Info("device detached", "addr", d.addr)
	s.notifyLocked(hoststack.DeviceEvent{Type: hoststack.EventDeviceGone, Device: d})
	return nil
}

// DeviceAddrs returns the addresses of all currently attached devices in
// ascending order.
func (s *Stack) DeviceAddrs() []uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	addrs := make([]uint8, 0, len(s.devices))
	for addr := range s.devices {
		addrs = append(addrs, addr)
	}
	slices.Sort(addrs)
	return addrs
}

func (s *Stack) notifyLocked(ev hoststack.DeviceEvent) {
	for _, c := range s.clients {
		select {
		case c.events <- ev:
		default:
			s.logger.Warn("client event dropped", "client", c.name)
		}
	}
}

// ActiveConfigDescriptor implements hoststack.Stack.
func (s *Stack) ActiveConfigDescriptor(dev hoststack.DeviceHandle) (*usb.ConfigDescriptor, error) {
	d, ok := dev.(*attachedDevice)
	if !ok || d.gone.Load() {
		return nil, hoststack.Errf("get config descriptor", hoststack.CodeNoDevice)
	}
	config, err := usb.ParseConfigDescriptor(d.dev.ConfigDescriptor())
	if err != nil {
		return nil, fmt.Errorf("get config descriptor: %w", err)
	}
	return config, nil
}

// InterfaceClaim implements hoststack.Stack.
func (s *Stack) InterfaceClaim(client hoststack.ClientHandle, dev hoststack.DeviceHandle, ifaceNum, altSetting uint8) error {
	c, ok := client.(*Client)
	if !ok || c.stack != s {
		return hoststack.Errf("interface claim", hoststack.CodeInvalidArg)
	}
	d, ok := dev.(*attachedDevice)
	if !ok || d.gone.Load() {
		return hoststack.Errf("interface claim", hoststack.CodeNoDevice)
	}
	if altSetting != 0 {
		return hoststack.Errf("interface claim", hoststack.CodeNotSupported)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey{addr: d.addr, iface: ifaceNum}
	if _, claimed := s.claims[key]; claimed {
		return hoststack.Errf("interface claim", hoststack.CodeBusy)
	}
	s.claims[key] = c
	return nil
}

// InterfaceRelease implements hoststack.Stack.
func (s *Stack) InterfaceRelease(client hoststack.ClientHandle, dev hoststack.DeviceHandle, ifaceNum uint8) error {
	c, ok := client.(*Client)
	if !ok {
		return hoststack.Errf("interface release", hoststack.CodeInvalidArg)
	}
	d, ok := dev.(*attachedDevice)
	if !ok {
		return hoststack.Errf("interface release", hoststack.CodeInvalidArg)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := claimKey{addr: d.addr, iface: ifaceNum}
	owner, claimed := s.claims[key]
	if !claimed || owner != c {
		return hoststack.Errf("interface release", hoststack.CodeInvalidState)
	}
	delete(s.claims, key)
	return nil
}

// TransferAlloc implements hoststack.Stack.
func (s *Stack) TransferAlloc(size int) (*hoststack.Transfer, error) {
	if size < 0 {
		return nil, hoststack.Errf("transfer alloc", hoststack.CodeInvalidArg)
	}
	t := &hoststack.Transfer{DataBuffer: make([]byte, size)}
	s.mu.Lock()
	s.alloced[t] = struct{}{}
	s.mu.Unlock()
	return t, nil
}

// TransferFree implements hoststack.Stack. Freeing a transfer that is not
// allocated (or freeing twice) is an invalid-state error.
func (s *Stack) TransferFree(t *hoststack.Transfer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.alloced[t]; !ok {
		return hoststack.Errf("transfer free", hoststack.CodeInvalidState)
	}
	delete(s.alloced, t)
	return nil
}

// TransferSubmit implements hoststack.Stack. Only bulk OUT endpoints are
// supported by the virtual bus.
func (s *Stack) TransferSubmit(t *hoststack.Transfer) error {
	if t == nil || t.Callback == nil || t.DeviceHandle == nil {
		return hoststack.Errf("transfer submit", hoststack.CodeInvalidArg)
	}
	if t.EndpointAddress&usb.EndpointDirIn != 0 {
		return hoststack.Errf("transfer submit", hoststack.CodeNotSupported)
	}
	if t.NumBytes > len(t.DataBuffer) {
		return hoststack.Errf("transfer submit", hoststack.CodeInvalidArg)
	}
	s.mu.Lock()
	_, ok := s.alloced[t]
	s.mu.Unlock()
	if !ok {
		return hoststack.Errf("transfer submit", hoststack.CodeInvalidState)
	}
	select {
	case s.jobs <- t:
		return nil
	case <-s.closed:
		return hoststack.Errf("transfer submit", hoststack.CodeInvalidState)
	}
}

// execute runs one transfer against its target device and invokes the
// completion callback.
func (s *Stack) execute(t *hoststack.Transfer) {
	d, ok := t.DeviceHandle.(*attachedDevice)
	if !ok || d.gone.Load() {
		t.Status = hoststack.TransferStatusNoDevice
		t.ActualNumBytes = 0
		t.Callback(t)
		return
	}
	n, status := d.dev.BulkOut(t.EndpointAddress, t.DataBuffer[:t.NumBytes])
	t.Status = status
	t.ActualNumBytes = n
	t.Callback(t)
}
