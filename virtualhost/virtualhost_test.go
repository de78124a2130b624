package virtualhost_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/PrinterBridge/hoststack"
	"github.com/Alia5/PrinterBridge/virtualhost"
)

func startStack(t *testing.T) *virtualhost.Stack {
	t.Helper()
	s := virtualhost.New(nil)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve() }()
	select {
	case <-s.Ready():
	case err := <-errCh:
		t.Fatalf("stack exited early: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatal("stack did not become ready")
	}
	t.Cleanup(func() {
		require.NoError(t, s.Close())
		select {
		case err := <-errCh:
			require.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Fatal("stack did not stop")
		}
	})
	return s
}

func stackCode(t *testing.T, err error) hoststack.Code {
	t.Helper()
	var se *hoststack.Error
	require.ErrorAs(t, err, &se)
	return se.Code
}

// submitSync submits one bulk OUT transfer and waits for its completion.
func submitSync(t *testing.T, s *virtualhost.Stack, dev hoststack.DeviceHandle, ep uint8, data []byte) *hoststack.Transfer {
	t.Helper()
	tr, err := s.TransferAlloc(len(data))
	require.NoError(t, err)
	done := make(chan struct{})
	tr.DeviceHandle = dev
	tr.EndpointAddress = ep
	tr.NumBytes = copy(tr.DataBuffer, data)
	tr.Callback = func(*hoststack.Transfer) { close(done) }
	require.NoError(t, s.TransferSubmit(tr))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("transfer did not complete")
	}
	return tr
}

func TestAttachDetachEvents(t *testing.T) {
	s := startStack(t)

	client, err := s.RegisterClient("driver")
	require.NoError(t, err)

	h, err := s.Attach(virtualhost.NewPrinter(virtualhost.PrinterOptions{}))
	require.NoError(t, err)
	assert.Equal(t, uint8(1), h.Addr())
	assert.Equal(t, []uint8{1}, s.DeviceAddrs())

	ev := <-client.Events()
	assert.Equal(t, hoststack.EventNewDevice, ev.Type)
	assert.Equal(t, uint8(1), ev.Device.Addr())

	require.NoError(t, s.Detach(h))
	ev = <-client.Events()
	assert.Equal(t, hoststack.EventDeviceGone, ev.Type)
	assert.Empty(t, s.DeviceAddrs())

	err = s.Detach(h)
	assert.Equal(t, hoststack.CodeNotFound, stackCode(t, err))
}

func TestLateClientSeesAttachedDevices(t *testing.T) {
	s := startStack(t)

	_, err := s.Attach(virtualhost.NewPrinter(virtualhost.PrinterOptions{}))
	require.NoError(t, err)
	_, err = s.Attach(virtualhost.NewPrinter(virtualhost.PrinterOptions{}))
	require.NoError(t, err)

	client, err := s.RegisterClient("latecomer")
	require.NoError(t, err)

	addrs := []uint8{(<-client.Events()).Device.Addr(), (<-client.Events()).Device.Addr()}
	assert.ElementsMatch(t, []uint8{1, 2}, addrs)
}

func TestRegisterClientDuplicateName(t *testing.T) {
	s := startStack(t)

	_, err := s.RegisterClient("driver")
	require.NoError(t, err)
	_, err = s.RegisterClient("driver")
	assert.Error(t, err)
}

func TestConfigDescriptorRoundTrip(t *testing.T) {
	s := startStack(t)

	h, err := s.Attach(virtualhost.NewPrinter(virtualhost.PrinterOptions{Bidirectional: true}))
	require.NoError(t, err)

	config, err := s.ActiveConfigDescriptor(h)
	require.NoError(t, err)
	require.Equal(t, uint8(1), config.BNumInterfaces)

	span, err := config.Interface(0, 0)
	require.NoError(t, err)
	assert.Equal(t, uint8(2), span.BNumEndpoints)

	require.NoError(t, s.Detach(h))
	_, err = s.ActiveConfigDescriptor(h)
	assert.Equal(t, hoststack.CodeNoDevice, stackCode(t, err))
}

func TestInterfaceClaimRelease(t *testing.T) {
	s := startStack(t)

	a, err := s.RegisterClient("a")
	require.NoError(t, err)
	b, err := s.RegisterClient("b")
	require.NoError(t, err)

	h, err := s.Attach(virtualhost.NewPrinter(virtualhost.PrinterOptions{}))
	require.NoError(t, err)

	require.NoError(t, s.InterfaceClaim(a, h, 0, 0))

	// Claimed interfaces are exclusive.
	err = s.InterfaceClaim(b, h, 0, 0)
	assert.Equal(t, hoststack.CodeBusy, stackCode(t, err))

	// Only the owner may release.
	err = s.InterfaceRelease(b, h, 0)
	assert.Equal(t, hoststack.CodeInvalidState, stackCode(t, err))

	require.NoError(t, s.InterfaceRelease(a, h, 0))
	require.NoError(t, s.InterfaceClaim(b, h, 0, 0))
	require.NoError(t, s.InterfaceRelease(b, h, 0))

	// Releasing an unclaimed interface fails.
	err = s.InterfaceRelease(a, h, 0)
	assert.Equal(t, hoststack.CodeInvalidState, stackCode(t, err))

	// Alternate settings are not implemented by the virtual bus.
	err = s.InterfaceClaim(a, h, 0, 1)
	assert.Equal(t, hoststack.CodeNotSupported, stackCode(t, err))
}

func TestBulkOutTransfer(t *testing.T) {
	s := startStack(t)

	var spool bytes.Buffer
	p := virtualhost.NewPrinter(virtualhost.PrinterOptions{Spool: &spool})
	h, err := s.Attach(p)
	require.NoError(t, err)

	payload := []byte("\x1b%-12345X@PJL\r\n")
	tr := submitSync(t, s, h, 0x01, payload)

	assert.Equal(t, hoststack.TransferStatusCompleted, tr.Status)
	assert.Equal(t, len(payload), tr.ActualNumBytes)
	assert.Equal(t, payload, p.Spooled())
	assert.Equal(t, payload, spool.Bytes())
	assert.Equal(t, 1, p.Jobs())

	require.NoError(t, s.TransferFree(tr))
}

func TestBulkOutWrongEndpointStalls(t *testing.T) {
	s := startStack(t)

	p := virtualhost.NewPrinter(virtualhost.PrinterOptions{})
	h, err := s.Attach(p)
	require.NoError(t, err)

	tr := submitSync(t, s, h, 0x03, []byte("misdirected"))
	assert.Equal(t, hoststack.TransferStatusStall, tr.Status)
	assert.Equal(t, 0, tr.ActualNumBytes)
	assert.Equal(t, 0, p.Jobs())
	require.NoError(t, s.TransferFree(tr))
}

func TestTransferToDetachedDevice(t *testing.T) {
	s := startStack(t)

	h, err := s.Attach(virtualhost.NewPrinter(virtualhost.PrinterOptions{}))
	require.NoError(t, err)
	require.NoError(t, s.Detach(h))

	tr := submitSync(t, s, h, 0x01, []byte("ghost"))
	assert.Equal(t, hoststack.TransferStatusNoDevice, tr.Status)
	require.NoError(t, s.TransferFree(tr))
}

func TestTransferSubmitValidation(t *testing.T) {
	s := startStack(t)

	h, err := s.Attach(virtualhost.NewPrinter(virtualhost.PrinterOptions{}))
	require.NoError(t, err)

	err = s.TransferSubmit(nil)
	assert.Equal(t, hoststack.CodeInvalidArg, stackCode(t, err))

	// IN endpoints are not supported by the virtual bus.
	tr, err := s.TransferAlloc(4)
	require.NoError(t, err)
	tr.DeviceHandle = h
	tr.EndpointAddress = 0x82
	tr.Callback = func(*hoststack.Transfer) {}
	err = s.TransferSubmit(tr)
	assert.Equal(t, hoststack.CodeNotSupported, stackCode(t, err))

	// NumBytes beyond the buffer is rejected.
	tr.EndpointAddress = 0x01
	tr.NumBytes = 5
	err = s.TransferSubmit(tr)
	assert.Equal(t, hoststack.CodeInvalidArg, stackCode(t, err))

	// Submitting a freed transfer is invalid.
	require.NoError(t, s.TransferFree(tr))
	tr.NumBytes = 4
	err = s.TransferSubmit(tr)
	assert.Equal(t, hoststack.CodeInvalidState, stackCode(t, err))
}

func TestTransferAllocFree(t *testing.T) {
	s := startStack(t)

	_, err := s.TransferAlloc(-1)
	assert.Equal(t, hoststack.CodeInvalidArg, stackCode(t, err))

	tr, err := s.TransferAlloc(16)
	require.NoError(t, err)
	assert.Len(t, tr.DataBuffer, 16)

	require.NoError(t, s.TransferFree(tr))
	err = s.TransferFree(tr)
	assert.Equal(t, hoststack.CodeInvalidState, stackCode(t, err))
}

func TestSequentialJobsAppendToSpool(t *testing.T) {
	s := startStack(t)

	p := virtualhost.NewPrinter(virtualhost.PrinterOptions{})
	h, err := s.Attach(p)
	require.NoError(t, err)

	for _, chunk := range []string{"page one\x0c", "page two\x0c"} {
		tr := submitSync(t, s, h, 0x01, []byte(chunk))
		assert.Equal(t, hoststack.TransferStatusCompleted, tr.Status)
		require.NoError(t, s.TransferFree(tr))
	}
	assert.Equal(t, []byte("page one\x0cpage two\x0c"), p.Spooled())
	assert.Equal(t, 2, p.Jobs())
}
