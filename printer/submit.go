package printer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/Alia5/PrinterBridge/hoststack"
)

// inflight tracks one submitted transfer: the interface claim it owns and
// the channel its completion is delivered on. Both the timeout path and a
// late completion callback may try to release the claim; the CAS guard
// makes the release happen exactly once, the loser of the race forgoes its
// own call. The channel is per transfer so a completion arriving after a
// timeout can never satisfy a later cycle's wait.
type inflight struct {
	sess     *Session
	done     chan completion
	released atomic.Bool
}

func (d *Driver) releaseOnce(f *inflight) {
	if !f.released.CompareAndSwap(false, true) {
		return
	}
	s := f.sess
	if err := d.stack.InterfaceRelease(s.client, s.dev, s.interfaceNumber); err != nil {
		d.logger.Error("release printer interface",
			"interface", s.interfaceNumber, "error", err)
	}
}

// SubmitPrintJob sends one payload to the bound printer over its bulk OUT
// endpoint and blocks until the transfer reaches a terminal state or the
// configured timeout elapses. Exactly one interface claim/release pair and
// one transfer alloc/free pair happen per invocation; each failure unwinds
// the resources acquired before it.
//
// A timed-out transfer is not cancelled: the stack still owns it and its
// eventual callback frees it.
func (d *Driver) SubmitPrintJob(data []byte) error {
	d.mu.Lock()
	s := d.session
	d.mu.Unlock()

	if !s.usable() {
		d.logger.Error("no printer device available")
		return ErrInvalidState
	}

	if !s.state.CompareAndSwap(stateIdle, stateClaimed) {
		d.logger.Warn("print job rejected, transfer in flight")
		return ErrBusy
	}

	d.logger.Info("starting print job",
		"interface", s.interfaceNumber,
		"endpoint", hexByte(s.bulkOutEP),
		"bytes", len(data))

	if err := d.stack.InterfaceClaim(s.client, s.dev, s.interfaceNumber, 0); err != nil {
		s.state.Store(stateIdle)
		d.logger.Error("claim printer interface", "interface", s.interfaceNumber, "error", err)
		return fmt.Errorf("claim interface %d: %w", s.interfaceNumber, err)
	}

	f := &inflight{sess: s, done: make(chan completion, 1)}

	t, err := d.stack.TransferAlloc(len(data))
	if err != nil {
		d.releaseOnce(f)
		s.state.Store(stateIdle)
		d.logger.Error("allocate transfer", "error", err)
		return fmt.Errorf("allocate transfer: %w", err)
	}

	t.DeviceHandle = s.dev
	t.EndpointAddress = s.bulkOutEP
	t.NumBytes = copy(t.DataBuffer, data)
	t.Callback = d.transferDone
	t.Context = f

	d.rawLogger.Log(false, t.DataBuffer[:t.NumBytes])

	s.state.Store(stateSubmitted)
	if err := d.stack.TransferSubmit(t); err != nil {
		_ = d.stack.TransferFree(t)
		d.releaseOnce(f)
		s.state.Store(stateIdle)
		d.logger.Error("submit transfer", "endpoint", hexByte(s.bulkOutEP), "error", err)
		return fmt.Errorf("submit transfer: %w", err)
	}

	select {
	case c := <-f.done:
		// The callback already freed the transfer and released the
		// interface before signaling.
		s.state.Store(stateIdle)
		d.logger.Info("print job finished", "status", c.status.String(), "bytes", c.actualBytes)
		return nil
	case <-time.After(d.config.SubmitTimeout):
		d.releaseOnce(f)
		s.state.Store(stateIdle)
		d.logger.Error("print transfer timed out", "timeout", d.config.SubmitTimeout)
		return ErrTimeout
	}
}

// transferDone is the completion callback, invoked from the host stack's
// service goroutine once a submitted transfer reaches a terminal state. It
// frees the transfer, releases the interface, and signals the submitter,
// unconditionally of the terminal status.
func (d *Driver) transferDone(t *hoststack.Transfer) {
	if t.Status == hoststack.TransferStatusCompleted {
		d.logger.Info("print transfer completed", "bytes", t.ActualNumBytes)
	} else {
		d.logger.Error("print transfer failed", "status", t.Status.String())
	}

	if err := d.stack.TransferFree(t); err != nil {
		d.logger.Error("free transfer", "error", err)
	}

	f, ok := t.Context.(*inflight)
	if !ok {
		return
	}
	d.releaseOnce(f)

	// Buffered and one-shot: the send never blocks. After a timeout the
	// submitter is gone and the event stays in the abandoned channel.
	f.done <- completion{status: t.Status, actualBytes: t.ActualNumBytes}
}
