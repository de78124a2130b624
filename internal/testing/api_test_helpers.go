package testing

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/Alia5/PrinterBridge/internal/log"
	"github.com/Alia5/PrinterBridge/internal/server/api"
	"github.com/Alia5/PrinterBridge/printer"
	"github.com/Alia5/PrinterBridge/virtualhost"
)

// StartStack starts a virtual host stack and blocks until it is ready.
// Calls t.Fatal if the stack does not come up within two seconds.
func StartStack(t *testing.T) (stack *virtualhost.Stack, done func()) {
	t.Helper()

	stack = virtualhost.New(slog.Default())
	errCh := make(chan error, 1)
	go func() {
		errCh <- stack.Serve()
	}()
	select {
	case <-stack.Ready():
		// ok
	case err := <-errCh:
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		t.Fatalf("host stack failed to start: %v", err)
	case <-time.After(2 * time.Second):
		t.Fatalf("host stack did not become ready")
	}
	return stack, func() { _ = stack.Close() }
}

// StartAPIServer starts a host stack, a printer driver bound to it, and an
// API server on a free port, then calls register to let the caller hook up
// the handlers needed for the test. Returns the address and a cleanup
// function.
func StartAPIServer(t *testing.T, register func(r *api.Router, apiSrv *api.Server)) (addr string, apiSrv *api.Server, done func()) {
	t.Helper()

	stack, stopStack := StartStack(t)

	driver := printer.New(stack, printer.Config{SubmitTimeout: time.Second}, slog.Default(), log.NewRaw(nil))

	apiSrv, err := api.New(driver, stack, api.ServerConfig{Addr: "127.0.0.1:0"}, slog.Default())
	if err != nil {
		t.Fatalf("api create failed: %v", err)
	}
	if register != nil {
		register(apiSrv.Router(), apiSrv)
	}
	if err := apiSrv.Start(); err != nil {
		t.Fatalf("api start failed: %v", err)
	}

	done = func() {
		apiSrv.Close()
		stopStack()
		time.Sleep(10 * time.Millisecond)
	}
	return apiSrv.Addr(), apiSrv, done
}

// QualifyPrinter attaches a virtual printer to the stack and runs it through
// driver qualification. Fails the test if the printer is not accepted.
func QualifyPrinter(t *testing.T, apiSrv *api.Server, opts virtualhost.PrinterOptions) *virtualhost.Printer {
	t.Helper()

	dev := virtualhost.NewPrinter(opts)
	h, err := apiSrv.Stack().Attach(dev)
	if err != nil {
		t.Fatalf("attach failed: %v", err)
	}
	client, err := apiSrv.Stack().RegisterClient("test-driver")
	if err != nil {
		t.Fatalf("register client failed: %v", err)
	}
	if !apiSrv.Driver().Qualify(h, client) {
		t.Fatalf("printer did not qualify")
	}
	return dev
}
