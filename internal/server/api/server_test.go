package api_test

import (
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alia5/PrinterBridge/apiclient"
	"github.com/Alia5/PrinterBridge/apitypes"
	"github.com/Alia5/PrinterBridge/internal/log"
	"github.com/Alia5/PrinterBridge/internal/server/api"
	"github.com/Alia5/PrinterBridge/printer"
	"github.com/Alia5/PrinterBridge/virtualhost"
)

func startServer(t *testing.T, cfg api.ServerConfig) (*api.Server, string) {
	t.Helper()

	stack := virtualhost.New(slog.Default())
	go func() { _ = stack.Serve() }()
	select {
	case <-stack.Ready():
	case <-time.After(time.Second):
		t.Fatalf("stack not ready")
	}
	t.Cleanup(func() { _ = stack.Close() })

	driver := printer.New(stack, printer.Config{}, slog.Default(), log.NewRaw(nil))
	cfg.Addr = "127.0.0.1:0"
	srv, err := api.New(driver, stack, cfg, slog.Default())
	require.NoError(t, err)
	srv.Router().Register("echo", func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		res.JSON = `{"payload":"` + req.Payload + `"}`
		return nil
	})
	require.NoError(t, srv.Start())
	t.Cleanup(srv.Close)
	return srv, srv.Addr()
}

func TestServerRouting(t *testing.T) {
	_, addr := startServer(t, api.ServerConfig{})
	tr := apiclient.NewTransport(addr)

	tests := []struct {
		name     string
		path     string
		payload  any
		expected string
	}{
		{name: "known path", path: "echo", payload: "hi", expected: `{"payload":"hi"}`},
		{name: "path is case insensitive", path: "ECHO", payload: nil, expected: `{"payload":""}`},
		{name: "unknown path", path: "nope", payload: nil, expected: `{"status":404,"title":"Not Found","detail":"unknown path: nope"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			line, err := tr.Do(tt.path, tt.payload, nil)
			assert.NoError(t, err)
			assert.Equal(t, tt.expected, line)
		})
	}
}

func TestServerEmptyRequest(t *testing.T) {
	_, addr := startServer(t, api.ServerConfig{})

	c, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	defer c.Close()
	_, err = c.Write([]byte{0x00})
	require.NoError(t, err)

	buf := make([]byte, 256)
	_ = c.SetReadDeadline(time.Now().Add(time.Second))
	n, _ := c.Read(buf)
	assert.Contains(t, string(buf[:n]), `"status":400`)
}

func TestServerPasswordAuth(t *testing.T) {
	_, addr := startServer(t, api.ServerConfig{Password: "hunter2"})

	t.Run("authenticated round trip", func(t *testing.T) {
		tr := apiclient.NewTransportWithPassword(addr, "hunter2")
		line, err := tr.Do("echo", "secret", nil)
		assert.NoError(t, err)
		assert.Equal(t, `{"payload":"secret"}`, line)
	})

	t.Run("wrong password", func(t *testing.T) {
		tr := apiclient.NewTransportWithPassword(addr, "letmein")
		_, err := tr.Do("echo", nil, nil)
		assert.Error(t, err)
		var apiErr *apitypes.ApiError
		if assert.ErrorAs(t, err, &apiErr) {
			assert.Equal(t, 401, apiErr.Status)
		}
	})

	t.Run("unauthenticated rejected", func(t *testing.T) {
		tr := apiclient.NewTransport(addr)
		line, err := tr.Do("echo", nil, nil)
		assert.NoError(t, err)
		assert.Contains(t, line, `"status":401`)
	})
}
