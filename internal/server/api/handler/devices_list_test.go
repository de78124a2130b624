package handler_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Alia5/PrinterBridge/apiclient"
	"github.com/Alia5/PrinterBridge/internal/server/api"
	"github.com/Alia5/PrinterBridge/internal/server/api/handler"
	handlerTest "github.com/Alia5/PrinterBridge/internal/testing"
	"github.com/Alia5/PrinterBridge/virtualhost"
)

func TestDevicesList(t *testing.T) {
	tests := []struct {
		name             string
		setup            func(t *testing.T, apiSrv *api.Server)
		expectedResponse string
	}{
		{
			name:             "empty list",
			setup:            nil,
			expectedResponse: `{"devices":[]}`,
		},
		{
			name: "list with one device",
			setup: func(t *testing.T, apiSrv *api.Server) {
				if _, err := apiSrv.Stack().Attach(virtualhost.NewPrinter(virtualhost.PrinterOptions{})); err != nil {
					t.Fatalf("attach failed: %v", err)
				}
			},
			expectedResponse: `{"devices":[{"addr":1}]}`,
		},
		{
			name: "list with two devices",
			setup: func(t *testing.T, apiSrv *api.Server) {
				for range 2 {
					if _, err := apiSrv.Stack().Attach(virtualhost.NewPrinter(virtualhost.PrinterOptions{})); err != nil {
						t.Fatalf("attach failed: %v", err)
					}
				}
			},
			expectedResponse: `{"devices":[{"addr":1},{"addr":2}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, apiSrv, done := handlerTest.StartAPIServer(t, func(r *api.Router, apiSrv *api.Server) {
				r.Register("devices/list", handler.DevicesList(apiSrv.Stack()))
			})
			defer done()

			if tt.setup != nil {
				tt.setup(t, apiSrv)
			}
			c := apiclient.NewTransport(addr)
			line, err := c.Do("devices/list", nil, nil)
			assert.NoError(t, err)
			assert.Equal(t, tt.expectedResponse, line)
		})
	}
}
