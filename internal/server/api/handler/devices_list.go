package handler

import (
	"encoding/json"
	"log/slog"

	"github.com/Alia5/PrinterBridge/apitypes"
	"github.com/Alia5/PrinterBridge/internal/server/api"
	"github.com/Alia5/PrinterBridge/virtualhost"
)

// DevicesList returns a handler listing devices attached to the host stack.
func DevicesList(s *virtualhost.Stack) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		addrs := s.DeviceAddrs()
		payload := apitypes.DevicesListResponse{Devices: make([]apitypes.Device, 0, len(addrs))}
		for _, addr := range addrs {
			payload.Devices = append(payload.Devices, apitypes.Device{Addr: addr})
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		res.JSON = string(b)
		return nil
	}
}
