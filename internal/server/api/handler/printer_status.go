package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/Alia5/PrinterBridge/apitypes"
	"github.com/Alia5/PrinterBridge/internal/server/api"
	"github.com/Alia5/PrinterBridge/printer"
)

// PrinterStatus returns a handler reporting the driver's bound session.
// Error logging is centralized in the API server.
func PrinterStatus(d *printer.Driver) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		var payload apitypes.PrinterStatusResponse
		if info, ok := d.Info(); ok {
			payload = apitypes.PrinterStatusResponse{
				Qualified:  true,
				DeviceAddr: info.DeviceAddr,
				Interface:  info.InterfaceNumber,
				BulkOut:    fmt.Sprintf("0x%02x", info.BulkOutEndpoint),
				Protocol:   info.Protocol.String(),
				Busy:       info.Busy,
			}
			if info.Bidirectional() {
				payload.BulkIn = fmt.Sprintf("0x%02x", info.BulkInEndpoint)
			}
		}
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		res.JSON = string(b)
		return nil
	}
}
