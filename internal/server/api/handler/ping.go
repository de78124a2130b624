package handler

import (
	"encoding/json"
	"log/slog"

	"github.com/Alia5/PrinterBridge/apitypes"
	"github.com/Alia5/PrinterBridge/internal/server/api"
)

// Ping returns a handler answering liveness probes with server identity.
func Ping(version string) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		b, err := json.Marshal(apitypes.PingResponse{
			Server:  "PrinterBridge",
			Version: version,
		})
		if err != nil {
			return err
		}
		res.JSON = string(b)
		return nil
	}
}
