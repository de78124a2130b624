package handler

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/Alia5/PrinterBridge/apitypes"
	"github.com/Alia5/PrinterBridge/internal/server/api"
	apierror "github.com/Alia5/PrinterBridge/internal/server/api/error"
	"github.com/Alia5/PrinterBridge/printer"
)

// PrintSubmit returns a handler submitting a print job to the driver.
// The request payload carries job data base64-encoded; the handler blocks
// until the transfer completes or the driver's submit timeout fires.
func PrintSubmit(d *printer.Driver) api.HandlerFunc {
	return func(req *api.Request, res *api.Response, logger *slog.Logger) error {
		if req.Payload == "" {
			return apierror.ErrBadRequest("missing payload")
		}
		var printReq apitypes.PrintRequest
		if err := json.Unmarshal([]byte(req.Payload), &printReq); err != nil {
			return apierror.ErrBadRequest(fmt.Sprintf("invalid JSON payload: %v", err))
		}
		if printReq.Data == "" {
			return apierror.ErrBadRequest("missing job data")
		}
		data, err := base64.StdEncoding.DecodeString(printReq.Data)
		if err != nil {
			return apierror.ErrBadRequest(fmt.Sprintf("invalid base64 job data: %v", err))
		}
		if len(data) == 0 {
			return apierror.ErrBadRequest("empty job data")
		}

		if err := d.SubmitPrintJob(data); err != nil {
			switch {
			case errors.Is(err, printer.ErrInvalidState):
				return apierror.ErrNotFound("no printer qualified")
			case errors.Is(err, printer.ErrBusy):
				return apierror.ErrConflict("print transfer already in flight")
			case errors.Is(err, printer.ErrTimeout):
				return apierror.ErrTimeout("print transfer timed out")
			default:
				return apierror.ErrInternal(fmt.Sprintf("submit failed: %v", err))
			}
		}

		b, err := json.Marshal(apitypes.PrintResponse{
			Name:  printReq.Name,
			Bytes: len(data),
		})
		if err != nil {
			return err
		}
		res.JSON = string(b)
		return nil
	}
}
