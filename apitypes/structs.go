package apitypes

import "fmt"

// ApiError represents an RFC 7807 (problem+json) error response.
type ApiError struct {
	// Status is the HTTP-style status code (e.g., 400, 404, 500)
	Status int `json:"status"`
	// Title is a short, human-readable summary of the problem type
	Title string `json:"title"`
	// Detail is a human-readable explanation specific to this occurrence
	Detail string `json:"detail"`
}

func (e ApiError) Error() string {
	if e.Status == 0 && e.Title == "" {
		return "unknown error"
	}
	if e.Status == 0 {
		return fmt.Sprintf("%s: %s", e.Title, e.Detail)
	}
	return fmt.Sprintf("%d %s: %s", e.Status, e.Title, e.Detail)
}

// --

type PingResponse struct {
	Server  string `json:"server"`
	Version string `json:"version"`
}

// PrinterStatusResponse describes the driver's bound printer session, if
// any. Endpoint addresses are hex strings ("0x01"); BulkIn is empty for a
// unidirectional printer.
type PrinterStatusResponse struct {
	Qualified  bool   `json:"qualified"`
	DeviceAddr uint8  `json:"deviceAddr,omitempty"`
	Interface  uint8  `json:"interface,omitempty"`
	BulkOut    string `json:"bulkOut,omitempty"`
	BulkIn     string `json:"bulkIn,omitempty"`
	Protocol   string `json:"protocol,omitempty"`
	Busy       bool   `json:"busy,omitempty"`
}

// PrintRequest carries one print job. Data is base64 so payloads survive
// the management protocol's text framing.
type PrintRequest struct {
	Name string `json:"name,omitempty"`
	Data string `json:"data"`
}

type PrintResponse struct {
	Name  string `json:"name,omitempty"`
	Bytes int    `json:"bytes"`
}

type Device struct {
	Addr uint8 `json:"addr"`
}

type DevicesListResponse struct {
	Devices []Device `json:"devices"`
}
