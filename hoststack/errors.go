package hoststack

import "fmt"

// Code is a host-stack error code. Codes are propagated to callers as-is,
// never reinterpreted.
type Code int

const (
	CodeInvalidArg Code = iota + 1
	CodeInvalidState
	CodeNotFound
	CodeNotSupported
	CodeNoMem
	CodeBusy
	CodeNoDevice
	CodeIO
)

func (c Code) String() string {
	switch c {
	case CodeInvalidArg:
		return "invalid argument"
	case CodeInvalidState:
		return "invalid state"
	case CodeNotFound:
		return "not found"
	case CodeNotSupported:
		return "not supported"
	case CodeNoMem:
		return "no memory"
	case CodeBusy:
		return "busy"
	case CodeNoDevice:
		return "no device"
	case CodeIO:
		return "I/O error"
	default:
		return "unknown"
	}
}

// Error is a failure reported by the host stack, carrying the stack's own
// code and the operation that produced it.
type Error struct {
	Op   string
	Code Code
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Code)
}

// Errf constructs a stack error for the given operation and code.
func Errf(op string, code Code) *Error {
	return &Error{Op: op, Code: code}
}
