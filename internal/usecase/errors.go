package usecase

import "fmt"

type ErrorCode string

const (
	ErrorTransport ErrorCode = "TRANSPORT_ERROR"
	ErrorUpstream  ErrorCode = "UPSTREAM_ERROR"
	ErrorProtocol  ErrorCode = "PROTOCOL_ERROR"
	ErrorInternal  ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

// fallbackText is the message shown in the conversation when a send fails.
func fallbackText(e *Error, detail string) string {
	switch e.Code {
	case ErrorTransport:
		return "Could not reach the server. Please try again."
	case ErrorUpstream:
		if detail != "" {
			return detail
		}
		return "The server could not answer right now."
	case ErrorProtocol:
		return "Received an unexpected reply from the server."
	default:
		return "Something went wrong on our side."
	}
}
