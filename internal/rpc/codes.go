package rpc

// Standard JSON-RPC 2.0 error codes plus the server-defined range.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603

	CodeRateLimitExceeded = -32099
	CodeServerBusy        = -32098
)

// ErrParse is returned for bytes that are not valid JSON.
func ErrParse() *Error {
	return &Error{Code: CodeParseError, Message: "Parse error"}
}

// ErrInvalidRequest reports a structurally invalid envelope.
func ErrInvalidRequest(detail string) *Error {
	return &Error{Code: CodeInvalidRequest, Message: "Invalid Request: " + detail}
}

// ErrMethodNotFound reports an unsupported method.
func ErrMethodNotFound(method string) *Error {
	return &Error{Code: CodeMethodNotFound, Message: "Method not found: " + method}
}

// ErrInvalidParams reports an unknown tool, bad arguments or a security
// rejection.
func ErrInvalidParams(detail string) *Error {
	return &Error{Code: CodeInvalidParams, Message: detail}
}

// ErrInternal is the generic internal failure. Detail never reaches the
// caller.
func ErrInternal(message string) *Error {
	if message == "" {
		message = "Internal error"
	}
	return &Error{Code: CodeInternalError, Message: message}
}

// RateLimitData is attached to rate-limit errors so callers can back off.
type RateLimitData struct {
	Remaining         int `json:"remaining"`
	RetryAfterSeconds int `json:"retry_after_seconds"`
}

// ErrRateLimited reports an exhausted client quota.
func ErrRateLimited(remaining, retryAfterSeconds int) *Error {
	return &Error{
		Code:    CodeRateLimitExceeded,
		Message: "Rate limit exceeded",
		Data:    RateLimitData{Remaining: remaining, RetryAfterSeconds: retryAfterSeconds},
	}
}

// ErrServerBusy reports that no execution slot freed up in time.
func ErrServerBusy() *Error {
	return &Error{Code: CodeServerBusy, Message: "Server busy, try again later"}
}
