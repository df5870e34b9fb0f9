package jsonrpc

import (
	"fmt"

	"github.com/cockroachdb/errors"
)

var (
	// ErrTransport marks a body that could not be read up to its declared length.
	ErrTransport = errors.New("[JSONRPC] transport failure")

	// ErrParse marks bytes the serializer could not decode.
	ErrParse = errors.New("[JSONRPC] parse failure")

	// ErrSerialize marks a value the serializer could not encode.
	ErrSerialize = errors.New("[JSONRPC] serialize failure")

	// ErrProgramming marks failures of application code that must not be
	// reported as JSON-RPC errors.
	ErrProgramming = errors.New("[JSONRPC] programming error")

	// ErrNoReply is returned when a handler finishes without replying.
	ErrNoReply = errors.New("[JSONRPC] empty reply")
)

var codeMessages = map[int]string{
	CodeParseError:       "Parse error",
	CodeInvalidRequest:   "Invalid Request",
	CodeMethodNotFound:   "Method not found",
	CodeInvalidParams:    "Invalid params",
	CodeInternalError:    "Internal error",
	CodeServerOverloaded: "Server overloaded",
	CodeRequestTimeout:   "Request timed out",
}

// Error is a JSON-RPC error object. It is both the value carried in error
// responses and the error type a Dispatcher returns for protocol-domain failures.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("jsonrpc error %d: %s (%v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// NewError creates an error with the given code and message.
// An empty message is replaced by the catalogue message for the code.
func NewError(code int, message string) *Error {
	if message == "" {
		message = CodeMessage(code)
	}
	return &Error{Code: code, Message: message}
}

// NewErrorWithData creates an error carrying additional data.
func NewErrorWithData(code int, message string, data any) *Error {
	e := NewError(code, message)
	e.Data = data
	return e
}

// CodeMessage returns the catalogue message for a code, or "Server error"
// for codes outside the catalogue.
func CodeMessage(code int) string {
	if msg, ok := codeMessages[code]; ok {
		return msg
	}
	return "Server error"
}

func ParseError(data any) *Error {
	return NewErrorWithData(CodeParseError, "", data)
}

// InvalidRequest returns an INVALID_REQUEST error whose data is the offending raw value.
func InvalidRequest(raw any) *Error {
	return NewErrorWithData(CodeInvalidRequest, "", raw)
}

func MethodNotFound(method string) *Error {
	return NewErrorWithData(CodeMethodNotFound, "", method)
}

func InvalidParams(data any) *Error {
	return NewErrorWithData(CodeInvalidParams, "", data)
}

func InternalError(data any) *Error {
	return NewErrorWithData(CodeInternalError, "", data)
}

// AsError extracts a JSON-RPC error from an error chain.
func AsError(err error) (*Error, bool) {
	var rpcErr *Error
	if errors.As(err, &rpcErr) && rpcErr != nil {
		return rpcErr, true
	}
	return nil, false
}

// IsFatal reports whether err aborts a whole exchange instead of becoming a
// JSON-RPC error response.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	_, ok := AsError(err)
	return !ok
}
