package client

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
)

// JSON-RPC 2.0 standard error codes plus the SDK-level codes the classifier
// recognizes.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeConnectionClosed = -32000
	CodeRequestTimeout   = -32001
)

// Error is a structured protocol-level error with a numeric JSON-RPC code.
// The go-sdk adapter produces it whenever a code can be recovered from a
// failed operation; tests and in-process fakes construct it directly.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol error %d: %s", e.Code, e.Message)
}

// NewError builds a structured protocol error.
func NewError(code int, message string) *Error {
	return &Error{Code: code, Message: message}
}

// CodeName returns the spec name for a known error code, or "Unknown".
func CodeName(code int) string {
	switch code {
	case CodeParseError:
		return "ParseError"
	case CodeInvalidRequest:
		return "InvalidRequest"
	case CodeMethodNotFound:
		return "MethodNotFound"
	case CodeInvalidParams:
		return "InvalidParams"
	case CodeInternalError:
		return "InternalError"
	case CodeConnectionClosed:
		return "ConnectionClosed"
	case CodeRequestTimeout:
		return "RequestTimeout"
	default:
		return "Unknown"
	}
}

// jsonRPCCodePattern matches the server-error and standard code ranges that
// appear in SDK error strings, e.g. "calling "tools/call": jsonrpc2: code
// -32601 message: method not found".
var jsonRPCCodePattern = regexp.MustCompile(`-32[0-9]{3}`)

// CodeOf extracts a JSON-RPC error code from err. Structured *Error values
// are preferred; otherwise the error text is scanned for a code, which is the
// best the SDK exposes for wire errors.
func CodeOf(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr.Code, true
	}
	if m := jsonRPCCodePattern.FindString(err.Error()); m != "" {
		code, convErr := strconv.Atoi(m)
		if convErr == nil {
			return code, true
		}
	}
	return 0, false
}

// AsProtocolError normalizes err into a structured *Error when a code can be
// recovered, returning nil otherwise.
func AsProtocolError(err error) *Error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	if code, ok := CodeOf(err); ok {
		return &Error{Code: code, Message: err.Error()}
	}
	return nil
}
