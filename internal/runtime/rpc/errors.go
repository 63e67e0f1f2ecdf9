package rpc

import (
	"context"
	"errors"
	"net/http"

	errspkg "github.com/drblury/crudflow/internal/runtime/errors"
)

// JSON-RPC 2.0 error codes. -32000 and -32029 are in the implementation
// defined server error range.
const (
	CodeParseError       = -32700
	CodeInvalidRequest   = -32600
	CodeMethodNotFound   = -32601
	CodeInvalidParams    = -32602
	CodeInternalError    = -32603
	CodeProcedureFailure = -32000
	CodeRateLimited      = -32029
)

// Error is a JSON-RPC error object. Procedures may return one to pick the code.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *Error) Error() string {
	return e.Message
}

// InvalidParams builds a -32602 error.
func InvalidParams(message string) *Error {
	return &Error{Code: CodeInvalidParams, Message: message}
}

// ToError maps a procedure error to its wire form.
func ToError(err error) *Error {
	var rpcErr *Error
	switch {
	case errors.As(err, &rpcErr):
		return rpcErr
	case errors.Is(err, errspkg.ErrProcedureNotFound):
		return &Error{Code: CodeMethodNotFound, Message: "method not found"}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: CodeProcedureFailure, Message: "request canceled"}
	default:
		return &Error{Code: CodeProcedureFailure, Message: err.Error()}
	}
}

// httpStatus keeps HTTP 200 for everything but transport-level refusals.
func httpStatus(code int) int {
	if code == CodeRateLimited {
		return http.StatusTooManyRequests
	}
	return http.StatusOK
}
