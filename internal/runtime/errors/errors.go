package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrSessionRequired     = sterrors.New("crudflow: rpc session is required")
	ErrStoreRequired       = sterrors.New("crudflow: object store is required")
	ErrValidatorRequired   = sterrors.New("crudflow: validator is required")
	ErrLoggerRequired      = sterrors.New("crudflow: logger is required")
	ErrConfigRequired      = sterrors.New("crudflow: configuration is required")
	ErrViewSetNameRequired = sterrors.New("crudflow: viewset name is required")
	ErrURIPrefixRequired   = sterrors.New("crudflow: viewset uri prefix is required")
	ErrSchemaRequired      = sterrors.New("crudflow: schema is required")
	ErrProcedureRequired   = sterrors.New("crudflow: procedure handler is required")
	ErrProcedureNameNeeded = sterrors.New("crudflow: procedure name is required")
	ErrProcedureExists     = sterrors.New("crudflow: procedure is already registered")
	ErrProcedureNotFound   = sterrors.New("crudflow: procedure not found")
	ErrPublisherRequired   = sterrors.New("crudflow: publisher is required")
	ErrTopicRequired       = sterrors.New("crudflow: topic is required")
	ErrUnknownStore        = sterrors.New("crudflow: unknown store backend")
	ErrStoreClosed         = sterrors.New("crudflow: store is closed")
	ErrStoreFailure        = sterrors.New("crudflow: store operation failed")
	ErrCapabilityRequired  = sterrors.New("crudflow: at least one capability is required")
	ErrDuplicateCapability = sterrors.New("crudflow: capability is listed twice")
	ErrBusRPCUnsupported   = sterrors.New("crudflow: transport cannot serve bus rpc")
)

// ValidationError reports a candidate record that was rejected before any
// mutation took place. Message is returned to RPC callers verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError builds a ValidationError from a format string.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ConfigValidationError wraps configuration problems detected at startup.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "crudflow: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error {
	return e.Err
}

// NewConfigValidationError returns nil when err is nil.
func NewConfigValidationError(err error) error {
	if err == nil {
		return nil
	}
	return ConfigValidationError{Err: err}
}
