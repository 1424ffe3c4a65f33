package entities

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrorKind classifies pipeline failures so callers can branch on the class
// rather than on message text.
type ErrorKind string

const (
	KindAcquisitionDenied  ErrorKind = "acquisition_denied"
	KindTimeout            ErrorKind = "timeout"
	KindBackendError       ErrorKind = "backend_error"
	KindProtocolError      ErrorKind = "protocol_error"
	KindValidationError    ErrorKind = "validation_error"
	KindStorageUnavailable ErrorKind = "storage_unavailable"
	KindUnknown            ErrorKind = "unknown"
)

// PipelineError is the error type carried through the capture-to-result
// pipeline. Status is only meaningful for backend errors, and CorrelationID is
// only set for unknown errors so operators can match a user report to logs
// without exposing internals.
type PipelineError struct {
	Kind          ErrorKind
	Message       string
	Status        int
	CorrelationID string
	cause         error
}

func (e *PipelineError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.cause
}

// NewAcquisitionDenied reports that the capture device refused access.
func NewAcquisitionDenied(message string) *PipelineError {
	return &PipelineError{Kind: KindAcquisitionDenied, Message: message}
}

// NewTimeout reports an elapsed client- or backend-side deadline. The message
// should tell the visitor a retry is safe.
func NewTimeout(message string) *PipelineError {
	return &PipelineError{Kind: KindTimeout, Message: message}
}

// NewBackendError wraps a non-2xx answer from the transformation backend.
func NewBackendError(status int, message string) *PipelineError {
	return &PipelineError{Kind: KindBackendError, Status: status, Message: message}
}

// NewProtocolError reports a well-formed HTTP exchange whose payload did not
// carry the expected result shape.
func NewProtocolError(message string) *PipelineError {
	return &PipelineError{Kind: KindProtocolError, Message: message}
}

// NewValidationError reports rejected input at a service boundary.
func NewValidationError(message string) *PipelineError {
	return &PipelineError{Kind: KindValidationError, Message: message}
}

// NewStorageUnavailable marks a persistence failure. Callers absorb this kind
// locally and fall back to inline delivery.
func NewStorageUnavailable(cause error) *PipelineError {
	return &PipelineError{
		Kind:    KindStorageUnavailable,
		Message: "durable storage is unavailable",
		cause:   cause,
	}
}

// NewUnknown wraps an unclassified error with a short random correlation id.
func NewUnknown(cause error) *PipelineError {
	return &PipelineError{
		Kind:          KindUnknown,
		Message:       "internal error",
		CorrelationID: uuid.NewString()[:8],
		cause:         cause,
	}
}

// KindOf extracts the error kind, defaulting to KindUnknown for foreign errors.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindUnknown
}

// AsPipelineError normalizes any error into a *PipelineError.
func AsPipelineError(err error) *PipelineError {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe
	}
	return NewUnknown(err)
}
