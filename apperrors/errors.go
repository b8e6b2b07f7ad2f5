// Package apperrors is the error taxonomy shared by the Record API and the
// client gateway. Every failure that crosses a boundary is an *AppError with
// a machine-distinguishable Kind and a human message.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies a failure.
type Kind string

const (
	// KindConfiguration: store connection parameters are missing. Needs an
	// operator fix, retrying does not help.
	KindConfiguration Kind = "ConfigurationError"
	// KindSchema: the users table could not be created.
	KindSchema Kind = "SchemaError"
	// KindConnectivity: transient network or pool failure, callers may retry.
	KindConnectivity Kind = "ConnectivityError"
	// KindConstraint: uniqueness or another constraint rejected the write.
	KindConstraint Kind = "ConstraintViolation"
	// KindProtocol: a response was not the structured data the caller expected.
	KindProtocol Kind = "ProtocolError"

	KindValidation         Kind = "ValidationError"
	KindNotFound           Kind = "NotFound"
	KindInvalidCredentials Kind = "InvalidCredentials"
	KindPendingApproval    Kind = "PendingApproval"
	KindRejected           Kind = "Rejected"
	KindInternal           Kind = "InternalError"
)

// HTTPStatus returns the status code the API answers with for k.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindValidation:
		return http.StatusBadRequest
	case KindInvalidCredentials:
		return http.StatusUnauthorized
	case KindPendingApproval, KindRejected:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConstraint:
		return http.StatusConflict
	case KindProtocol:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the same request may succeed later unchanged.
func (k Kind) Retryable() bool {
	return k == KindConnectivity || k == KindProtocol
}

// AppError is the structured error object returned by every non-2xx response.
type AppError struct {
	Kind    Kind   `json:"kind"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
	Err     error  `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s (%v)", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// HTTPStatus is the status code for the error's kind.
func (e *AppError) HTTPStatus() int { return e.Kind.HTTPStatus() }

// New builds an AppError.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Newf builds an AppError with a formatted message.
func Newf(kind Kind, format string, args ...any) *AppError {
	return &AppError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap builds an AppError around an underlying cause.
func Wrap(err error, kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

// WithDetails attaches details and returns e.
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// WithCode attaches an underlying error code and returns e.
func (e *AppError) WithCode(code string) *AppError {
	e.Code = code
	return e
}

// As extracts the *AppError from err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// KindOf returns the kind of err, KindInternal for foreign errors and ""
// for nil.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries kind k.
func IsKind(err error, k Kind) bool { return KindOf(err) == k }
