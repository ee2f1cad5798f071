// internal/errors/mapper.go
package errors

import (
	"context"
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"gorm.io/gorm"
)

// Code is a stable, client-facing error code.
type Code string

const (
	CodeVerificationRequired Code = "VERIFICATION_REQUIRED"
	CodeSignalLimitReached   Code = "SIGNAL_LIMIT_REACHED"
	CodeInsufficientPhotos   Code = "INSUFFICIENT_PHOTOS"
	CodeForbidden            Code = "FORBIDDEN"
	CodeNotFound             Code = "NOT_FOUND"
	CodeTooManyRequests      Code = "TOO_MANY_REQUESTS"
	CodeRateLimited          Code = "RATE_LIMITED"
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeUnauthenticated      Code = "UNAUTHENTICATED"
	CodeInternal             Code = "INTERNAL"
)

const genericFailure = "something went wrong, please try again"

// PolicyError is a named, user-facing rejection. It never wraps
// infrastructure failures.
type PolicyError struct {
	Code    Code
	Message string
}

func (e *PolicyError) Error() string { return string(e.Code) + ": " + e.Message }

// Policy builds a PolicyError.
func Policy(code Code, msg string) error {
	return &PolicyError{Code: code, Message: msg}
}

// InvalidArgument rejects malformed input before the store is touched.
func InvalidArgument(msg string) error { return Policy(CodeInvalidArgument, msg) }

// Forbidden rejects actions on resources the caller is not party to.
func Forbidden(msg string) error { return Policy(CodeForbidden, msg) }

// NotFound reports a missing resource.
func NotFound(msg string) error { return Policy(CodeNotFound, msg) }

// CodeOf returns the policy code carried by err, or CodeInternal.
func CodeOf(err error) Code {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return pe.Code
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return CodeNotFound
	}
	return CodeInternal
}

// IsPolicy reports whether err is a named rejection rather than a failure.
func IsPolicy(err error) bool {
	var pe *PolicyError
	return errors.As(err, &pe)
}

// EventPayload is the body of the realtime "error" event.
type EventPayload struct {
	Message   string `json:"message"`
	ErrorCode Code   `json:"errorCode,omitempty"`
}

// Payload converts err into an error event body. Infrastructure failures
// are reduced to a generic message with no internal detail.
func Payload(err error) EventPayload {
	var pe *PolicyError
	if errors.As(err, &pe) {
		return EventPayload{Message: pe.Message, ErrorCode: pe.Code}
	}
	return EventPayload{Message: genericFailure}
}

// Map converts repo/infra/policy errors into gRPC-friendly status errors.
// Keeps service layer clean by centralizing error mapping.
func Map(err error) error {
	if err == nil {
		return nil
	}

	var pe *PolicyError
	if errors.As(err, &pe) {
		return status.Error(grpcCode(pe.Code), pe.Message)
	}

	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return status.Error(codes.NotFound, "record not found")

	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, "request timed out")

	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, "request was canceled")

	default:
		return status.Error(codes.Internal, genericFailure)
	}
}

func grpcCode(c Code) codes.Code {
	switch c {
	case CodeVerificationRequired, CodeInsufficientPhotos:
		return codes.FailedPrecondition
	case CodeSignalLimitReached, CodeTooManyRequests, CodeRateLimited:
		return codes.ResourceExhausted
	case CodeForbidden:
		return codes.PermissionDenied
	case CodeNotFound:
		return codes.NotFound
	case CodeInvalidArgument:
		return codes.InvalidArgument
	case CodeUnauthenticated:
		return codes.Unauthenticated
	default:
		return codes.Internal
	}
}
