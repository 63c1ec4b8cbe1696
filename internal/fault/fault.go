// Package fault carries business failures across layers. Every failure has
// a kind from the gRPC status space, which is exactly the failure taxonomy
// the remote operations expose; transports translate kinds to their own
// status codes without inspecting individual errors.
package fault

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type Error struct {
	Code    codes.Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// GRPCStatus lets grpc-aware callers read the error as a status.
func (e *Error) GRPCStatus() *status.Status {
	return status.New(e.Code, e.Message)
}

func New(code codes.Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an underlying error, preserving it for errors.Is.
func Wrap(code codes.Code, err error, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

func Unauthenticated(format string, args ...any) *Error {
	return New(codes.Unauthenticated, format, args...)
}

func PermissionDenied(format string, args ...any) *Error {
	return New(codes.PermissionDenied, format, args...)
}

func InvalidArgument(format string, args ...any) *Error {
	return New(codes.InvalidArgument, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return New(codes.NotFound, format, args...)
}

func AlreadyExists(format string, args ...any) *Error {
	return New(codes.AlreadyExists, format, args...)
}

func FailedPrecondition(format string, args ...any) *Error {
	return New(codes.FailedPrecondition, format, args...)
}

func Internal(err error, message string) *Error {
	return Wrap(codes.Internal, err, message)
}

// CodeOf extracts the kind from err, defaulting to Internal for anything
// that did not originate as a fault.
func CodeOf(err error) codes.Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return codes.Internal
}

// MessageOf returns the caller-facing message for err.
func MessageOf(err error) string {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Message
	}
	return "internal error"
}
