package spreadsheet

import (
	"errors"
	"fmt"
)

// ErrValidation marks malformed or out-of-domain input. nothing is mutated
// when it is returned.
var ErrValidation = errors.New("validation fault")

// ErrStructural marks a range violation during insert, delete, copy or move.
var ErrStructural = errors.New("structural fault")

// ErrUsage marks a host programming error, like operating on a disposed
// sheet or resuming recalculation more times than it was suspended.
var ErrUsage = errors.New("usage fault")

// AppErrorCode represents gRPC-style error codes for application-level errors.
// note that we are skipping error codes that don't make sense for our use-case,
// like unauthenticated, or permission denied.
type AppErrorCode int

const (
	// OK indicates the operation completed successfully.
	OK AppErrorCode = 0

	// Unknown error.
	Unknown AppErrorCode = 2

	// InvalidArgument indicates client specified an invalid argument, like a
	// value of an unsupported kind.
	InvalidArgument AppErrorCode = 3

	// NotFound means some requested entity (e.g., a sheet handle) was not
	// found.
	NotFound AppErrorCode = 5

	// FailedPrecondition indicates operation was rejected because the
	// system is not in a state required for the operation's execution.
	FailedPrecondition AppErrorCode = 9

	// OutOfRange means operation was attempted past the valid range.
	OutOfRange AppErrorCode = 11

	// Internal errors. Means some invariants expected by underlying
	// system has been broken.
	Internal AppErrorCode = 13
)

func (c AppErrorCode) String() string {
	switch c {
	case OK:
		return "ok"
	case InvalidArgument:
		return "invalid_argument"
	case NotFound:
		return "not_found"
	case FailedPrecondition:
		return "failed_precondition"
	case OutOfRange:
		return "out_of_range"
	case Internal:
		return "internal"
	default:
		return "unknown"
	}
}

// AppError represents errors at the application level (not
// spreadsheet formula errors). Err is the fault class it belongs to.
type AppError struct {
	Code    AppErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Err, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewApplicationError creates a new application error
func NewApplicationError(code AppErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func validationError(code AppErrorCode, format string, args ...any) *AppError {
	return &AppError{Code: code, Message: fmt.Sprintf(format, args...), Err: ErrValidation}
}

func structuralError(format string, args ...any) *AppError {
	return &AppError{Code: OutOfRange, Message: fmt.Sprintf(format, args...), Err: ErrStructural}
}

func usageError(format string, args ...any) *AppError {
	return &AppError{Code: FailedPrecondition, Message: fmt.Sprintf(format, args...), Err: ErrUsage}
}
