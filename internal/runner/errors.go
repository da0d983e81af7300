package runner

import (
	"context"
	"errors"

	"github.com/xkilldash9x/singlish-check/internal/browser"
	"github.com/xkilldash9x/singlish-check/internal/invoker"
)

// ErrorCode classifies why a scenario did not pass.
type ErrorCode string

const (
	CodeNone               ErrorCode = ""
	CodeElementNotFound    ErrorCode = "ELEMENT_NOT_FOUND"
	CodeStaleHandle        ErrorCode = "STALE_HANDLE"
	CodeTimeout            ErrorCode = "TIMEOUT_ERROR"
	CodeValidationMismatch ErrorCode = "VALIDATION_MISMATCH"
	CodeExecutionFailure   ErrorCode = "EXECUTION_FAILURE"
	CodeCancelled          ErrorCode = "CANCELLED"
)

// ErrValidationMismatch marks an output that failed its acceptance policy.
// It is an ordinary test failure, not a system fault.
var ErrValidationMismatch = errors.New("validation mismatch")

// Hard reports whether the code is a system fault that warrants a failure
// screenshot.
func (c ErrorCode) Hard() bool {
	switch c {
	case CodeElementNotFound, CodeStaleHandle, CodeTimeout, CodeExecutionFailure:
		return true
	}
	return false
}

// Classify maps an error to its outcome code.
func Classify(err error) ErrorCode {
	switch {
	case err == nil:
		return CodeNone
	case errors.Is(err, context.Canceled):
		return CodeCancelled
	case errors.Is(err, invoker.ErrTimeoutExceeded), errors.Is(err, context.DeadlineExceeded):
		return CodeTimeout
	case errors.Is(err, browser.ErrStaleHandle):
		return CodeStaleHandle
	case errors.Is(err, browser.ErrElementNotFound):
		return CodeElementNotFound
	case errors.Is(err, ErrValidationMismatch):
		return CodeValidationMismatch
	default:
		return CodeExecutionFailure
	}
}
