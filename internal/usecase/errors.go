package usecase

import (
	"errors"
	"fmt"

	"citizen-assistant/internal/directory"
)

type ErrorCode string

const (
	ErrorInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrorUnknownAction ErrorCode = "UNKNOWN_ACTION"
	ErrorNotFound      ErrorCode = "NOT_FOUND"
	ErrorRateLimited   ErrorCode = "RATE_LIMITED"
	ErrorUpstream      ErrorCode = "UPSTREAM_ERROR"
	ErrorInternal      ErrorCode = "INTERNAL_ERROR"
)

type Error struct {
	Code   ErrorCode
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Err == nil {
		return fmt.Sprintf("usecase: %s (%s)", e.Code, e.Reason)
	}
	return fmt.Sprintf("usecase: %s (%s): %v", e.Code, e.Reason, e.Err)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func newError(code ErrorCode, reason string, err error) *Error {
	return &Error{Code: code, Reason: reason, Err: err}
}

type httpStatusCoder interface {
	HTTPStatusCode() int
}

func upstreamStatusCode(err error) (int, bool) {
	var statusErr httpStatusCoder
	if !errors.As(err, &statusErr) {
		return 0, false
	}
	return statusErr.HTTPStatusCode(), true
}

// directoryError classifies a failed directory call made on behalf of a
// caller-facing operation.
func directoryError(op string, err error) *Error {
	if errors.Is(err, directory.ErrNotFound) {
		return newError(ErrorNotFound, op+"_not_found", err)
	}
	if status, ok := upstreamStatusCode(err); ok {
		if status == 429 {
			return newError(ErrorRateLimited, op+"_rate_limited", err)
		}
		return newError(ErrorUpstream, op+"_upstream_error", err)
	}
	return newError(ErrorInternal, op+"_error", err)
}

// CodeOf returns the code of the first *Error in err's chain, or
// ErrorInternal for anything else.
func CodeOf(err error) ErrorCode {
	var ue *Error
	if errors.As(err, &ue) {
		return ue.Code
	}
	return ErrorInternal
}
