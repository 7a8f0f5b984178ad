// Package errors carries the service error type. Every layer returns
// *AppError so that HTTP and gRPC answers, logs and metrics agree on one
// code.
package errors

import (
	"errors"
	"fmt"
)

// AppError is a coded error. errors.Is matches two AppErrors by code, and by
// message when the target has one.
//
//	return errors.New(errors.ErrCodeValidation, "text must not be empty")
//	return errors.Wrap(err, errors.ErrCodeInferenceFailed, "sidecar call failed")
type AppError struct {
	Code ErrorCode

	// Message is returned to API callers.
	Message string

	// Detail is returned to callers for 4xx codes only.
	Detail string

	Cause error
}

// Error renders "[CODE] message: detail: cause", omitting empty parts.
func (e *AppError) Error() string {
	s := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.Detail != "" {
		s += ": " + e.Detail
	}
	if e.Cause != nil {
		s += ": " + e.Cause.Error()
	}
	return s
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Message == "" || e.Message == t.Message)
}

// WithDetail returns a copy with Detail set. Sentinels stay untouched.
func (e *AppError) WithDetail(detail string) *AppError {
	if e == nil {
		return nil
	}
	c := *e
	c.Detail = detail
	return &c
}

// WithCause returns a copy wrapping err.
func (e *AppError) WithCause(err error) *AppError {
	if e == nil {
		return nil
	}
	c := *e
	c.Cause = err
	return &c
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap returns nil for a nil err. CodeUnknown inherits the code of the
// first AppError in err's chain.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	if code == CodeUnknown {
		code = GetCode(err)
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

// IsCode reports whether any AppError in err's chain carries code, not only
// the outermost one.
func IsCode(err error, code ErrorCode) bool {
	for err != nil {
		var ae *AppError
		if !errors.As(err, &ae) {
			return false
		}
		if ae.Code == code {
			return true
		}
		err = ae.Cause
	}
	return false
}

func IsNotFound(err error) bool {
	return IsCode(err, CodeNotFound)
}

// GetCode returns the code of the first AppError in err's chain: CodeOK for
// nil and CodeUnknown for plain errors.
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeOK
	}
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return CodeUnknown
}

// Is and As re-export the standard library helpers for callers that import
// this package as "errors".
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }

//Personal.AI order the ending
