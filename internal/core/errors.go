package core

import (
	"errors"
	"fmt"
)

// Error codes for domain errors.
const (
	ErrCodeBadRequest         = "bad_request"
	ErrCodeNotRegistered      = "not_registered"
	ErrCodeForbidden          = "forbidden"
	ErrCodeNotFound           = "not_found"
	ErrCodePersistFailed      = "persist_failed"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeUnsupportedVersion = "unsupported_version"
)

// Sentinels shared with the service layer. Services wrap them so the hub can
// map failures onto wire codes with errors.Is.
var (
	ErrBadRequest    = errors.New("bad request")
	ErrForbidden     = errors.New("forbidden")
	ErrNotFound      = errors.New("not found")
	ErrNotRegistered = errors.New("identity not registered")
)

// CoreError wraps a code and human-readable message.
type CoreError struct {
	Code    string
	Message string
}

func (e *CoreError) Error() string {
	return e.Message
}

func coreError(code, msg string) *CoreError {
	return &CoreError{Code: code, Message: msg}
}

// AsCoreError converts any error into a CoreError. Unknown errors are treated as
// persistence failures and their detail is not exposed.
func AsCoreError(err error) *CoreError {
	var ce *CoreError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &ce):
		return ce
	case errors.Is(err, ErrBadRequest):
		return coreError(ErrCodeBadRequest, err.Error())
	case errors.Is(err, ErrForbidden):
		return coreError(ErrCodeForbidden, err.Error())
	case errors.Is(err, ErrNotFound):
		return coreError(ErrCodeNotFound, err.Error())
	case errors.Is(err, ErrNotRegistered):
		return coreError(ErrCodeNotRegistered, err.Error())
	default:
		return coreError(ErrCodePersistFailed, "failed to save message")
	}
}

func badRequest(format string, args ...any) *CoreError {
	return coreError(ErrCodeBadRequest, fmt.Sprintf(format, args...))
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.msg }
func (e *kindError) Unwrap() error { return e.kind }

// NewError returns an error that reads msg and matches kind (one of the
// sentinels above) with errors.Is.
func NewError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}
