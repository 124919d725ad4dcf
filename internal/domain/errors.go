package domain

import (
	"errors"
	"fmt"
)

// Kind classifies a failure. Kinds are strings so they serialise naturally.
type Kind string

const (
	KindNotFound        Kind = "NOT_FOUND"
	KindInvalidStep     Kind = "INVALID_STEP"
	KindCaseTerminal    Kind = "CASE_TERMINAL"
	KindCasePaused      Kind = "CASE_PAUSED"
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindForbidden       Kind = "FORBIDDEN"
	KindUpstreamFailure Kind = "UPSTREAM_FAILURE"
	KindConflict        Kind = "CONFLICT"
	KindInvalidInput    Kind = "INVALID_INPUT"
)

// Error is a classified failure carrying optional structured details.
type Error struct {
	Kind    Kind
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Message == "" {
		return e.Err.Error()
	}
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// With returns a copy of e carrying an extra detail.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Details = make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		cp.Details[k] = v
	}
	cp.Details[key] = value
	return &cp
}

// Kind sentinels for errors.Is.
var (
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidStep     = &Error{Kind: KindInvalidStep}
	ErrCaseTerminal    = &Error{Kind: KindCaseTerminal}
	ErrCasePaused      = &Error{Kind: KindCasePaused}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrForbidden       = &Error{Kind: KindForbidden}
	ErrUpstreamFailure = &Error{Kind: KindUpstreamFailure}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrInvalidInput    = &Error{Kind: KindInvalidInput}
)

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func NotFound(format string, args ...any) *Error {
	return newError(KindNotFound, format, args...)
}

func InvalidStep(format string, args ...any) *Error {
	return newError(KindInvalidStep, format, args...)
}

func CaseTerminal(caseID string, status Status) *Error {
	return newError(KindCaseTerminal, "case %s is %s", caseID, status).With("status", status)
}

func CasePaused(caseID string) *Error {
	return newError(KindCasePaused, "case %s is on hold pending HR review", caseID)
}

func Unauthorized(format string, args ...any) *Error {
	return newError(KindUnauthorized, format, args...)
}

func Forbidden(format string, args ...any) *Error {
	return newError(KindForbidden, format, args...)
}

func InvalidInput(format string, args ...any) *Error {
	return newError(KindInvalidInput, format, args...)
}

func ConflictError(format string, args ...any) *Error {
	return newError(KindConflict, format, args...)
}

// Upstream wraps a collaborator failure (orchestrator, mail transport).
func Upstream(component string, err error) *Error {
	return &Error{
		Kind:    KindUpstreamFailure,
		Message: component + " failed",
		Details: map[string]any{"component": component},
		Err:     err,
	}
}

// KindOf returns the kind of err, or "" when err is not classified.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
