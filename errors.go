package main

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrorKind is the small, user-visible error taxonomy every operation reports.
type ErrorKind string

const (
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindValidation      ErrorKind = "validation_error"
	KindAccessDenied    ErrorKind = "access_denied"
	KindNotFound        ErrorKind = "not_found"
	KindConflict        ErrorKind = "conflict"
	KindBackend         ErrorKind = "backend_error"
)

// Status returns the HTTP status code used for this kind.
func (k ErrorKind) Status() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindValidation:
		return http.StatusBadRequest
	case KindAccessDenied:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// AppError is returned by every core operation. Message is safe to show to
// the user; Err keeps the underlying cause for logs.
type AppError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

func unauthenticated(msg string) *AppError {
	return &AppError{Kind: KindUnauthenticated, Message: msg}
}

func validationError(msg string) *AppError {
	return &AppError{Kind: KindValidation, Message: msg}
}

func accessDenied(msg string) *AppError {
	return &AppError{Kind: KindAccessDenied, Message: msg}
}

func notFound(msg string) *AppError {
	return &AppError{Kind: KindNotFound, Message: msg}
}

func conflict(msg string) *AppError {
	return &AppError{Kind: KindConflict, Message: msg}
}

// backendError wraps a store failure. The cause is logged here, once, so
// callers only need to return it.
func backendError(err error, msg string) *AppError {
	slog.Error(msg, "error", err)
	return &AppError{Kind: KindBackend, Message: msg, Err: err}
}

// asAppError classifies any error. Unknown errors become backend errors.
func asAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return backendError(err, "unexpected failure")
}

// kindOf reports the kind of err, or "" for nil.
func kindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindBackend
}
