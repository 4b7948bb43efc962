// Package errors defines the sentinel errors shared by the lookup service
// and their mapping onto HTTP statuses.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrIndexUnavailable  = errors.New("gazetteer index unavailable")
	ErrQuerySyntax       = errors.New("malformed query")
	ErrDocumentNotFound  = errors.New("document not found")
	ErrMissingField      = errors.New("missing field")
	ErrInvalidCoordinate = errors.New("invalid coordinate")
	ErrSchemaMismatch    = errors.New("field schema mismatch")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnknownGazetteer  = errors.New("unknown gazetteer")
	ErrCacheDisabled     = errors.New("cache does not support invalidation")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

// statuses is checked in order; the first sentinel in an error's chain wins.
var statuses = []struct {
	err    error
	status int
}{
	{ErrDocumentNotFound, http.StatusNotFound},
	{ErrInvalidInput, http.StatusBadRequest},
	{ErrQuerySyntax, http.StatusBadRequest},
	{ErrUnknownGazetteer, http.StatusBadRequest},
	{ErrCacheDisabled, http.StatusConflict},
	{ErrIndexUnavailable, http.StatusServiceUnavailable},
	{ErrTimeout, http.StatusServiceUnavailable},
}

// AppError pins a sentinel to an explicit status and a client-facing message.
type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	if e.Message == "" {
		return e.Err.Error()
	}
	return e.Err.Error() + ": " + e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{Err: sentinel, Message: message, StatusCode: statusCode}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return New(sentinel, statusCode, fmt.Sprintf(format, args...))
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}
	for _, s := range statuses {
		if errors.Is(err, s.err) {
			return s.status
		}
	}
	return http.StatusInternalServerError
}

// PublicMessage is the text safe to return to a client. Internal errors are
// never echoed back.
func PublicMessage(err error) string {
	if HTTPStatusCode(err) == http.StatusInternalServerError {
		return ErrInternal.Error()
	}
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}
	return err.Error()
}
