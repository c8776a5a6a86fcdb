package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error represents a typed studio error with HTTP awareness.
type Error struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Status  int               `json:"status"`
	Fields  map[string]string `json:"fields,omitempty"`
	Err     error             `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches errors sharing the same code so clones of a sentinel satisfy errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// New creates a new Error instance.
func New(code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message}
}

// Wrap attaches context to an existing error.
func Wrap(err error, code string, status int, message string) *Error {
	return &Error{Code: code, Status: status, Message: message, Err: err}
}

// Predefined errors for the studio error taxonomy.
var (
	ErrValidation           = New("VALIDATION_ERROR", http.StatusBadRequest, "validation failed")
	ErrQuotaExceeded        = New("QUOTA_EXCEEDED", http.StatusUnprocessableEntity, "total items exceed the limit of 5 (content types × quantity)")
	ErrGenerationInProgress = New("GENERATION_IN_PROGRESS", http.StatusConflict, "a generation is already in progress")
	ErrNetwork              = New("NETWORK_ERROR", http.StatusBadGateway, "backend request failed")
	ErrTimeout              = New("TIMEOUT", http.StatusGatewayTimeout, "backend request timed out")
	ErrResponseFormat       = New("RESPONSE_FORMAT_ERROR", http.StatusBadGateway, "invalid response format")
	ErrBlockParse           = New("BLOCK_PARSE_ERROR", http.StatusUnprocessableEntity, "unable to display this content")
	ErrDownload             = New("DOWNLOAD_ERROR", http.StatusBadGateway, "document download failed")
	ErrNotFound             = New("NOT_FOUND", http.StatusNotFound, "resource not found")
	ErrInternal             = New("INTERNAL_ERROR", http.StatusInternalServerError, "internal server error")
	ErrCacheMiss            = New("CACHE_MISS", http.StatusNotFound, "cache miss")
)

// FromError normalises any error into an *Error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(err, ErrInternal.Code, ErrInternal.Status, ErrInternal.Message)
}

// Clone returns a copy of the error allowing for message overrides.
func Clone(err *Error, message string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	if message != "" {
		clone.Message = message
	}
	return &clone
}

// WithFields returns a copy of err carrying per-field messages.
func WithFields(err *Error, fields map[string]string) *Error {
	if err == nil {
		return nil
	}
	clone := *err
	clone.Fields = fields
	return &clone
}

// HasCode reports whether err is an *Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
