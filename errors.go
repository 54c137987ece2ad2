package mailbus

import (
	"errors"
	"fmt"
)

// Error represents a mailbus error with categorization.
type Error struct {
	// Code is a machine-readable error code
	Code string

	// Message is a human-readable error message
	Message string

	// Attempts is the number of connect attempts made before the error surfaced.
	// Zero when the error did not come from the connect loop.
	Attempts int

	// Err is the underlying error (if any)
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Message
	if e.Attempts > 0 {
		msg = fmt.Sprintf("%s (attempts=%d)", msg, e.Attempts)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Error codes for mailbus operations.
const (
	// ErrCodeNoData indicates no data was found.
	ErrCodeNoData = "NO_DATA"

	// ErrCodeValidation indicates validation failed.
	ErrCodeValidation = "VALIDATION_ERROR"

	// ErrCodeConfiguration indicates invalid configuration.
	ErrCodeConfiguration = "CONFIGURATION_ERROR"

	// ErrCodeUnavailable indicates the bucket could not be reached within the
	// connect budget. This is the only code that warrants an operational alert.
	ErrCodeUnavailable = "UNAVAILABLE"

	// ErrCodeInitialization indicates bucket container/schema setup failed.
	// The bucket stays not-ready and initialization is retried later.
	ErrCodeInitialization = "INITIALIZATION_FAILED"

	// ErrCodeWriteRejected indicates the store refused a write (integrity,
	// constraint or I/O failure after a usable connection). Never retried.
	ErrCodeWriteRejected = "WRITE_REJECTED"

	// ErrCodeDatabase indicates a read or delete failed on a usable connection.
	ErrCodeDatabase = "DATABASE_ERROR"

	// ErrCodeMalformedInput indicates an inbound message could not be parsed.
	ErrCodeMalformedInput = "MALFORMED_INPUT"
)

// Common errors.
var (
	// ErrNoData is returned when a lookup finds nothing.
	ErrNoData = &Error{
		Code:    ErrCodeNoData,
		Message: "no data found",
	}

	// ErrQueueClosed is returned by a partition queue after Close.
	ErrQueueClosed = errors.New("partition queue closed")

	// ErrQueueClaimed is returned when a second consumer tries to own a queue.
	ErrQueueClaimed = errors.New("partition queue already has a consumer")

	// ErrBrokerClosed is returned by a broker after Shutdown.
	ErrBrokerClosed = errors.New("broker is shut down")
)

// NewError creates a new Error with the given code and message.
func NewError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// NewErrorWithCause creates a new Error wrapping an underlying error.
func NewErrorWithCause(code, message string, cause error) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// HasCode reports whether err is, or wraps, a mailbus *Error with the given code.
func HasCode(err error, code string) bool {
	var e *Error
	for err != nil {
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Err
	}
	return false
}

// IsNoData checks if an error is ErrNoData.
func IsNoData(err error) bool {
	return HasCode(err, ErrCodeNoData)
}

// IsUnavailable checks if an error reports an unreachable bucket.
func IsUnavailable(err error) bool {
	return HasCode(err, ErrCodeUnavailable)
}

// AttemptsOf returns the connect attempt count carried by err, or 0.
func AttemptsOf(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Attempts
	}
	return 0
}

// CodeOf returns the code of the outermost mailbus *Error in err, or "".
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
