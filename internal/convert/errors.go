package convert

import (
	"fmt"
)

// UnsupportedFormatError indicates that no converter path exists for the
// requested (type, targetFormat) pair. Never retried.
type UnsupportedFormatError struct {
	Type   MediaType
	Format string
}

func (e *UnsupportedFormatError) Error() string {
	return fmt.Sprintf("unsupported format %q for type %q", e.Format, e.Type)
}

func (e *UnsupportedFormatError) Retryable() bool { return false }

// ValidationError indicates malformed or unreadable input. Never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid input: " + e.Reason
}

func (e *ValidationError) Retryable() bool { return false }

// ConversionError wraps a converter-internal failure. Transient failures
// (IO hiccups, resource contention) consume a retry attempt; permanent
// ones (corrupt input detected mid-conversion) do not.
type ConversionError struct {
	Cause     error
	Transient bool
}

func (e *ConversionError) Error() string {
	return "conversion failed: " + e.Cause.Error()
}

func (e *ConversionError) Unwrap() error { return e.Cause }

func (e *ConversionError) Retryable() bool { return e.Transient }

// TransientError wraps err as a retryable conversion failure.
func TransientError(err error) *ConversionError {
	return &ConversionError{Cause: err, Transient: true}
}

// PermanentError wraps err as a non-retryable conversion failure.
func PermanentError(err error) *ConversionError {
	return &ConversionError{Cause: err, Transient: false}
}
