package errors

import (
	"fmt"
)

// FigureError is the structured error type for figurechat.
// It provides context for error handling, logging, and API responses.
type FigureError struct {
	// Code is the unique error code (e.g., "ERR_201_FIGURE_NOT_FOUND").
	Code string

	// Message is the human-readable error message.
	Message string

	// Category is the error category (Config, IO, Network, etc.).
	Category Category

	// Severity is the error severity level.
	Severity Severity

	// Details contains additional context as key-value pairs.
	// For validation failures this carries the field-level error map.
	Details map[string]string

	// Cause is the underlying error that caused this error.
	Cause error

	// Retryable indicates if the operation can be retried.
	Retryable bool
}

// Error implements the error interface.
func (e *FigureError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for error chain support.
func (e *FigureError) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches the target error by code.
// This enables errors.Is() to work with FigureError.
func (e *FigureError) Is(target error) bool {
	if t, ok := target.(*FigureError); ok {
		return e.Code == t.Code
	}
	return false
}

// WithDetail adds a key-value detail to the error.
// Returns the error for method chaining.
func (e *FigureError) WithDetail(key, value string) *FigureError {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

// New creates a new FigureError with the given code and message.
// Category, severity, and retryable flag are derived from the code.
func New(code string, message string, cause error) *FigureError {
	return &FigureError{
		Code:      code,
		Message:   message,
		Category:  categoryFromCode(code),
		Severity:  severityFromCode(code),
		Cause:     cause,
		Retryable: isRetryableCode(code),
	}
}

// Wrap creates a FigureError from an existing error.
// The error's message becomes the FigureError message.
func Wrap(code string, err error) *FigureError {
	if err == nil {
		return nil
	}
	return New(code, err.Error(), err)
}

// Validation creates a validation error (bad figure id, over-length text, ...).
func Validation(message string) *FigureError {
	return New(ErrCodeInvalidInput, message, nil)
}

// NotFound creates a figure-absent error.
func NotFound(figureID string) *FigureError {
	return New(ErrCodeFigureNotFound, fmt.Sprintf("figure %q not found", figureID), nil).
		WithDetail("figure_id", figureID)
}

// Decode creates a decode error (unsupported file type, empty extraction,
// corrupt bytes).
func Decode(message string, cause error) *FigureError {
	return New(ErrCodeDecodeFailed, message, cause)
}

// Embedding creates an embedding error (local model failure or remote
// non-2xx).
func Embedding(message string, cause error) *FigureError {
	return New(ErrCodeEmbeddingFailed, message, cause)
}

// Index creates an index error (vector store unavailable, BM25 rebuild
// failure).
func Index(message string, cause error) *FigureError {
	return New(ErrCodeIndexFailed, message, cause)
}

// Transport creates an LLM transport error.
func Transport(message string, cause error) *FigureError {
	return New(ErrCodeLLMTransport, message, cause)
}

// Config creates a configuration error.
func Config(message string, cause error) *FigureError {
	return New(ErrCodeConfigInvalid, message, cause)
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if fe, ok := err.(*FigureError); ok {
		return fe.Retryable
	}
	return false
}

// IsFatal checks if an error has fatal severity.
// Fatal errors should abort the current operation.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	if fe, ok := err.(*FigureError); ok {
		return fe.Severity == SeverityFatal
	}
	return false
}

// GetCode extracts the error code from a FigureError.
// Returns empty string if not a FigureError.
func GetCode(err error) string {
	if fe, ok := err.(*FigureError); ok {
		return fe.Code
	}
	return ""
}
