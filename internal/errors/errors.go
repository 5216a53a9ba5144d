// Package errors provides structured error types for the salepipe system.
// All errors include a category, code, message, and retryable flag for
// consistent error handling across pipeline stages.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCategory classifies errors by pipeline concern.
type ErrorCategory string

const (
	ErrCategoryValidation   ErrorCategory = "VALIDATION"
	ErrCategoryConnectivity ErrorCategory = "CONNECTIVITY"
	ErrCategorySource       ErrorCategory = "SOURCE"
	ErrCategoryIntegrity    ErrorCategory = "INTEGRITY"
	ErrCategoryBatch        ErrorCategory = "BATCH"
	ErrCategoryInternal     ErrorCategory = "INTERNAL"
)

// Error codes for each category.
const (
	// Validation codes
	CodeInvalidDate = "INVALID_DATE"

	// Connectivity codes
	CodeObjectStoreUnavailable = "OBJECT_STORE_UNAVAILABLE"
	CodeWarehouseUnavailable   = "WAREHOUSE_UNAVAILABLE"

	// Source codes
	CodeObjectNotFound = "OBJECT_NOT_FOUND"
	CodeMalformedInput = "MALFORMED_INPUT"

	// Integrity codes
	CodeConstraintViolation = "CONSTRAINT_VIOLATION"
	CodeDuplicateLoad       = "DUPLICATE_LOAD"

	// Batch codes
	CodeBatchRejected = "BATCH_REJECTED"

	// Internal codes
	CodeUnexpected = "UNEXPECTED"
)

// PipelineError is the structured error type used throughout the system.
type PipelineError struct {
	Category  ErrorCategory
	Code      string
	Message   string
	Details   map[string]interface{}
	Cause     error
	Retryable bool
}

// Error returns a formatted error string.
func (e *PipelineError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s:%s] %s: %v", e.Category, e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Category, e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As compatibility.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// Is reports whether the target matches this error's category and code.
func (e *PipelineError) Is(target error) bool {
	var t *PipelineError
	if errors.As(target, &t) {
		return e.Category == t.Category && e.Code == t.Code
	}
	return false
}

// New creates a new PipelineError.
func New(category ErrorCategory, code, message string) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Retryable: isRetryable(category),
	}
}

// Wrap creates a new PipelineError wrapping an existing error.
func Wrap(category ErrorCategory, code, message string, cause error) *PipelineError {
	return &PipelineError{
		Category:  category,
		Code:      code,
		Message:   message,
		Cause:     cause,
		Retryable: isRetryable(category),
	}
}

// WithDetails returns a copy of the error with additional details.
func (e *PipelineError) WithDetails(details map[string]interface{}) *PipelineError {
	cp := *e
	cp.Details = details
	return &cp
}

// IsRetryable checks whether an error (or its chain) is retryable.
func IsRetryable(err error) bool {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCategory(err error) ErrorCategory {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// GetCode extracts the error code from an error chain.
// Returns empty string if the error is not a PipelineError.
func GetCode(err error) string {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}

// isRetryable determines if a category is retryable. Only transient
// connectivity failures are retried; everything else surfaces immediately.
func isRetryable(category ErrorCategory) bool {
	return category == ErrCategoryConnectivity
}

// Convenience constructors for common errors.

func NewValidationError(message string) *PipelineError {
	return New(ErrCategoryValidation, CodeInvalidDate, message)
}

func NewConnectivityError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategoryConnectivity, code, message, cause)
}

func NewSourceError(code, message string, cause error) *PipelineError {
	return Wrap(ErrCategorySource, code, message, cause)
}

func NewIntegrityError(message string) *PipelineError {
	return New(ErrCategoryIntegrity, CodeConstraintViolation, message)
}

func NewBatchRejectedError(message string) *PipelineError {
	return New(ErrCategoryBatch, CodeBatchRejected, message)
}

func NewInternalError(message string, cause error) *PipelineError {
	return Wrap(ErrCategoryInternal, CodeUnexpected, message, cause)
}
