// Package errhandling provides error classification and retry utilities
// for pipeline execution. Classification maps the typed errors of the
// core, gateway, and database layers onto categories that drive retry
// and run-status decisions.
package errhandling

import (
	"context"
	"errors"
	"fmt"

	"github.com/batchline/runtime/internal/database"
	"github.com/batchline/runtime/internal/gateway"
	"github.com/batchline/runtime/internal/pipeline"
)

// ErrorCategory represents the type/category of an error.
// Categories determine the appropriate error handling strategy.
type ErrorCategory string

// Error categories for classification.
const (
	// CategoryValidation covers records rejected for missing required
	// fields. Never retryable: the record will not grow the field.
	CategoryValidation ErrorCategory = "validation"

	// CategoryCoercion covers records whose values cannot be converted
	// to the processed shape. Never retryable.
	CategoryCoercion ErrorCategory = "coercion"

	// CategoryNotFound covers missing batch files. Not retryable: the
	// file will not appear by retrying.
	CategoryNotFound ErrorCategory = "not_found"

	// CategoryMalformedInput covers batch files that exist but cannot
	// be decoded. Not retryable.
	CategoryMalformedInput ErrorCategory = "malformed_input"

	// CategoryWriteFailure covers failed batch file writes. Retryable:
	// disk pressure and transient filesystem states clear up.
	CategoryWriteFailure ErrorCategory = "write_failure"

	// CategoryDatabase covers database errors. Retryability follows
	// the database classification (locked/timeout yes, constraint no).
	CategoryDatabase ErrorCategory = "database"

	// CategoryCanceled covers context cancellation and expired
	// deadlines. Not retryable: the same context governs any retry.
	CategoryCanceled ErrorCategory = "canceled"

	// CategoryUnknown represents unclassified errors. Not retryable.
	CategoryUnknown ErrorCategory = "unknown"
)

// ClassifiedError wraps an error with classification metadata.
type ClassifiedError struct {
	// Category is the error classification category.
	Category ErrorCategory

	// Retryable indicates whether the error is transient and can be retried.
	Retryable bool

	// Message is a human-readable error message.
	Message string

	// OriginalErr is the underlying error that was classified.
	OriginalErr error
}

// Error implements the error interface.
func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s error: %s", e.Category, e.Message)
}

// Unwrap returns the original error for use with errors.Is and errors.As.
func (e *ClassifiedError) Unwrap() error {
	return e.OriginalErr
}

// ClassifyError classifies any error into a ClassifiedError.
// Already-classified errors pass through; typed errors from the core,
// gateway, and database layers map onto their categories; everything
// else is unknown and not retried.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return &ClassifiedError{
			Category:  CategoryUnknown,
			Retryable: false,
			Message:   "nil error",
		}
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &ClassifiedError{
			Category:    CategoryCanceled,
			Retryable:   false,
			Message:     "execution canceled",
			OriginalErr: err,
		}
	}

	var missingField *pipeline.MissingFieldError
	if errors.As(err, &missingField) {
		return &ClassifiedError{
			Category:    CategoryValidation,
			Retryable:   false,
			Message:     missingField.Error(),
			OriginalErr: err,
		}
	}

	var coercion *pipeline.CoercionError
	if errors.As(err, &coercion) {
		return &ClassifiedError{
			Category:    CategoryCoercion,
			Retryable:   false,
			Message:     coercion.Error(),
			OriginalErr: err,
		}
	}

	var notFound *gateway.NotFoundError
	if errors.As(err, &notFound) {
		return &ClassifiedError{
			Category:    CategoryNotFound,
			Retryable:   false,
			Message:     notFound.Error(),
			OriginalErr: err,
		}
	}

	var malformed *gateway.MalformedBatchError
	if errors.As(err, &malformed) {
		return &ClassifiedError{
			Category:    CategoryMalformedInput,
			Retryable:   false,
			Message:     malformed.Error(),
			OriginalErr: err,
		}
	}

	var writeErr *gateway.WriteError
	if errors.As(err, &writeErr) {
		return &ClassifiedError{
			Category:    CategoryWriteFailure,
			Retryable:   true,
			Message:     writeErr.Error(),
			OriginalErr: err,
		}
	}

	var dbErr *database.DatabaseError
	if errors.As(err, &dbErr) {
		return &ClassifiedError{
			Category:    CategoryDatabase,
			Retryable:   dbErr.Retryable,
			Message:     dbErr.Error(),
			OriginalErr: err,
		}
	}

	return &ClassifiedError{
		Category:    CategoryUnknown,
		Retryable:   false,
		Message:     err.Error(),
		OriginalErr: err,
	}
}

// IsRetryable returns true if the error is classified as retryable.
// Nil errors return false.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return ClassifyError(err).Retryable
}

// IsFatal returns true if the error can never succeed on retry.
// Fatal categories: validation, coercion, not_found, malformed_input,
// canceled.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}

	switch GetErrorCategory(err) {
	case CategoryValidation, CategoryCoercion, CategoryNotFound, CategoryMalformedInput, CategoryCanceled:
		return true
	default:
		return false
	}
}

// GetErrorCategory returns the error category for a given error.
// Returns CategoryUnknown for nil or unclassified errors.
func GetErrorCategory(err error) ErrorCategory {
	if err == nil {
		return CategoryUnknown
	}
	return ClassifyError(err).Category
}
