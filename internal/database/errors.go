package database

import (
	"errors"
	"fmt"
	"strings"
)

// Error categories for database operations
const (
	CategoryConnection = "connection"
	CategoryQuery      = "query"
	CategoryConstraint = "constraint"
	CategoryLocked     = "locked"
	CategoryTimeout    = "timeout"
	CategoryUnknown    = "unknown"
)

// DatabaseError represents a categorized database error with context.
//
//nolint:revive // DatabaseError is a clear, descriptive name that doesn't stutter in practice
type DatabaseError struct {
	Category    string // Error category (connection, query, constraint, etc.)
	Operation   string // Operation that failed (select, insert, create, etc.)
	Message     string // User-friendly error message
	Query       string // The query that caused the error (sanitized, no params)
	ParamCount  int    // Number of parameters (not the values)
	OriginalErr error  // The underlying database error
	Retryable   bool   // Whether the error is transient and can be retried
}

func (e *DatabaseError) Error() string {
	var msg string
	if e.Query != "" {
		msg = fmt.Sprintf("database %s error in %s: %s", e.Category, e.Operation, e.Message)
	} else {
		msg = fmt.Sprintf("database %s error: %s", e.Category, e.Message)
	}
	if e.OriginalErr != nil {
		msg += fmt.Sprintf(" (original: %v)", e.OriginalErr)
	}
	return msg
}

func (e *DatabaseError) Unwrap() error {
	return e.OriginalErr
}

// IsRetryable returns true if the error is transient and can be retried.
func (e *DatabaseError) IsRetryable() bool {
	return e.Retryable
}

// NewDatabaseError creates a new database error with the given details.
func NewDatabaseError(category, operation, message string, originalErr error, retryable bool) *DatabaseError {
	return &DatabaseError{
		Category:    category,
		Operation:   operation,
		Message:     message,
		OriginalErr: originalErr,
		Retryable:   retryable,
	}
}

// NewConnectionError creates a connection error.
func NewConnectionError(message string, originalErr error) *DatabaseError {
	return NewDatabaseError(CategoryConnection, "connect", message, originalErr, true)
}

// NewQueryError creates a query error.
func NewQueryError(operation, message, query string, paramCount int, originalErr error, retryable bool) *DatabaseError {
	return &DatabaseError{
		Category:    CategoryQuery,
		Operation:   operation,
		Message:     message,
		Query:       sanitizeQuery(query),
		ParamCount:  paramCount,
		OriginalErr: originalErr,
		Retryable:   retryable,
	}
}

// NewConstraintError creates a constraint violation error (not retryable).
func NewConstraintError(operation, message string, originalErr error) *DatabaseError {
	return NewDatabaseError(CategoryConstraint, operation, message, originalErr, false)
}

// NewLockedError creates a busy/locked error (retryable).
// SQLite reports these when another connection holds a write lock.
func NewLockedError(operation string, originalErr error) *DatabaseError {
	return NewDatabaseError(CategoryLocked, operation, "database is locked", originalErr, true)
}

// NewTimeoutError creates a timeout error (retryable).
func NewTimeoutError(operation, message string, originalErr error) *DatabaseError {
	return NewDatabaseError(CategoryTimeout, operation, message, originalErr, true)
}

// ClassifyDatabaseError classifies a raw SQLite error into a DatabaseError.
// It analyzes the error message to determine the category and retryability.
func ClassifyDatabaseError(err error, operation, query string, paramCount int) *DatabaseError {
	if err == nil {
		return nil
	}

	errMsg := strings.ToLower(err.Error())

	if isTimeoutError(errMsg) {
		return NewTimeoutError(operation, "operation timed out", err)
	}

	if isLockedError(errMsg) {
		return NewLockedError(operation, err)
	}

	if isConnectionError(errMsg) {
		return NewConnectionError("cannot open or reach database", err)
	}

	if isConstraintError(errMsg) {
		return NewConstraintError(operation, extractConstraintMessage(errMsg), err)
	}

	if isSchemaError(errMsg) {
		return NewQueryError(operation, "query does not match schema", query, paramCount, err, false)
	}

	if isSyntaxError(errMsg) {
		return NewQueryError(operation, "SQL syntax error", query, paramCount, err, false)
	}

	return NewQueryError(operation, err.Error(), query, paramCount, err, false)
}

// isTimeoutError checks if the error is a timeout error.
func isTimeoutError(errMsg string) bool {
	timeoutIndicators := []string{
		"timeout",
		"timed out",
		"deadline exceeded",
		"context deadline",
	}

	for _, indicator := range timeoutIndicators {
		if strings.Contains(errMsg, indicator) {
			return true
		}
	}
	return false
}

// isLockedError checks for SQLite busy/locked conditions.
func isLockedError(errMsg string) bool {
	lockedIndicators := []string{
		"database is locked",
		"database table is locked",
		"database schema is locked",
		"sqlite_busy",
		"sqlite_locked",
	}

	for _, indicator := range lockedIndicators {
		if strings.Contains(errMsg, indicator) {
			return true
		}
	}
	return false
}

// isConnectionError checks if the error is a connection or file access error.
func isConnectionError(errMsg string) bool {
	connectionIndicators := []string{
		"unable to open database",
		"out of memory",
		"disk i/o error",
		"database disk image is malformed",
		"attempt to write a readonly database",
		"bad connection",
		"connection closed",
	}

	for _, indicator := range connectionIndicators {
		if strings.Contains(errMsg, indicator) {
			return true
		}
	}
	return false
}

// isConstraintError checks if the error is a constraint violation.
func isConstraintError(errMsg string) bool {
	constraintIndicators := []string{
		"unique constraint failed",
		"not null constraint failed",
		"foreign key constraint failed",
		"check constraint failed",
		"constraint violation",
		"integrity constraint",
	}

	for _, indicator := range constraintIndicators {
		if strings.Contains(errMsg, indicator) {
			return true
		}
	}
	return false
}

// isSchemaError checks for references to missing tables or columns.
func isSchemaError(errMsg string) bool {
	schemaIndicators := []string{
		"no such table",
		"no such column",
		"no such function",
		"has no column named",
	}

	for _, indicator := range schemaIndicators {
		if strings.Contains(errMsg, indicator) {
			return true
		}
	}
	return false
}

// isSyntaxError checks if the error is a SQL syntax error.
func isSyntaxError(errMsg string) bool {
	syntaxIndicators := []string{
		"syntax error",
		"parse error",
		"near \"",
		"incomplete input",
	}

	for _, indicator := range syntaxIndicators {
		if strings.Contains(errMsg, indicator) {
			return true
		}
	}
	return false
}

// extractConstraintMessage extracts a user-friendly message from a constraint error.
func extractConstraintMessage(errMsg string) string {
	if strings.Contains(errMsg, "unique") {
		return "unique constraint violation: duplicate value exists"
	}
	if strings.Contains(errMsg, "foreign key") {
		return "foreign key constraint violation: referenced record not found or still referenced"
	}
	if strings.Contains(errMsg, "not null") {
		return "not-null constraint violation: required field is null"
	}
	if strings.Contains(errMsg, "check constraint") {
		return "check constraint violation: value does not meet requirements"
	}
	return "constraint violation"
}

// sanitizeQuery removes sensitive information from a query for logging.
func sanitizeQuery(query string) string {
	if query == "" {
		return ""
	}

	// Truncate very long queries
	if len(query) > 500 {
		return query[:500] + "... (truncated)"
	}

	return query
}

// IsDatabaseError checks if the error is a DatabaseError.
func IsDatabaseError(err error) bool {
	var dbErr *DatabaseError
	return errors.As(err, &dbErr)
}

// GetDatabaseError extracts the DatabaseError from an error chain.
func GetDatabaseError(err error) *DatabaseError {
	var dbErr *DatabaseError
	if errors.As(err, &dbErr) {
		return dbErr
	}
	return nil
}

// IsRetryableError checks if a database error is retryable.
func IsRetryableError(err error) bool {
	if err == nil {
		return false
	}

	dbErr := GetDatabaseError(err)
	if dbErr != nil {
		return dbErr.Retryable
	}

	errMsg := strings.ToLower(err.Error())
	return isTimeoutError(errMsg) || isLockedError(errMsg)
}
