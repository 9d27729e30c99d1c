// Package pipeline implements the batch processing core: record validation,
// transformation into the processed shape, and aggregation helpers.
package pipeline

import "fmt"

// MissingFieldError reports a record that lacks a required field.
// The message format is a contract: validation error logs carry it verbatim.
type MissingFieldError struct {
	// Field is the name of the missing required field.
	Field string
}

func (e *MissingFieldError) Error() string {
	return "Missing required field: " + e.Field
}

// CoercionError reports a field value that could not be converted to the
// type the processed record requires.
type CoercionError struct {
	// Field is the name of the offending field.
	Field string
	// Value is the value that failed to convert.
	Value interface{}
	// Target is the name of the type the value was expected to convert to.
	Target string
}

func (e *CoercionError) Error() string {
	return fmt.Sprintf("field %q: cannot coerce %v (%T) to %s", e.Field, e.Value, e.Value, e.Target)
}
