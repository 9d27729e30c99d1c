// Package pipeline implements the batch processing core.
// This file implements record validation against a required-field set.
package pipeline

import "github.com/batchline/runtime/pkg/batch"

// DefaultRequiredFields is the field set every record must carry unless the
// validator was constructed with a custom set.
var DefaultRequiredFields = []string{"id", "name", "value"}

// Validator checks records for structural completeness and accumulates
// error messages across calls. It is not safe for concurrent use; each
// processing pass owns its own instance.
type Validator struct {
	required []string
	errors   []string
}

// NewValidator creates a validator for the given required fields.
// With no arguments the default field set (id, name, value) is used.
func NewValidator(required ...string) *Validator {
	if len(required) == 0 {
		required = DefaultRequiredFields
	}
	return &Validator{
		required: append([]string(nil), required...),
	}
}

// Validate checks that the record carries every required field.
// On the first missing field it records the error message in the error log
// and returns a *MissingFieldError; remaining fields are not checked.
// The record itself is never mutated.
func (v *Validator) Validate(record batch.Raw) error {
	for _, field := range v.required {
		if _, ok := record[field]; !ok {
			err := &MissingFieldError{Field: field}
			v.errors = append(v.errors, err.Error())
			return err
		}
	}
	return nil
}

// IsValid reports whether the record carries every required field.
// Like Validate, the first missing field is recorded in the error log.
func (v *Validator) IsValid(record batch.Raw) bool {
	return v.Validate(record) == nil
}

// Errors returns the accumulated validation error messages, in the order
// they were recorded.
func (v *Validator) Errors() []string {
	return append([]string(nil), v.errors...)
}

// ClearErrors empties the accumulated error log.
func (v *Validator) ClearErrors() {
	v.errors = nil
}
