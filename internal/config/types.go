// Package config provides functionality for parsing and validating
// pipeline definition files (JSON/YAML).
//
// This file holds the result types of the three loading phases: parse
// into a generic map, validate against the embedded JSON Schema,
// convert into the typed batch.Pipeline. Phases report through these
// types rather than bare errors, so callers can distinguish a file
// that would not parse from one that parsed but violates the schema.
package config

import "fmt"

// Error type constants categorizing parse errors.
const (
	ErrorTypeIO     = "io"
	ErrorTypeSyntax = "syntax"
	ErrorTypeFormat = "format"
)

// ParseError is a parse failure tied to a position in the input.
// Line, Column and Offset are 1-based, 1-based and 0-based; a zero
// value means the decoder gave no position.
type ParseError struct {
	Path    string
	Line    int
	Column  int
	Offset  int64
	Message string

	// Type is one of the ErrorType constants.
	Type string
}

// Error renders "path: line L, column C: message", dropping the parts
// that are unknown.
func (e ParseError) Error() string {
	prefix := ""
	if e.Path != "" {
		prefix = e.Path + ": "
	}
	switch {
	case e.Line > 0 && e.Column > 0:
		return fmt.Sprintf("%sline %d, column %d: %s", prefix, e.Line, e.Column, e.Message)
	case e.Line > 0:
		return fmt.Sprintf("%sline %d: %s", prefix, e.Line, e.Message)
	default:
		return prefix + e.Message
	}
}

// ParseResult is the outcome of the parse phase.
type ParseResult struct {
	// Data is the parsed definition. Nil when parsing failed.
	Data map[string]interface{}

	// Errors holds every parse error encountered.
	Errors []ParseError

	// FilePath is the source file, empty when parsed from memory.
	FilePath string

	// Format is the detected input format, "json" or "yaml".
	Format string
}

// IsValid reports whether parsing succeeded.
func (r *ParseResult) IsValid() bool {
	return len(r.Errors) == 0
}

// ValidationError is a schema violation at a JSON pointer path.
type ValidationError struct {
	// Path locates the offending value (e.g. "/pipeline/source/type").
	// Empty means the document root.
	Path string

	// Type is the failed schema keyword (required, type, enum, ...).
	Type string

	Message string
}

func (e ValidationError) Error() string {
	if e.Path == "" {
		return e.Message
	}
	return e.Path + ": " + e.Message
}

// ValidationResult is the outcome of the schema validation phase.
type ValidationResult struct {
	Valid  bool
	Errors []ValidationError
}

// Result combines both phases for a single definition file. The CLI
// maps ParseErrors and ValidationErrors onto distinct exit codes, so
// the two lists stay separate here.
type Result struct {
	// Data is the parsed definition, present when parsing succeeded
	// even if validation then failed.
	Data map[string]interface{}

	ParseErrors      []ParseError
	ValidationErrors []ValidationError

	// FilePath is the definition file this result describes.
	FilePath string

	// Format is the detected input format, "json" or "yaml".
	Format string
}

// IsValid reports whether the definition parsed and validated cleanly.
func (r *Result) IsValid() bool {
	return len(r.ParseErrors) == 0 && len(r.ValidationErrors) == 0
}

// AllErrors flattens both error lists, parse errors first.
func (r *Result) AllErrors() []error {
	errs := make([]error, 0, len(r.ParseErrors)+len(r.ValidationErrors))
	for _, e := range r.ParseErrors {
		errs = append(errs, e)
	}
	for _, e := range r.ValidationErrors {
		errs = append(errs, e)
	}
	return errs
}
