package gateway

import "fmt"

// NotFoundError is returned when a batch file does not exist.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("batch file not found: %s", e.Path)
}

// MalformedBatchError is returned when a batch file exists but cannot be
// decoded. Line and Column are 1-based and set when the JSON decoder
// reports an offset; both are zero otherwise (e.g. decompression failure).
type MalformedBatchError struct {
	Path   string
	Line   int
	Column int
	Err    error
}

func (e *MalformedBatchError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("malformed batch file %s at line %d, column %d: %v", e.Path, e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("malformed batch file %s: %v", e.Path, e.Err)
}

func (e *MalformedBatchError) Unwrap() error {
	return e.Err
}

// WriteError is returned when a batch file cannot be written.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("writing batch file %s: %v", e.Path, e.Err)
}

func (e *WriteError) Unwrap() error {
	return e.Err
}
