// Package cli renders command output: definition error lists, run
// results, dry-run previews and batch statistics. Everything here
// writes directly to the process streams; errors go to stderr so that
// piped stdout stays machine-readable.
package cli

import (
	"fmt"
	"os"

	"github.com/batchline/runtime/internal/config"
)

// compactMessageLimit caps single-line error messages; longer ones are
// cut with an ellipsis and the full text is available under --verbose.
const compactMessageLimit = 80

// PrintParseErrors writes the parse error list to stderr, one line per
// error, prefixed with the file position when the decoder reported one.
func PrintParseErrors(errs []config.ParseError, verbose bool) {
	fmt.Fprintln(os.Stderr, "✗ Parse errors:")
	for _, err := range errs {
		if loc := errorLocation(err); loc != "" {
			fmt.Fprintf(os.Stderr, "  %s: %s\n", loc, err.Message)
		} else {
			fmt.Fprintf(os.Stderr, "  %s\n", err.Message)
		}
		if verbose && err.Type != "" {
			fmt.Fprintf(os.Stderr, "    Type: %s\n", err.Type)
		}
	}
}

// errorLocation renders path:line:column, omitting the parts the parser
// could not determine. Line 0 means no position information at all.
func errorLocation(err config.ParseError) string {
	switch {
	case err.Path == "":
		return ""
	case err.Line <= 0:
		return err.Path
	case err.Column <= 0:
		return fmt.Sprintf("%s:%d", err.Path, err.Line)
	default:
		return fmt.Sprintf("%s:%d:%d", err.Path, err.Line, err.Column)
	}
}

// PrintValidationErrors writes the schema validation error list to
// stderr. Compact mode shows one truncated line per error; verbose mode
// expands each into message and schema keyword. Unless quiet, a hint
// about --verbose follows the list.
func PrintValidationErrors(errs []config.ValidationError, verbose, quiet bool) {
	fmt.Fprintln(os.Stderr, "✗ Validation errors:")
	for _, err := range errs {
		path := err.Path
		if path == "" {
			path = "/"
		}
		if verbose {
			fmt.Fprintf(os.Stderr, "  %s:\n", path)
			fmt.Fprintf(os.Stderr, "    Message: %s\n", err.Message)
			if err.Type != "" {
				fmt.Fprintf(os.Stderr, "    Type: %s\n", err.Type)
			}
			continue
		}
		fmt.Fprintf(os.Stderr, "  %s: %s\n", path, truncate(err.Message, compactMessageLimit))
	}
	if !quiet {
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Hint: Use --verbose for detailed error information")
	}
}

// truncate shortens s to at most limit characters, ellipsis included.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
