// Package sink provides implementations for sink modules.
// ConsoleSink prints processed records to standard output.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/batchline/runtime/pkg/batch"
)

// ConsoleSink writes records to a writer as indented JSON.
// The default writer is os.Stdout.
type ConsoleSink struct {
	writer io.Writer
}

// NewConsoleSink creates a console sink writing to standard output.
func NewConsoleSink() *ConsoleSink {
	return &ConsoleSink{writer: os.Stdout}
}

// NewConsoleSinkWithWriter creates a console sink writing to w.
func NewConsoleSinkWithWriter(w io.Writer) *ConsoleSink {
	return &ConsoleSink{writer: w}
}

// Send prints all records as a single indented JSON array.
func (s *ConsoleSink) Send(ctx context.Context, records []batch.Processed) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	if records == nil {
		records = []batch.Processed{}
	}

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return 0, fmt.Errorf("marshaling records for console output: %w", err)
	}

	if _, err := fmt.Fprintln(s.writer, string(data)); err != nil {
		return 0, fmt.Errorf("writing records to console: %w", err)
	}

	return len(records), nil
}

// Close releases resources (no-op for console sink).
func (s *ConsoleSink) Close() error {
	return nil
}

// Verify ConsoleSink implements Module
var _ Module = (*ConsoleSink)(nil)
