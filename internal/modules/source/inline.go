// Package source provides implementations for source modules.
// InlineSource serves records embedded directly in the pipeline definition.
package source

import (
	"context"
	"errors"
	"fmt"

	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// Error types for the inline source module
var (
	ErrInlineNilConfig      = errors.New("inline source configuration is nil")
	ErrInlineMissingRecords = errors.New("records is required for inline source")
)

// InlineSource returns records defined in the pipeline definition itself.
// Useful for smoke tests and examples that should not depend on external
// files or databases.
type InlineSource struct {
	records []batch.Raw
}

// NewInlineSourceFromConfig creates a new inline source module from configuration.
func NewInlineSourceFromConfig(cfg *batch.ModuleConfig) (*InlineSource, error) {
	if cfg == nil {
		return nil, ErrInlineNilConfig
	}

	raw, ok := cfg.Config["records"].([]interface{})
	if !ok {
		return nil, ErrInlineMissingRecords
	}

	records := make([]batch.Raw, 0, len(raw))
	for i, entry := range raw {
		record, isMap := entry.(map[string]interface{})
		if !isMap {
			return nil, fmt.Errorf("inline record at index %d is not an object", i)
		}
		records = append(records, record)
	}

	logger.Debug("inline source module created", "record_count", len(records))

	return &InlineSource{records: records}, nil
}

// Fetch returns a copy of the embedded records.
func (s *InlineSource) Fetch(ctx context.Context) ([]batch.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	// Copy so filters cannot mutate the definition between runs
	out := make([]batch.Raw, len(s.records))
	for i, record := range s.records {
		clone := make(batch.Raw, len(record))
		for k, v := range record {
			clone[k] = v
		}
		out[i] = clone
	}

	return out, nil
}

// Close releases resources (no-op for inline source).
func (s *InlineSource) Close() error {
	return nil
}

// Verify InlineSource implements Module
var _ Module = (*InlineSource)(nil)
