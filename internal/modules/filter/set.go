package filter

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// SetConfig represents the configuration for a set filter module.
type SetConfig struct {
	// Target is the field to set. Supports nested paths like "user.address.city"
	// and array indices like "items[0].status".
	Target string `json:"target"`
	// Value is the static value to assign. May be any JSON value, including null.
	Value interface{} `json:"value"`
}

// SetModule implements a filter that assigns a static value to a field
// on every record. Missing intermediate objects are created on demand.
// Records are mutated in place; the same map references flow downstream.
type SetModule struct {
	target string
	value  interface{}
}

// NewSetFromConfig creates a new set filter module from configuration.
func NewSetFromConfig(config SetConfig) (*SetModule, error) {
	if strings.TrimSpace(config.Target) == "" {
		return nil, fmt.Errorf("set module requires a non-empty 'target' field")
	}

	return &SetModule{
		target: config.Target,
		value:  config.Value,
	}, nil
}

// ParseSetConfig parses a raw configuration map into SetConfig.
// The "value" key must be present but may hold any value, including null.
func ParseSetConfig(cfg map[string]interface{}) (SetConfig, error) {
	config := SetConfig{}

	target, ok := cfg["target"].(string)
	if !ok || strings.TrimSpace(target) == "" {
		return config, fmt.Errorf("'target' is required and must be a non-empty string")
	}
	config.Target = target

	value, present := cfg["value"]
	if !present {
		return config, fmt.Errorf("'value' is required in set config")
	}
	config.Value = value

	return config, nil
}

// Process assigns the configured value to the target field on each record.
// All records pass through.
func (m *SetModule) Process(ctx context.Context, records []batch.Raw) ([]batch.Raw, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if records == nil {
		return []batch.Raw{}, nil
	}

	startTime := time.Now()

	for recordIdx, record := range records {
		if recordIdx > 0 && recordIdx%100 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		if record == nil {
			continue
		}

		if IsNestedPath(m.target) {
			if err := SetNestedValue(record, m.target, m.value); err != nil {
				return nil, fmt.Errorf("failed to set %q on record %d: %w", m.target, recordIdx, err)
			}
		} else {
			record[m.target] = m.value
		}
	}

	logger.Info("filter processing completed",
		slog.String("module_type", "set"),
		slog.String("target", m.target),
		slog.Int("record_count", len(records)),
		slog.Duration("duration", time.Since(startTime)),
	)

	return records, nil
}

// Verify interface compliance at compile time
var _ Module = (*SetModule)(nil)
