package filter

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// RemoveConfig represents the configuration for a remove filter module.
// Target and Targets may be combined; duplicates are dropped.
type RemoveConfig struct {
	// Target is a single field to remove. Supports nested paths.
	Target string `json:"target,omitempty"`
	// Targets lists multiple fields to remove. Supports nested paths.
	Targets []string `json:"targets,omitempty"`
}

// RemoveModule implements a filter that deletes fields from every record.
// Absent fields are ignored. Records are mutated in place.
type RemoveModule struct {
	targets []string
}

// NewRemoveFromConfig creates a new remove filter module from configuration.
func NewRemoveFromConfig(config RemoveConfig) (*RemoveModule, error) {
	merged := make([]string, 0, len(config.Targets)+1)
	if config.Target != "" {
		merged = append(merged, config.Target)
	}
	merged = append(merged, config.Targets...)

	seen := make(map[string]bool, len(merged))
	targets := make([]string, 0, len(merged))
	for _, t := range merged {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		targets = append(targets, t)
	}

	if len(targets) == 0 {
		return nil, fmt.Errorf("remove module requires at least one non-empty target")
	}

	return &RemoveModule{targets: targets}, nil
}

// ParseRemoveConfig parses a raw configuration map into RemoveConfig.
func ParseRemoveConfig(cfg map[string]interface{}) (RemoveConfig, error) {
	config := RemoveConfig{}

	if target, ok := cfg["target"].(string); ok {
		config.Target = target
	}

	if raw, present := cfg["targets"]; present {
		items, ok := raw.([]interface{})
		if !ok {
			return config, fmt.Errorf("'targets' must be an array of strings")
		}
		config.Targets = make([]string, 0, len(items))
		for i, item := range items {
			s, ok := item.(string)
			if !ok {
				return config, fmt.Errorf("'targets' entry at index %d is not a string", i)
			}
			config.Targets = append(config.Targets, s)
		}
	}

	if config.Target == "" && len(config.Targets) == 0 {
		return config, fmt.Errorf("'target' or 'targets' is required in remove config")
	}

	return config, nil
}

// Process removes the configured fields from each record.
// All records pass through.
func (m *RemoveModule) Process(ctx context.Context, records []batch.Raw) ([]batch.Raw, error) {
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

		for _, target := range m.targets {
			if IsNestedPath(target) {
				DeleteNestedValue(record, target)
			} else {
				delete(record, target)
			}
		}
	}

	logger.Info("filter processing completed",
		slog.String("module_type", "remove"),
		slog.Int("target_count", len(m.targets)),
		slog.Int("record_count", len(records)),
		slog.Duration("duration", time.Since(startTime)),
	)

	return records, nil
}

// Verify interface compliance at compile time
var _ Module = (*RemoveModule)(nil)
