// Package pipeline implements the batch processing core.
// This file implements the transformation of validated records into the
// processed output shape.
package pipeline

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/batchline/runtime/pkg/batch"
)

// Transform converts a validated record into its processed shape: the id is
// copied verbatim, the name is uppercased, the value is coerced to float64,
// and is_processed is set.
//
// Transform assumes the record already passed validation and does not
// re-check field presence. A non-string name or a value that cannot be
// coerced returns a *CoercionError. Pure function: no I/O, no shared state.
func Transform(record batch.Raw) (batch.Processed, error) {
	name, ok := record["name"].(string)
	if !ok {
		return batch.Processed{}, &CoercionError{Field: "name", Value: record["name"], Target: "string"}
	}

	value, ok := toFloat(record["value"])
	if !ok {
		return batch.Processed{}, &CoercionError{Field: "value", Value: record["value"], Target: "float64"}
	}

	return batch.Processed{
		RecordID:     record["id"],
		DisplayName:  strings.ToUpper(name),
		NumericValue: value,
		IsProcessed:  true,
	}, nil
}

// toFloat coerces a dynamic value to float64. It accepts the numeric types
// the JSON and database decoders produce, numeric strings, and booleans
// (1/0). The second return value is false when the value is not coercible.
func toFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int8:
		return float64(v), true
	case int16:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint:
		return float64(v), true
	case uint8:
		return float64(v), true
	case uint16:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, false
		}
		return f, true
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(trimmed, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	case bool:
		if v {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}
