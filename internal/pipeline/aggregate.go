// Package pipeline implements the batch processing core.
// This file provides aggregation helpers over processed batches.
package pipeline

import "github.com/batchline/runtime/pkg/batch"

// FilterByThreshold returns the records whose numeric value is at least
// threshold. Records that never carried a value have numeric value 0 and
// do not pass a positive threshold. Order is preserved and the input is
// not mutated.
func FilterByThreshold(records []batch.Processed, threshold float64) []batch.Processed {
	kept := make([]batch.Processed, 0, len(records))
	for _, record := range records {
		if record.NumericValue >= threshold {
			kept = append(kept, record)
		}
	}
	return kept
}

// AverageValue returns the arithmetic mean of the records' numeric values,
// or 0.0 for an empty input (never divides by zero).
func AverageValue(records []batch.Processed) float64 {
	if len(records) == 0 {
		return 0.0
	}

	var sum float64
	for _, record := range records {
		sum += record.NumericValue
	}
	return sum / float64(len(records))
}
