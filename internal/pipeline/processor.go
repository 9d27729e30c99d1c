// Package pipeline implements the batch processing core.
// This file implements the processor that orchestrates validation and
// transformation across a batch and tracks success/failure counts.
package pipeline

import (
	"log/slog"

	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// Processor runs validation and transformation over batches of records and
// keeps cumulative success/failure counters. The counters are monotonic for
// the processor's lifetime; there is no reset. A processor is meant to be
// used sequentially by one caller.
type Processor struct {
	validator *Validator
	processed int
	failed    int
}

// NewProcessor creates a processor whose validator requires the given
// fields. With no arguments the default field set (id, name, value) is used.
func NewProcessor(required ...string) *Processor {
	return &Processor{
		validator: NewValidator(required...),
	}
}

// Results walks the batch in input order and returns one Result per record.
// Invalid records and failed transformations are counted and logged without
// halting the batch; no single bad record aborts the run.
func (p *Processor) Results(records []batch.Raw) []batch.Result {
	results := make([]batch.Result, 0, len(records))

	for i, record := range records {
		if err := p.validator.Validate(record); err != nil {
			p.failed++
			logger.Warn("record failed validation",
				slog.Int("record_index", i),
				slog.String("error", err.Error()),
			)
			results = append(results, batch.Result{Index: i, Err: err})
			continue
		}

		processed, err := Transform(record)
		if err != nil {
			p.failed++
			logger.Warn("record failed transformation",
				slog.Int("record_index", i),
				slog.String("error", err.Error()),
			)
			results = append(results, batch.Result{Index: i, Err: err})
			continue
		}

		p.processed++
		results = append(results, batch.Result{Index: i, Record: processed})
	}

	return results
}

// ProcessBatch processes the batch and returns the successfully processed
// records, in input order. Failed records are skipped, not placeholder-filled.
func (p *Processor) ProcessBatch(records []batch.Raw) []batch.Processed {
	results := p.Results(records)

	out := make([]batch.Processed, 0, len(results))
	for _, res := range results {
		if res.OK() {
			out = append(out, res.Record)
		}
	}
	return out
}

// Processed returns the cumulative count of successfully processed records.
func (p *Processor) Processed() int {
	return p.processed
}

// Failed returns the cumulative count of rejected records.
func (p *Processor) Failed() int {
	return p.failed
}

// ValidationErrors returns the validator's accumulated error messages.
func (p *Processor) ValidationErrors() []string {
	return p.validator.Errors()
}

// SuccessRate returns the processor's success rate as a percentage.
func (p *Processor) SuccessRate() float64 {
	return SuccessRate(p.processed, p.failed)
}

// Summary returns the current counters and success rate.
func (p *Processor) Summary() batch.Summary {
	return batch.Summary{
		TotalProcessed:     p.processed,
		TotalFailed:        p.failed,
		SuccessRatePercent: p.SuccessRate(),
	}
}

// SuccessRate returns processed/(processed+failed) as a percentage,
// or 0.0 when no records have been seen (avoids division by zero).
func SuccessRate(processed, failed int) float64 {
	total := processed + failed
	if total == 0 {
		return 0.0
	}
	return float64(processed) / float64(total) * 100.0
}
