// Package batch provides public types for batch processing pipelines.
// This package is intended to be importable by external projects that need
// to interact with the Batchline runtime.
package batch

import "time"

// Raw is an unprocessed record as decoded from a batch file or database row.
// Field values keep the dynamic types produced by the decoder (string,
// float64, bool, nil, nested maps and slices for JSON input).
type Raw = map[string]interface{}

// Processed is the canonical shape of a record after processing.
// The JSON field names are a wire contract; downstream consumers of
// batch output files depend on them.
type Processed struct {
	// RecordID carries the source record's "id" value unchanged,
	// whatever its type.
	RecordID interface{} `json:"record_id"`

	// DisplayName is the source record's "name" value in upper case.
	DisplayName string `json:"display_name"`

	// NumericValue is the source record's "value" coerced to a float.
	NumericValue float64 `json:"numeric_value"`

	// IsProcessed is always true for records emitted by the processor.
	IsProcessed bool `json:"is_processed"`
}

// Result is the per-record outcome of a processing pass. Exactly one of
// Record or Err is meaningful: a nil Err means Record holds the processed
// record, a non-nil Err explains why the record at Index was rejected.
type Result struct {
	// Index is the position of the source record in the input batch.
	Index int

	// Record is the processed record. Only valid when Err is nil.
	Record Processed

	// Err is the validation or coercion error that rejected the record.
	Err error
}

// OK reports whether the record at this index was processed successfully.
func (r Result) OK() bool {
	return r.Err == nil
}

// Summary reports cumulative processing statistics.
// The JSON field names are a wire contract used by the stats output.
type Summary struct {
	// TotalProcessed is the lifetime count of successfully processed records.
	TotalProcessed int `json:"total_processed"`

	// TotalFailed is the lifetime count of rejected records.
	TotalFailed int `json:"total_failed"`

	// SuccessRatePercent is processed/(processed+failed) as a percentage.
	// 0.0 when no records have been seen.
	SuccessRatePercent float64 `json:"success_rate_percent"`
}

// Pipeline represents a complete batch pipeline configuration.
// It contains all the modules (Source, Filters, Sink) and the processing
// and aggregation settings required to run a batch end to end.
type Pipeline struct {
	// ID is the unique identifier for this pipeline
	ID string `json:"id"`

	// Name is the human-readable name of the pipeline
	Name string `json:"name"`

	// Description provides additional context about the pipeline
	Description string `json:"description,omitempty"`

	// Version is the pipeline configuration version
	Version string `json:"version"`

	// Source defines the module that reads raw records
	Source *ModuleConfig `json:"source"`

	// Filters is an ordered list of transformation modules applied
	// before processing
	Filters []ModuleConfig `json:"filters,omitempty"`

	// Processing configures record validation and transformation
	Processing *ProcessingConfig `json:"processing,omitempty"`

	// Aggregation configures threshold filtering and averaging of
	// processed records
	Aggregation *AggregationConfig `json:"aggregation,omitempty"`

	// Sink defines the module that receives processed records
	Sink *ModuleConfig `json:"sink"`

	// ErrorHandling configures retry and failure behavior for the sink
	ErrorHandling *ErrorHandling `json:"errorHandling,omitempty"`

	// DryRunOptions configures dry-run mode behavior
	DryRunOptions *DryRunOptions `json:"dryRunOptions,omitempty"`

	// Enabled indicates whether the pipeline is active.
	// A nil value means enabled.
	Enabled *bool `json:"enabled,omitempty"`

	// CreatedAt is when the pipeline was created
	CreatedAt time.Time `json:"createdAt,omitempty"`

	// UpdatedAt is when the pipeline was last modified
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}

// IsEnabled reports whether the pipeline should run.
// Pipelines without an explicit enabled flag are considered enabled.
func (p *Pipeline) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// ModuleConfig represents the configuration for a pipeline module.
// Modules can be Source, Filter, or Sink types.
type ModuleConfig struct {
	// Type identifies the module type (e.g., "file", "sqlite", "condition")
	Type string `json:"type"`

	// Config contains the module-specific configuration
	Config map[string]interface{} `json:"config"`
}

// ProcessingConfig controls record validation and transformation.
type ProcessingConfig struct {
	// RequiredFields lists the fields every record must carry.
	// Empty means the default set (id, name, value).
	RequiredFields []string `json:"requiredFields,omitempty"`

	// ErrorThreshold is the failure-rate fraction above which a run is
	// reported as partial instead of completed. Nil means the default (0.1).
	ErrorThreshold *float64 `json:"errorThreshold,omitempty"`
}

// AggregationConfig controls post-processing aggregation.
type AggregationConfig struct {
	// Threshold keeps only records whose numeric value is at least this
	// value. Nil disables threshold filtering.
	Threshold *float64 `json:"threshold,omitempty"`

	// ComputeAverage reports the mean numeric value of the processed
	// records in the run result.
	ComputeAverage bool `json:"computeAverage,omitempty"`
}

// ErrorHandling defines how sink errors should be handled during execution.
type ErrorHandling struct {
	// RetryCount is the number of retry attempts
	RetryCount int `json:"retryCount"`

	// RetryDelay is the delay between retries in milliseconds
	RetryDelay int `json:"retryDelay"`

	// OnError specifies the action on unrecoverable errors
	// ("fail", "skip", "log")
	OnError string `json:"onError"`
}

// DryRunOptions configures dry-run mode behavior.
type DryRunOptions struct {
	// PreviewLimit caps the number of processed records included in the
	// dry-run preview. Zero means the default (5).
	PreviewLimit int `json:"previewLimit,omitempty"`
}

// RunResult represents the result of a single pipeline run.
// It is persisted as part of the pipeline state file, so the JSON field
// names are a wire contract.
type RunResult struct {
	// PipelineID is the ID of the executed pipeline
	PipelineID string `json:"pipeline_id"`

	// RunID uniquely identifies this run
	RunID string `json:"run_id"`

	// Status is the run status ("completed", "partial", "failed")
	Status string `json:"status"`

	// StartedAt is when the run started
	StartedAt time.Time `json:"started_at"`

	// CompletedAt is when the run completed
	CompletedAt time.Time `json:"completed_at"`

	// RecordsProcessed is the number of records processed successfully
	RecordsProcessed int `json:"records_processed"`

	// RecordsFailed is the number of records that failed validation
	// or transformation
	RecordsFailed int `json:"records_failed"`

	// SuccessRate is processed/(processed+failed) as a percentage
	SuccessRate float64 `json:"success_rate_percent"`

	// Average is the mean numeric value of processed records.
	// Only set when aggregation requested it.
	Average *float64 `json:"average,omitempty"`

	// ThresholdKept is the number of records that survived threshold
	// filtering. Only set when a threshold was configured.
	ThresholdKept *int `json:"threshold_kept,omitempty"`

	// Retries is the number of sink retry attempts that were needed
	Retries int `json:"retries,omitempty"`

	// Error contains error details if the run failed
	Error *RunError `json:"error,omitempty"`

	// Preview contains the processed records that would have been written
	// (only set in dry-run mode, capped by DryRunOptions.PreviewLimit)
	Preview []Processed `json:"preview,omitempty"`
}

// RunError contains details about a run failure.
type RunError struct {
	// Code is the error code
	Code string `json:"code"`

	// Message is the human-readable error message
	Message string `json:"message"`

	// Stage is the pipeline stage where the error occurred
	Stage string `json:"stage,omitempty"`

	// Category is the classified error category
	Category string `json:"category,omitempty"`

	// Retryable indicates whether retrying the run could succeed
	Retryable bool `json:"retryable,omitempty"`

	// Details contains additional error context
	Details map[string]interface{} `json:"details,omitempty"`
}
