// Package runtime provides the pipeline execution engine.
// This file defines the error codes, sentinel errors, and run-error
// construction shared by the execution stages.
package runtime

import (
	"errors"

	"github.com/batchline/runtime/internal/errhandling"
	"github.com/batchline/runtime/pkg/batch"
)

// Error codes carried by RunError for each failable stage.
const (
	ErrCodeInvalidPipeline  = "INVALID_PIPELINE"
	ErrCodePipelineDisabled = "PIPELINE_DISABLED"
	ErrCodeSourceFailed     = "SOURCE_FAILED"
	ErrCodeFilterFailed     = "FILTER_FAILED"
	ErrCodeProcessingFailed = "PROCESSING_FAILED"
	ErrCodeSinkFailed       = "SINK_FAILED"
)

// Common errors
var (
	// ErrNilPipeline is returned when the pipeline configuration is nil.
	ErrNilPipeline = errors.New("pipeline configuration is nil")

	// ErrPipelineDisabled is returned when the pipeline is explicitly disabled.
	ErrPipelineDisabled = errors.New("pipeline is disabled")

	// ErrNilSourceModule is returned when the source module is nil.
	ErrNilSourceModule = errors.New("source module is nil")

	// ErrNilSinkModule is returned when the sink module is nil outside dry-run.
	ErrNilSinkModule = errors.New("sink module is nil")

	// ErrAllRecordsFailed is returned when a non-empty batch yields no
	// processed records.
	ErrAllRecordsFailed = errors.New("all records failed processing")
)

// newRunError builds a RunError with the classified category and
// retryability of the underlying error.
func newRunError(code, stage string, err error) *batch.RunError {
	classified := errhandling.ClassifyError(err)
	return &batch.RunError{
		Code:      code,
		Message:   err.Error(),
		Stage:     stage,
		Category:  string(classified.Category),
		Retryable: classified.Retryable,
	}
}
