// Package runtime provides the pipeline execution engine.
// It orchestrates the source, filter, processing, aggregation, and sink
// stages of a batch run and reports a RunResult.
package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/batchline/runtime/internal/errhandling"
	"github.com/batchline/runtime/internal/factory"
	"github.com/batchline/runtime/internal/gateway"
	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/internal/modules/filter"
	"github.com/batchline/runtime/internal/modules/sink"
	"github.com/batchline/runtime/internal/modules/source"
	"github.com/batchline/runtime/internal/persistence"
	"github.com/batchline/runtime/internal/pipeline"
	"github.com/batchline/runtime/pkg/batch"
)

// Run status values reported in RunResult.Status.
const (
	StatusCompleted = "completed"
	StatusPartial   = "partial"
	StatusFailed    = "failed"
)

// Stage names used in logs and RunError.Stage.
const (
	StageValidate  = "validate"
	StageSource    = "source"
	StageFilter    = "filter"
	StageProcess   = "process"
	StageAggregate = "aggregate"
	StageSink      = "sink"
)

// DefaultErrorThreshold is the failure-rate fraction above which a run
// with at least one successful record is reported as partial.
const DefaultErrorThreshold = 0.1

// DefaultPreviewLimit caps the processed records carried in a dry-run
// result when the pipeline does not configure its own limit.
const DefaultPreviewLimit = 5

// stageTimings holds the per-stage durations of a run.
type stageTimings struct {
	source  time.Duration
	filter  time.Duration
	process time.Duration
	sink    time.Duration
}

// Executor runs pipeline configurations through the stage sequence
// source → filters → process → aggregate → sink.
//
// The executor interacts with modules only through their interfaces, so
// module packages can evolve independently of the engine. Modules are
// consumed by a single run: the source is closed right after its fetch
// and the sink at the end of the run.
type Executor struct {
	sourceModule  source.Module
	filterModules []filter.Module
	sinkModule    sink.Module
	store         *persistence.StateStore
	dryRun        bool
}

// NewExecutor creates an executor with only the dry-run flag set.
// Modules must be attached separately.
func NewExecutor(dryRun bool) *Executor {
	return &Executor{
		dryRun: dryRun,
	}
}

// NewExecutorWithModules creates an executor with all modules wired.
// This is the primary constructor for dependency injection; filters may
// be nil when the pipeline has none, and the sink may be nil in dry-run
// mode.
func NewExecutorWithModules(
	sourceModule source.Module,
	filterModules []filter.Module,
	sinkModule sink.Module,
	dryRun bool,
) *Executor {
	return &Executor{
		sourceModule:  sourceModule,
		filterModules: filterModules,
		sinkModule:    sinkModule,
		dryRun:        dryRun,
	}
}

// NewExecutorFromPipeline builds the modules named by the pipeline
// through the factory and returns an executor wired with them. Unknown
// module types come back as stubs, so construction only fails on invalid
// module configuration.
func NewExecutorFromPipeline(p *batch.Pipeline, dryRun bool) (*Executor, error) {
	if p == nil {
		return nil, ErrNilPipeline
	}

	sourceModule, err := factory.CreateSourceModule(p.Source)
	if err != nil {
		return nil, fmt.Errorf("creating source module: %w", err)
	}
	filterModules, err := factory.CreateFilterModules(p.Filters)
	if err != nil {
		return nil, fmt.Errorf("creating filter modules: %w", err)
	}
	sinkModule, err := factory.CreateSinkModule(p.Sink)
	if err != nil {
		return nil, fmt.Errorf("creating sink module: %w", err)
	}

	return NewExecutorWithModules(sourceModule, filterModules, sinkModule, dryRun), nil
}

// SetStateStore attaches the state store used to record run outcomes.
// Without a store (and always in dry-run mode) runs leave no state behind.
func (e *Executor) SetStateStore(store *persistence.StateStore) {
	e.store = store
}

// Execute runs a pipeline configuration through all stages.
//
// Execution flow:
//  1. Validate the pipeline and attached modules.
//  2. Fetch raw records from the source (closed immediately after).
//  3. Run filter modules in config order.
//  4. Validate and transform records; failures are counted, not fatal.
//  5. Apply aggregation when configured.
//  6. Send processed records to the sink with retries, or carry a
//     preview instead in dry-run mode.
//  7. Record the run in the pipeline state (non-dry runs with a store).
//
// The returned RunResult is always non-nil. A non-nil error means a
// stage failed outright; per-record processing failures only degrade
// the run status.
func (e *Executor) Execute(ctx context.Context, p *batch.Pipeline) (*batch.RunResult, error) {
	startedAt := time.Now().UTC()
	result := &batch.RunResult{
		RunID:     uuid.NewString(),
		Status:    StatusFailed,
		StartedAt: startedAt,
	}

	// Validate before logging, in case the pipeline is nil.
	if err := e.validateRun(p, result); err != nil {
		return result, err
	}
	result.PipelineID = p.ID

	runCtx := logger.RunContext{
		PipelineID:   p.ID,
		PipelineName: p.Name,
		RunID:        result.RunID,
		DryRun:       e.dryRun,
	}
	logger.LogRunStart(runCtx)

	var timings stageTimings
	var sourcePath string
	defer func() {
		if result.CompletedAt.IsZero() {
			result.CompletedAt = time.Now().UTC()
		}
		totalDuration := result.CompletedAt.Sub(startedAt)
		logger.LogRunEnd(runCtx, result.Status, result.RecordsProcessed, totalDuration)
		if result.Status != StatusFailed {
			logger.LogMetrics(runCtx, buildMetrics(result, totalDuration, timings))
		}
		e.persistState(p, result, sourcePath)
	}()

	if e.sinkModule != nil {
		defer e.closeModule(p.ID, "sink", e.sinkModule)
	}

	records, path, sourceDuration, err := e.fetchSource(ctx, runCtx, result)
	sourcePath = path
	timings.source = sourceDuration
	if err != nil {
		return result, err
	}

	filtered, filterDuration, err := e.runFilters(ctx, runCtx, records, result)
	timings.filter = filterDuration
	if err != nil {
		return result, err
	}

	processed, processDuration, err := e.processRecords(runCtx, p, filtered, result)
	timings.process = processDuration
	if err != nil {
		return result, err
	}

	sinkRecords := e.applyAggregation(p, processed, result)

	if e.dryRun {
		result.Preview = previewRecords(p, sinkRecords)
		e.finalizeStatus(p, result)
		logger.Info("dry-run complete; sink skipped",
			slog.String("pipeline_id", p.ID),
			slog.Int("records_would_send", len(sinkRecords)),
			slog.Int("preview_records", len(result.Preview)),
		)
		return result, nil
	}

	sinkRes := e.sendToSink(ctx, runCtx, p, sinkRecords)
	timings.sink = sinkRes.duration
	result.Retries = sinkRes.retries
	if sinkRes.err != nil {
		result.Error = sinkRes.runError
		if !sinkRes.tolerated {
			result.CompletedAt = time.Now().UTC()
			return result, fmt.Errorf("sending records to sink: %w", sinkRes.err)
		}
	}

	e.finalizeStatus(p, result)
	return result, nil
}

// validateRun checks the pipeline and modules before any stage runs.
func (e *Executor) validateRun(p *batch.Pipeline, result *batch.RunResult) error {
	if p == nil {
		logger.Error("pipeline run failed: nil pipeline configuration")
		result.CompletedAt = time.Now().UTC()
		result.Error = newRunError(ErrCodeInvalidPipeline, StageValidate, ErrNilPipeline)
		return ErrNilPipeline
	}

	if !p.IsEnabled() {
		logger.Warn("pipeline is disabled; refusing to run",
			slog.String("pipeline_id", p.ID))
		result.PipelineID = p.ID
		result.CompletedAt = time.Now().UTC()
		result.Error = newRunError(ErrCodePipelineDisabled, StageValidate, ErrPipelineDisabled)
		return ErrPipelineDisabled
	}

	if e.sourceModule == nil {
		logger.Error("pipeline run failed: source module is nil",
			slog.String("pipeline_id", p.ID))
		result.PipelineID = p.ID
		result.CompletedAt = time.Now().UTC()
		result.Error = newRunError(ErrCodeInvalidPipeline, StageValidate, ErrNilSourceModule)
		return ErrNilSourceModule
	}

	if e.sinkModule == nil && !e.dryRun {
		logger.Error("pipeline run failed: sink module is nil",
			slog.String("pipeline_id", p.ID))
		result.PipelineID = p.ID
		result.CompletedAt = time.Now().UTC()
		result.Error = newRunError(ErrCodeInvalidPipeline, StageValidate, ErrNilSinkModule)
		return ErrNilSinkModule
	}

	return nil
}

// fetchSource runs the source module and returns the raw records, the
// source path (for file sources, empty otherwise), and the stage
// duration. The source is closed as soon as the fetch returns so file
// handles and database connections are released before the later stages.
func (e *Executor) fetchSource(ctx context.Context, runCtx logger.RunContext, result *batch.RunResult) ([]batch.Raw, string, time.Duration, error) {
	stageCtx := runCtx
	stageCtx.Stage = StageSource
	logger.LogStageStart(stageCtx)

	start := time.Now()
	records, err := e.sourceModule.Fetch(ctx)
	duration := time.Since(start)

	sourcePath := ""
	if provider, ok := e.sourceModule.(source.PathProvider); ok {
		sourcePath = provider.Path()
	}
	e.closeModule(result.PipelineID, "source", e.sourceModule)
	e.sourceModule = nil // prevent double-close

	if err != nil {
		result.CompletedAt = time.Now().UTC()
		result.Error = newRunError(ErrCodeSourceFailed, StageSource, err)
		logger.LogStageEnd(stageCtx, 0, duration, &logger.StageError{
			Code:    ErrCodeSourceFailed,
			Message: err.Error(),
		})
		return nil, "", duration, fmt.Errorf("fetching source records: %w", err)
	}

	logger.LogStageEnd(stageCtx, len(records), duration, nil)
	return records, sourcePath, duration, nil
}

// runFilters applies the filter modules in config order.
func (e *Executor) runFilters(ctx context.Context, runCtx logger.RunContext, records []batch.Raw, result *batch.RunResult) ([]batch.Raw, time.Duration, error) {
	if len(e.filterModules) == 0 {
		return records, 0, nil
	}

	stageCtx := runCtx
	stageCtx.Stage = StageFilter
	logger.LogStageStart(stageCtx)

	start := time.Now()
	current := records
	for i, filterModule := range e.filterModules {
		if filterModule == nil {
			logger.Warn("nil filter module encountered; skipping",
				slog.String("pipeline_id", result.PipelineID),
				slog.Int("filter_index", i),
			)
			continue
		}

		var err error
		current, err = filterModule.Process(ctx, current)
		if err != nil {
			duration := time.Since(start)
			result.CompletedAt = time.Now().UTC()
			runErr := newRunError(ErrCodeFilterFailed, StageFilter, err)
			runErr.Message = fmt.Sprintf("filter module %d failed: %v", i, err)
			runErr.Details = map[string]interface{}{"filter_index": i}
			result.Error = runErr
			logger.LogStageEnd(stageCtx, 0, duration, &logger.StageError{
				Code:    ErrCodeFilterFailed,
				Message: runErr.Message,
			})
			return nil, duration, fmt.Errorf("running filter module %d: %w", i, err)
		}
	}
	duration := time.Since(start)

	logger.LogStageEnd(stageCtx, len(current), duration, nil)
	return current, duration, nil
}

// processRecords validates and transforms the filtered records. Bad
// records are counted and logged by the processor without aborting the
// batch; the run only fails here when a non-empty batch produces no
// processed records at all.
func (e *Executor) processRecords(runCtx logger.RunContext, p *batch.Pipeline, records []batch.Raw, result *batch.RunResult) ([]batch.Processed, time.Duration, error) {
	stageCtx := runCtx
	stageCtx.Stage = StageProcess
	logger.LogStageStart(stageCtx)

	var required []string
	if p.Processing != nil {
		required = p.Processing.RequiredFields
	}

	start := time.Now()
	processor := pipeline.NewProcessor(required...)
	processed := processor.ProcessBatch(records)
	duration := time.Since(start)

	result.RecordsProcessed = processor.Processed()
	result.RecordsFailed = processor.Failed()
	result.SuccessRate = processor.SuccessRate()

	if len(records) > 0 && len(processed) == 0 {
		result.CompletedAt = time.Now().UTC()
		result.Error = &batch.RunError{
			Code:      ErrCodeProcessingFailed,
			Message:   ErrAllRecordsFailed.Error(),
			Stage:     StageProcess,
			Category:  string(errhandling.CategoryValidation),
			Retryable: false,
		}
		logger.LogStageEnd(stageCtx, 0, duration, &logger.StageError{
			Code:    ErrCodeProcessingFailed,
			Message: ErrAllRecordsFailed.Error(),
		})
		return nil, duration, fmt.Errorf("processing records: %w", ErrAllRecordsFailed)
	}

	logger.LogStageEnd(stageCtx, len(processed), duration, nil)
	return processed, duration, nil
}

// applyAggregation computes the configured aggregates and returns the
// records the sink should receive. The average covers the full processed
// batch; threshold filtering then narrows what gets sent.
func (e *Executor) applyAggregation(p *batch.Pipeline, processed []batch.Processed, result *batch.RunResult) []batch.Processed {
	if p.Aggregation == nil {
		return processed
	}

	out := processed
	attrs := []any{
		slog.String("pipeline_id", p.ID),
		slog.String("stage", StageAggregate),
	}

	if p.Aggregation.ComputeAverage {
		average := pipeline.AverageValue(processed)
		result.Average = &average
		attrs = append(attrs, slog.Float64("average", average))
	}

	if p.Aggregation.Threshold != nil {
		out = pipeline.FilterByThreshold(processed, *p.Aggregation.Threshold)
		kept := len(out)
		result.ThresholdKept = &kept
		attrs = append(attrs,
			slog.Float64("threshold", *p.Aggregation.Threshold),
			slog.Int("records_kept", kept),
			slog.Int("records_dropped", len(processed)-kept),
		)
	}

	logger.Info("aggregation applied", attrs...)
	return out
}

// previewRecords caps the processed records carried in a dry-run result.
func previewRecords(p *batch.Pipeline, records []batch.Processed) []batch.Processed {
	limit := DefaultPreviewLimit
	if p.DryRunOptions != nil && p.DryRunOptions.PreviewLimit > 0 {
		limit = p.DryRunOptions.PreviewLimit
	}
	if len(records) <= limit {
		return records
	}
	return records[:limit]
}

// finalizeStatus settles the run status from the processing counters:
// completed, or partial when the failure rate exceeds the pipeline's
// error threshold, or when a tolerated sink failure was recorded.
func (e *Executor) finalizeStatus(p *batch.Pipeline, result *batch.RunResult) {
	result.CompletedAt = time.Now().UTC()

	threshold := DefaultErrorThreshold
	if p.Processing != nil && p.Processing.ErrorThreshold != nil {
		threshold = *p.Processing.ErrorThreshold
	}

	status := StatusCompleted
	total := result.RecordsProcessed + result.RecordsFailed
	if total > 0 {
		failureRate := float64(result.RecordsFailed) / float64(total)
		if failureRate > threshold && result.RecordsProcessed > 0 {
			status = StatusPartial
		}
	}
	if result.Error != nil {
		status = StatusPartial
	}
	result.Status = status
}

// buildMetrics derives the throughput metrics logged at the end of a run.
func buildMetrics(result *batch.RunResult, totalDuration time.Duration, timings stageTimings) logger.RunMetrics {
	var recordsPerSecond float64
	var avgRecordTime time.Duration
	if result.RecordsProcessed > 0 && totalDuration > 0 {
		recordsPerSecond = float64(result.RecordsProcessed) / totalDuration.Seconds()
		avgRecordTime = totalDuration / time.Duration(result.RecordsProcessed)
	}

	return logger.RunMetrics{
		TotalDuration:    totalDuration,
		SourceDuration:   timings.source,
		FilterDuration:   timings.filter,
		ProcessDuration:  timings.process,
		SinkDuration:     timings.sink,
		RecordsProcessed: result.RecordsProcessed,
		RecordsFailed:    result.RecordsFailed,
		RecordsPerSecond: recordsPerSecond,
		AvgRecordTime:    avgRecordTime,
	}
}

// persistState folds the run outcome into the pipeline's persisted
// state. State is advisory: load and save failures are logged, never
// escalated. Dry runs and executors without a store leave no state.
func (e *Executor) persistState(p *batch.Pipeline, result *batch.RunResult, sourcePath string) {
	if e.store == nil || e.dryRun {
		return
	}

	state, err := e.store.Load(p.ID)
	if err != nil {
		logger.Warn("failed to load pipeline state; starting fresh",
			slog.String("pipeline_id", p.ID),
			slog.String("error", err.Error()),
		)
		state = nil
	}
	if state == nil {
		state = &persistence.State{PipelineID: p.ID}
	}

	state.RecordRun(result.Status, result.RecordsProcessed, result.RecordsFailed, result.CompletedAt)

	if sourcePath != "" {
		checksum, err := gateway.ChecksumFile(sourcePath)
		if err != nil {
			logger.Debug("failed to checksum source file",
				slog.String("pipeline_id", p.ID),
				slog.String("path", sourcePath),
				slog.String("error", err.Error()),
			)
		} else {
			state.LastSourceChecksum = checksum
		}
	}

	if err := e.store.Save(p.ID, state); err != nil {
		logger.Warn("failed to save pipeline state",
			slog.String("pipeline_id", p.ID),
			slog.String("error", err.Error()),
		)
	}
}

// moduleCloser is satisfied by source and sink modules.
type moduleCloser interface {
	Close() error
}

// closeModule closes a module and logs any error.
func (e *Executor) closeModule(pipelineID, moduleName string, m moduleCloser) {
	if err := m.Close(); err != nil {
		logger.Warn("failed to close module",
			slog.String("pipeline_id", pipelineID),
			slog.String("module", moduleName),
			slog.String("error", err.Error()),
		)
	}
}
