// Package runtime provides the pipeline execution engine.
// This file wires sink delivery through the retry executor using the
// pipeline's errorHandling settings.
package runtime

import (
	"context"
	"log/slog"
	"time"

	"github.com/batchline/runtime/internal/errhandling"
	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// sinkResult holds the outcome of the sink stage.
type sinkResult struct {
	sent     int
	retries  int
	duration time.Duration
	err      error
	runError *batch.RunError

	// tolerated means the send failed but the pipeline's onError
	// setting asks the run to continue instead of failing.
	tolerated bool
}

// sendToSink delivers the records through the sink module, retrying
// transient failures per the pipeline's errorHandling block. Sinks must
// tolerate redelivery of the same records, so a retry never duplicates
// output.
func (e *Executor) sendToSink(ctx context.Context, runCtx logger.RunContext, p *batch.Pipeline, records []batch.Processed) sinkResult {
	stageCtx := runCtx
	stageCtx.Stage = StageSink
	logger.LogStageStart(stageCtx)

	retryConfig := errhandling.ConfigFromPipeline(p.ErrorHandling)
	retrier := errhandling.NewRetryExecutor(retryConfig)

	start := time.Now()
	value, err := retrier.ExecuteWithCallback(ctx,
		func(ctx context.Context) (interface{}, error) {
			return e.sinkModule.Send(ctx, records)
		},
		func(attempt int, attemptErr error, nextDelay time.Duration) {
			if attemptErr == nil {
				return
			}
			logger.Warn("sink send attempt failed",
				slog.String("pipeline_id", p.ID),
				slog.Int("attempt", attempt+1),
				slog.Int("max_attempts", retryConfig.MaxAttempts+1),
				slog.Duration("next_delay", nextDelay),
				slog.String("error", attemptErr.Error()),
			)
		},
	)
	duration := time.Since(start)
	info := retrier.GetRetryInfo()

	res := sinkResult{retries: info.RetryCount, duration: duration}
	if err != nil {
		res.err = err
		res.runError = newRunError(ErrCodeSinkFailed, StageSink, err)
		if info.RetryCount > 0 {
			res.runError.Details = map[string]interface{}{"retries": info.RetryCount}
		}
		res.tolerated = onErrorStrategy(p.ErrorHandling) != errhandling.OnErrorFail
		logger.LogStageEnd(stageCtx, 0, duration, &logger.StageError{
			Code:    ErrCodeSinkFailed,
			Message: err.Error(),
		})
		if res.tolerated {
			logger.Warn("sink delivery failed; continuing per onError setting",
				slog.String("pipeline_id", p.ID),
				slog.String("on_error", string(onErrorStrategy(p.ErrorHandling))),
				slog.Int("records_undelivered", len(records)),
			)
		}
		return res
	}

	sent, _ := value.(int)
	res.sent = sent
	logger.LogStageEnd(stageCtx, sent, duration, nil)
	return res
}

// onErrorStrategy resolves the pipeline's sink failure strategy,
// defaulting to fail.
func onErrorStrategy(eh *batch.ErrorHandling) errhandling.OnErrorStrategy {
	if eh == nil {
		return errhandling.OnErrorFail
	}
	return errhandling.ParseOnErrorStrategy(eh.OnError)
}
