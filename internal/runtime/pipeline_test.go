// Package runtime provides the pipeline execution engine.
package runtime

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/batchline/runtime/internal/errhandling"
	"github.com/batchline/runtime/internal/modules/filter"
	"github.com/batchline/runtime/internal/modules/sink"
	"github.com/batchline/runtime/internal/modules/source"
	"github.com/batchline/runtime/internal/persistence"
	"github.com/batchline/runtime/pkg/batch"
)

// fakeSource is a test double for source.Module.
type fakeSource struct {
	records []batch.Raw
	err     error
	fetches int
	closed  bool
}

func (f *fakeSource) Fetch(ctx context.Context) ([]batch.Raw, error) {
	f.fetches++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.records, nil
}

func (f *fakeSource) Close() error {
	f.closed = true
	return nil
}

// pathSource is a fakeSource that also reports a file path.
type pathSource struct {
	fakeSource
	path string
}

func (f *pathSource) Path() string {
	return f.path
}

// funcFilter adapts a function to the filter.Module interface.
type funcFilter struct {
	fn func(ctx context.Context, records []batch.Raw) ([]batch.Raw, error)
}

func (f *funcFilter) Process(ctx context.Context, records []batch.Raw) ([]batch.Raw, error) {
	return f.fn(ctx, records)
}

// fakeSink is a test double for sink.Module. It records every delivery
// attempt and can fail the first attempts through the errs queue.
type fakeSink struct {
	attempts int
	batches  [][]batch.Processed
	errs     []error
	closed   bool
	closeErr error
}

func (f *fakeSink) Send(_ context.Context, records []batch.Processed) (int, error) {
	f.attempts++
	f.batches = append(f.batches, records)
	if f.attempts <= len(f.errs) && f.errs[f.attempts-1] != nil {
		return 0, f.errs[f.attempts-1]
	}
	return len(records), nil
}

func (f *fakeSink) Close() error {
	f.closed = true
	return f.closeErr
}

func sampleRawRecords() []batch.Raw {
	return []batch.Raw{
		{"id": 1, "name": "alice", "value": 10.5},
		{"id": 2, "name": "bob", "value": 42},
		{"id": 3, "name": "carol", "value": 7},
	}
}

func testPipeline(id string) *batch.Pipeline {
	return &batch.Pipeline{
		ID:      id,
		Name:    "Test Pipeline",
		Version: "1.0.0",
	}
}

func TestExecuteCompletedRun(t *testing.T) {
	src := &fakeSource{records: sampleRawRecords()}
	snk := &fakeSink{}
	executor := NewExecutorWithModules(src, nil, snk, false)

	result, err := executor.Execute(context.Background(), testPipeline("pipe-1"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", result.Status, StatusCompleted)
	}
	if result.PipelineID != "pipe-1" {
		t.Errorf("PipelineID = %q, want %q", result.PipelineID, "pipe-1")
	}
	if result.RunID == "" {
		t.Error("RunID is empty")
	}
	if result.RecordsProcessed != 3 {
		t.Errorf("RecordsProcessed = %d, want 3", result.RecordsProcessed)
	}
	if result.RecordsFailed != 0 {
		t.Errorf("RecordsFailed = %d, want 0", result.RecordsFailed)
	}
	if result.SuccessRate != 100.0 {
		t.Errorf("SuccessRate = %v, want 100.0", result.SuccessRate)
	}
	if result.Error != nil {
		t.Errorf("Error = %+v, want nil", result.Error)
	}
	if result.Retries != 0 {
		t.Errorf("Retries = %d, want 0", result.Retries)
	}
	if result.StartedAt.IsZero() || result.CompletedAt.IsZero() {
		t.Error("StartedAt/CompletedAt not set")
	}
	if result.CompletedAt.Before(result.StartedAt) {
		t.Error("CompletedAt is before StartedAt")
	}

	if !src.closed {
		t.Error("source module was not closed")
	}
	if !snk.closed {
		t.Error("sink module was not closed")
	}
	if snk.attempts != 1 {
		t.Fatalf("sink attempts = %d, want 1", snk.attempts)
	}

	sent := snk.batches[0]
	if len(sent) != 3 {
		t.Fatalf("sink received %d records, want 3", len(sent))
	}
	wantNames := []string{"ALICE", "BOB", "CAROL"}
	for i, record := range sent {
		if record.DisplayName != wantNames[i] {
			t.Errorf("record %d DisplayName = %q, want %q", i, record.DisplayName, wantNames[i])
		}
		if !record.IsProcessed {
			t.Errorf("record %d IsProcessed = false", i)
		}
	}
}

func TestExecuteValidation(t *testing.T) {
	t.Run("nil pipeline", func(t *testing.T) {
		executor := NewExecutorWithModules(&fakeSource{}, nil, &fakeSink{}, false)
		result, err := executor.Execute(context.Background(), nil)
		if !errors.Is(err, ErrNilPipeline) {
			t.Fatalf("Execute() error = %v, want ErrNilPipeline", err)
		}
		if result.Status != StatusFailed {
			t.Errorf("Status = %q, want %q", result.Status, StatusFailed)
		}
		if result.Error == nil || result.Error.Code != ErrCodeInvalidPipeline {
			t.Errorf("Error = %+v, want code %s", result.Error, ErrCodeInvalidPipeline)
		}
	})

	t.Run("disabled pipeline", func(t *testing.T) {
		executor := NewExecutorWithModules(&fakeSource{}, nil, &fakeSink{}, false)
		disabled := false
		p := testPipeline("pipe-disabled")
		p.Enabled = &disabled

		result, err := executor.Execute(context.Background(), p)
		if !errors.Is(err, ErrPipelineDisabled) {
			t.Fatalf("Execute() error = %v, want ErrPipelineDisabled", err)
		}
		if result.Error == nil || result.Error.Code != ErrCodePipelineDisabled {
			t.Errorf("Error = %+v, want code %s", result.Error, ErrCodePipelineDisabled)
		}
		if result.PipelineID != "pipe-disabled" {
			t.Errorf("PipelineID = %q, want %q", result.PipelineID, "pipe-disabled")
		}
	})

	t.Run("nil source module", func(t *testing.T) {
		executor := NewExecutorWithModules(nil, nil, &fakeSink{}, false)
		_, err := executor.Execute(context.Background(), testPipeline("p"))
		if !errors.Is(err, ErrNilSourceModule) {
			t.Fatalf("Execute() error = %v, want ErrNilSourceModule", err)
		}
	})

	t.Run("nil sink module", func(t *testing.T) {
		executor := NewExecutorWithModules(&fakeSource{}, nil, nil, false)
		_, err := executor.Execute(context.Background(), testPipeline("p"))
		if !errors.Is(err, ErrNilSinkModule) {
			t.Fatalf("Execute() error = %v, want ErrNilSinkModule", err)
		}
	})

	t.Run("nil sink allowed in dry-run", func(t *testing.T) {
		src := &fakeSource{records: sampleRawRecords()}
		executor := NewExecutorWithModules(src, nil, nil, true)
		result, err := executor.Execute(context.Background(), testPipeline("p"))
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if result.Status != StatusCompleted {
			t.Errorf("Status = %q, want %q", result.Status, StatusCompleted)
		}
	})
}

func TestExecuteSourceFailure(t *testing.T) {
	src := &fakeSource{err: errors.New("boom")}
	snk := &fakeSink{}
	executor := NewExecutorWithModules(src, nil, snk, false)

	result, err := executor.Execute(context.Background(), testPipeline("pipe-src-fail"))
	if err == nil {
		t.Fatal("Execute() error = nil, want source failure")
	}
	if !strings.Contains(err.Error(), "fetching source records") {
		t.Errorf("error = %q, want fetch wrapping", err)
	}
	if result.Status != StatusFailed {
		t.Errorf("Status = %q, want %q", result.Status, StatusFailed)
	}
	if result.Error == nil || result.Error.Code != ErrCodeSourceFailed {
		t.Fatalf("Error = %+v, want code %s", result.Error, ErrCodeSourceFailed)
	}
	if result.Error.Stage != StageSource {
		t.Errorf("Error.Stage = %q, want %q", result.Error.Stage, StageSource)
	}
	if !src.closed {
		t.Error("source module was not closed after failure")
	}
	if snk.attempts != 0 {
		t.Errorf("sink attempts = %d, want 0", snk.attempts)
	}
}

func TestExecuteContextCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	src := &fakeSource{records: sampleRawRecords()}
	executor := NewExecutorWithModules(src, nil, &fakeSink{}, false)

	result, err := executor.Execute(ctx, testPipeline("pipe-canceled"))
	if err == nil {
		t.Fatal("Execute() error = nil, want cancellation")
	}
	if result.Error == nil || result.Error.Category != "canceled" {
		t.Errorf("Error = %+v, want category canceled", result.Error)
	}
	if result.Error.Retryable {
		t.Error("canceled runs must not be retryable")
	}
}

func TestExecuteFilterFailure(t *testing.T) {
	passthrough := &funcFilter{fn: func(_ context.Context, records []batch.Raw) ([]batch.Raw, error) {
		return records, nil
	}}
	failing := &funcFilter{fn: func(_ context.Context, _ []batch.Raw) ([]batch.Raw, error) {
		return nil, errors.New("bad expression")
	}}

	src := &fakeSource{records: sampleRawRecords()}
	snk := &fakeSink{}
	executor := NewExecutorWithModules(src, []filter.Module{passthrough, failing}, snk, false)

	result, err := executor.Execute(context.Background(), testPipeline("pipe-filter-fail"))
	if err == nil {
		t.Fatal("Execute() error = nil, want filter failure")
	}
	if !strings.Contains(err.Error(), "running filter module 1") {
		t.Errorf("error = %q, want filter index 1", err)
	}
	if result.Error == nil || result.Error.Code != ErrCodeFilterFailed {
		t.Fatalf("Error = %+v, want code %s", result.Error, ErrCodeFilterFailed)
	}
	if idx, ok := result.Error.Details["filter_index"].(int); !ok || idx != 1 {
		t.Errorf("Details[filter_index] = %v, want 1", result.Error.Details["filter_index"])
	}
	if snk.attempts != 0 {
		t.Errorf("sink attempts = %d, want 0", snk.attempts)
	}
}

func TestExecuteFiltersRunInOrder(t *testing.T) {
	var order []string
	first := &funcFilter{fn: func(_ context.Context, records []batch.Raw) ([]batch.Raw, error) {
		order = append(order, "first")
		return records[:2], nil
	}}
	second := &funcFilter{fn: func(_ context.Context, records []batch.Raw) ([]batch.Raw, error) {
		order = append(order, "second")
		if len(records) != 2 {
			t.Errorf("second filter saw %d records, want 2", len(records))
		}
		return records, nil
	}}

	src := &fakeSource{records: sampleRawRecords()}
	snk := &fakeSink{}
	executor := NewExecutorWithModules(src, []filter.Module{first, second}, snk, false)

	result, err := executor.Execute(context.Background(), testPipeline("pipe-filter-order"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Errorf("filter order = %v", order)
	}
	if result.RecordsProcessed != 2 {
		t.Errorf("RecordsProcessed = %d, want 2", result.RecordsProcessed)
	}
}

func TestExecutePartialStatus(t *testing.T) {
	records := []batch.Raw{
		{"id": 1, "name": "alice", "value": 10},
		{"id": 2, "value": 20},
		{"id": 3, "name": "carol", "value": 30},
		{"id": 4, "value": 40},
		{"id": 5, "name": "eve", "value": 50},
	}

	t.Run("default threshold", func(t *testing.T) {
		src := &fakeSource{records: records}
		snk := &fakeSink{}
		executor := NewExecutorWithModules(src, nil, snk, false)

		result, err := executor.Execute(context.Background(), testPipeline("pipe-partial"))
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if result.Status != StatusPartial {
			t.Errorf("Status = %q, want %q", result.Status, StatusPartial)
		}
		if result.RecordsProcessed != 3 {
			t.Errorf("RecordsProcessed = %d, want 3", result.RecordsProcessed)
		}
		if result.RecordsFailed != 2 {
			t.Errorf("RecordsFailed = %d, want 2", result.RecordsFailed)
		}
		if len(snk.batches) != 1 || len(snk.batches[0]) != 3 {
			t.Errorf("sink received %v batches", snk.batches)
		}
	})

	t.Run("raised threshold keeps run completed", func(t *testing.T) {
		src := &fakeSource{records: records}
		executor := NewExecutorWithModules(src, nil, &fakeSink{}, false)

		threshold := 0.5
		p := testPipeline("pipe-threshold")
		p.Processing = &batch.ProcessingConfig{ErrorThreshold: &threshold}

		result, err := executor.Execute(context.Background(), p)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if result.Status != StatusCompleted {
			t.Errorf("Status = %q, want %q", result.Status, StatusCompleted)
		}
	})
}

func TestExecuteAllRecordsFailed(t *testing.T) {
	src := &fakeSource{records: []batch.Raw{
		{"id": 1, "value": 10},
		{"id": 2, "value": 20},
	}}
	snk := &fakeSink{}
	executor := NewExecutorWithModules(src, nil, snk, false)

	result, err := executor.Execute(context.Background(), testPipeline("pipe-all-fail"))
	if !errors.Is(err, ErrAllRecordsFailed) {
		t.Fatalf("Execute() error = %v, want ErrAllRecordsFailed", err)
	}
	if result.Status != StatusFailed {
		t.Errorf("Status = %q, want %q", result.Status, StatusFailed)
	}
	if result.Error == nil || result.Error.Code != ErrCodeProcessingFailed {
		t.Fatalf("Error = %+v, want code %s", result.Error, ErrCodeProcessingFailed)
	}
	if result.Error.Category != "validation" {
		t.Errorf("Error.Category = %q, want validation", result.Error.Category)
	}
	if result.RecordsFailed != 2 {
		t.Errorf("RecordsFailed = %d, want 2", result.RecordsFailed)
	}
	if snk.attempts != 0 {
		t.Errorf("sink attempts = %d, want 0", snk.attempts)
	}
}

func TestExecuteEmptySource(t *testing.T) {
	src := &fakeSource{records: []batch.Raw{}}
	snk := &fakeSink{}
	executor := NewExecutorWithModules(src, nil, snk, false)

	result, err := executor.Execute(context.Background(), testPipeline("pipe-empty"))
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", result.Status, StatusCompleted)
	}
	if result.RecordsProcessed != 0 || result.RecordsFailed != 0 {
		t.Errorf("counters = %d/%d, want 0/0", result.RecordsProcessed, result.RecordsFailed)
	}
	// The sink still runs so the destination reflects the latest batch.
	if snk.attempts != 1 {
		t.Errorf("sink attempts = %d, want 1", snk.attempts)
	}
}

func TestExecuteAggregation(t *testing.T) {
	src := &fakeSource{records: []batch.Raw{
		{"id": 1, "name": "a", "value": 2},
		{"id": 2, "name": "b", "value": 8},
		{"id": 3, "name": "c", "value": 4},
		{"id": 4, "name": "d", "value": 10},
	}}
	snk := &fakeSink{}
	executor := NewExecutorWithModules(src, nil, snk, false)

	threshold := 5.0
	p := testPipeline("pipe-agg")
	p.Aggregation = &batch.AggregationConfig{
		Threshold:      &threshold,
		ComputeAverage: true,
	}

	result, err := executor.Execute(context.Background(), p)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.Average == nil || *result.Average != 6.0 {
		t.Errorf("Average = %v, want 6.0", result.Average)
	}
	if result.ThresholdKept == nil || *result.ThresholdKept != 2 {
		t.Errorf("ThresholdKept = %v, want 2", result.ThresholdKept)
	}
	// RecordsProcessed counts the processor output, not the narrowed set.
	if result.RecordsProcessed != 4 {
		t.Errorf("RecordsProcessed = %d, want 4", result.RecordsProcessed)
	}

	sent := snk.batches[0]
	if len(sent) != 2 {
		t.Fatalf("sink received %d records, want 2", len(sent))
	}
	if sent[0].DisplayName != "B" || sent[1].DisplayName != "D" {
		t.Errorf("sink records = %q, %q, want B, D", sent[0].DisplayName, sent[1].DisplayName)
	}
}

func TestExecuteDryRun(t *testing.T) {
	manyRecords := make([]batch.Raw, 7)
	for i := range manyRecords {
		manyRecords[i] = batch.Raw{"id": i + 1, "name": "rec", "value": i}
	}

	t.Run("default preview limit", func(t *testing.T) {
		src := &fakeSource{records: manyRecords}
		snk := &fakeSink{}
		executor := NewExecutorWithModules(src, nil, snk, true)

		result, err := executor.Execute(context.Background(), testPipeline("pipe-dry"))
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if result.Status != StatusCompleted {
			t.Errorf("Status = %q, want %q", result.Status, StatusCompleted)
		}
		if snk.attempts != 0 {
			t.Errorf("sink attempts = %d, want 0 in dry-run", snk.attempts)
		}
		if len(result.Preview) != DefaultPreviewLimit {
			t.Errorf("Preview has %d records, want %d", len(result.Preview), DefaultPreviewLimit)
		}
		if result.RecordsProcessed != 7 {
			t.Errorf("RecordsProcessed = %d, want 7", result.RecordsProcessed)
		}
	})

	t.Run("custom preview limit", func(t *testing.T) {
		src := &fakeSource{records: manyRecords}
		executor := NewExecutorWithModules(src, nil, nil, true)

		p := testPipeline("pipe-dry-limit")
		p.DryRunOptions = &batch.DryRunOptions{PreviewLimit: 2}

		result, err := executor.Execute(context.Background(), p)
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if len(result.Preview) != 2 {
			t.Errorf("Preview has %d records, want 2", len(result.Preview))
		}
	})
}

func TestExecuteSinkRetry(t *testing.T) {
	transient := &errhandling.ClassifiedError{
		Category:    errhandling.CategoryWriteFailure,
		Retryable:   true,
		Message:     "disk briefly unavailable",
		OriginalErr: errors.New("disk briefly unavailable"),
	}

	src := &fakeSource{records: sampleRawRecords()}
	snk := &fakeSink{errs: []error{transient}}
	executor := NewExecutorWithModules(src, nil, snk, false)

	p := testPipeline("pipe-retry")
	p.ErrorHandling = &batch.ErrorHandling{RetryCount: 2, RetryDelay: 1}

	result, err := executor.Execute(context.Background(), p)
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", result.Status, StatusCompleted)
	}
	if snk.attempts != 2 {
		t.Errorf("sink attempts = %d, want 2", snk.attempts)
	}
	if result.Retries != 1 {
		t.Errorf("Retries = %d, want 1", result.Retries)
	}
	if result.Error != nil {
		t.Errorf("Error = %+v, want nil after successful retry", result.Error)
	}
}

func TestExecuteSinkFailure(t *testing.T) {
	t.Run("non-retryable fails immediately", func(t *testing.T) {
		src := &fakeSource{records: sampleRawRecords()}
		snk := &fakeSink{errs: []error{errors.New("permanent"), errors.New("permanent"), errors.New("permanent"), errors.New("permanent")}}
		executor := NewExecutorWithModules(src, nil, snk, false)

		p := testPipeline("pipe-sink-fail")
		p.ErrorHandling = &batch.ErrorHandling{RetryCount: 3, RetryDelay: 1}

		result, err := executor.Execute(context.Background(), p)
		if err == nil {
			t.Fatal("Execute() error = nil, want sink failure")
		}
		if result.Status != StatusFailed {
			t.Errorf("Status = %q, want %q", result.Status, StatusFailed)
		}
		if result.Error == nil || result.Error.Code != ErrCodeSinkFailed {
			t.Fatalf("Error = %+v, want code %s", result.Error, ErrCodeSinkFailed)
		}
		if result.Error.Stage != StageSink {
			t.Errorf("Error.Stage = %q, want %q", result.Error.Stage, StageSink)
		}
		// Unclassified errors are not retried.
		if snk.attempts != 1 {
			t.Errorf("sink attempts = %d, want 1", snk.attempts)
		}
	})

	t.Run("tolerated by onError log", func(t *testing.T) {
		src := &fakeSource{records: sampleRawRecords()}
		snk := &fakeSink{errs: []error{errors.New("permanent")}}
		executor := NewExecutorWithModules(src, nil, snk, false)

		p := testPipeline("pipe-sink-log")
		p.ErrorHandling = &batch.ErrorHandling{OnError: "log"}

		result, err := executor.Execute(context.Background(), p)
		if err != nil {
			t.Fatalf("Execute() error = %v, want tolerated failure", err)
		}
		if result.Status != StatusPartial {
			t.Errorf("Status = %q, want %q", result.Status, StatusPartial)
		}
		if result.Error == nil || result.Error.Code != ErrCodeSinkFailed {
			t.Errorf("Error = %+v, want recorded sink failure", result.Error)
		}
	})
}

func TestExecutePersistsState(t *testing.T) {
	tmpDir := t.TempDir()
	store := persistence.NewStateStore(tmpDir)

	t.Run("records the run", func(t *testing.T) {
		src := &fakeSource{records: sampleRawRecords()}
		executor := NewExecutorWithModules(src, nil, &fakeSink{}, false)
		executor.SetStateStore(store)

		result, err := executor.Execute(context.Background(), testPipeline("pipe-state"))
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}

		state, err := store.Load("pipe-state")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if state == nil {
			t.Fatal("Load() returned nil state after run")
		}
		if state.Runs != 1 {
			t.Errorf("Runs = %d, want 1", state.Runs)
		}
		if state.LastStatus != StatusCompleted {
			t.Errorf("LastStatus = %q, want %q", state.LastStatus, StatusCompleted)
		}
		if state.LifetimeProcessed != 3 || state.LifetimeFailed != 0 {
			t.Errorf("lifetime counters = %d/%d, want 3/0", state.LifetimeProcessed, state.LifetimeFailed)
		}
		if state.LastRun == nil || !state.LastRun.Equal(result.CompletedAt) {
			t.Errorf("LastRun = %v, want %v", state.LastRun, result.CompletedAt)
		}
	})

	t.Run("accumulates across runs", func(t *testing.T) {
		for i := 0; i < 2; i++ {
			src := &fakeSource{records: sampleRawRecords()}
			executor := NewExecutorWithModules(src, nil, &fakeSink{}, false)
			executor.SetStateStore(store)
			if _, err := executor.Execute(context.Background(), testPipeline("pipe-state-acc")); err != nil {
				t.Fatalf("Execute() error = %v", err)
			}
		}

		state, err := store.Load("pipe-state-acc")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if state.Runs != 2 {
			t.Errorf("Runs = %d, want 2", state.Runs)
		}
		if state.LifetimeProcessed != 6 {
			t.Errorf("LifetimeProcessed = %d, want 6", state.LifetimeProcessed)
		}
	})

	t.Run("records failed runs", func(t *testing.T) {
		src := &fakeSource{err: errors.New("boom")}
		executor := NewExecutorWithModules(src, nil, &fakeSink{}, false)
		executor.SetStateStore(store)

		if _, err := executor.Execute(context.Background(), testPipeline("pipe-state-fail")); err == nil {
			t.Fatal("Execute() error = nil, want source failure")
		}

		state, err := store.Load("pipe-state-fail")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if state == nil || state.LastStatus != StatusFailed {
			t.Fatalf("state = %+v, want failed status recorded", state)
		}
	})

	t.Run("checksums file sources", func(t *testing.T) {
		batchPath := filepath.Join(tmpDir, "records.json")
		if err := os.WriteFile(batchPath, []byte(`[{"id":1,"name":"a","value":2}]`), 0o600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}

		src := &pathSource{path: batchPath}
		src.records = sampleRawRecords()
		executor := NewExecutorWithModules(src, nil, &fakeSink{}, false)
		executor.SetStateStore(store)

		if _, err := executor.Execute(context.Background(), testPipeline("pipe-state-sum")); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}

		state, err := store.Load("pipe-state-sum")
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if len(state.LastSourceChecksum) != 16 {
			t.Errorf("LastSourceChecksum = %q, want 16 hex chars", state.LastSourceChecksum)
		}
	})

	t.Run("dry runs leave no state", func(t *testing.T) {
		src := &fakeSource{records: sampleRawRecords()}
		executor := NewExecutorWithModules(src, nil, nil, true)
		executor.SetStateStore(store)

		if _, err := executor.Execute(context.Background(), testPipeline("pipe-state-dry")); err != nil {
			t.Fatalf("Execute() error = %v", err)
		}

		exists, err := store.Exists("pipe-state-dry")
		if err != nil {
			t.Fatalf("Exists() error = %v", err)
		}
		if exists {
			t.Error("dry run wrote pipeline state")
		}
	})
}

func TestNewExecutorFromPipeline(t *testing.T) {
	t.Run("builds registered modules", func(t *testing.T) {
		p := testPipeline("pipe-factory")
		p.Source = &batch.ModuleConfig{
			Type: "inline",
			Config: map[string]interface{}{
				"records": []interface{}{
					map[string]interface{}{"id": 1, "name": "a", "value": 2.0},
				},
			},
		}
		p.Filters = []batch.ModuleConfig{
			{Type: "condition", Config: map[string]interface{}{"expression": "value > 0"}},
		}
		p.Sink = &batch.ModuleConfig{Type: "console", Config: map[string]interface{}{}}

		executor, err := NewExecutorFromPipeline(p, false)
		if err != nil {
			t.Fatalf("NewExecutorFromPipeline() error = %v", err)
		}
		if _, ok := executor.sourceModule.(*source.InlineSource); !ok {
			t.Errorf("source module is %T, want *source.InlineSource", executor.sourceModule)
		}
		if _, ok := executor.sinkModule.(*sink.ConsoleSink); !ok {
			t.Errorf("sink module is %T, want *sink.ConsoleSink", executor.sinkModule)
		}
		if len(executor.filterModules) != 1 {
			t.Errorf("filter modules = %d, want 1", len(executor.filterModules))
		}
	})

	t.Run("invalid filter config", func(t *testing.T) {
		p := testPipeline("pipe-factory-bad")
		p.Source = &batch.ModuleConfig{Type: "inline", Config: map[string]interface{}{"records": []interface{}{}}}
		p.Filters = []batch.ModuleConfig{
			{Type: "condition", Config: map[string]interface{}{}},
		}
		p.Sink = &batch.ModuleConfig{Type: "console"}

		_, err := NewExecutorFromPipeline(p, false)
		if err == nil {
			t.Fatal("NewExecutorFromPipeline() error = nil, want config error")
		}
		if !strings.Contains(err.Error(), "index 0") {
			t.Errorf("error = %q, want filter index", err)
		}
	})

	t.Run("nil pipeline", func(t *testing.T) {
		if _, err := NewExecutorFromPipeline(nil, false); !errors.Is(err, ErrNilPipeline) {
			t.Fatalf("NewExecutorFromPipeline(nil) error = %v, want ErrNilPipeline", err)
		}
	})
}

func TestPreviewRecords(t *testing.T) {
	makeRecords := func(n int) []batch.Processed {
		records := make([]batch.Processed, n)
		for i := range records {
			records[i] = batch.Processed{RecordID: i}
		}
		return records
	}

	tests := []struct {
		name    string
		count   int
		options *batch.DryRunOptions
		want    int
	}{
		{name: "under default limit", count: 3, want: 3},
		{name: "at default limit", count: 5, want: 5},
		{name: "over default limit", count: 9, want: 5},
		{name: "custom limit", count: 9, options: &batch.DryRunOptions{PreviewLimit: 7}, want: 7},
		{name: "zero limit uses default", count: 9, options: &batch.DryRunOptions{}, want: 5},
		{name: "empty input", count: 0, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := testPipeline("p")
			p.DryRunOptions = tt.options
			got := previewRecords(p, makeRecords(tt.count))
			if len(got) != tt.want {
				t.Errorf("previewRecords() returned %d records, want %d", len(got), tt.want)
			}
		})
	}
}

func TestExecuteRunIDsAreUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 3; i++ {
		src := &fakeSource{records: sampleRawRecords()}
		executor := NewExecutorWithModules(src, nil, &fakeSink{}, false)
		result, err := executor.Execute(context.Background(), testPipeline("pipe-runid"))
		if err != nil {
			t.Fatalf("Execute() error = %v", err)
		}
		if seen[result.RunID] {
			t.Fatalf("duplicate RunID %q", result.RunID)
		}
		seen[result.RunID] = true
	}
}

func TestExecuteCompletedAtMonotonic(t *testing.T) {
	src := &fakeSource{records: sampleRawRecords()}
	executor := NewExecutorWithModules(src, nil, &fakeSink{}, false)

	before := time.Now().UTC()
	result, err := executor.Execute(context.Background(), testPipeline("pipe-clock"))
	after := time.Now().UTC()
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.StartedAt.Before(before.Add(-time.Second)) || result.CompletedAt.After(after.Add(time.Second)) {
		t.Errorf("run timestamps out of range: started %v completed %v", result.StartedAt, result.CompletedAt)
	}
}
