// Package errhandling provides retry configuration and mechanism tests.
package errhandling

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/batchline/runtime/internal/database"
	"github.com/batchline/runtime/internal/gateway"
	"github.com/batchline/runtime/internal/pipeline"
	"github.com/batchline/runtime/pkg/batch"
)

// TestDefaultRetryConfig tests the default configuration values.
func TestDefaultRetryConfig(t *testing.T) {
	config := DefaultRetryConfig()

	if config.MaxAttempts != 3 {
		t.Errorf("MaxAttempts = %d, want 3", config.MaxAttempts)
	}
	if config.DelayMs != 1000 {
		t.Errorf("DelayMs = %d, want 1000", config.DelayMs)
	}
	if config.BackoffMultiplier != 2.0 {
		t.Errorf("BackoffMultiplier = %v, want 2.0", config.BackoffMultiplier)
	}
	if config.MaxDelayMs != 30000 {
		t.Errorf("MaxDelayMs = %d, want 30000", config.MaxDelayMs)
	}
}

// TestConfigFromPipeline tests mapping the errorHandling block.
func TestConfigFromPipeline(t *testing.T) {
	tests := []struct {
		name         string
		eh           *batch.ErrorHandling
		wantAttempts int
		wantDelayMs  int
	}{
		{
			name:         "nil block uses defaults",
			eh:           nil,
			wantAttempts: DefaultMaxAttempts,
			wantDelayMs:  DefaultDelayMs,
		},
		{
			name:         "explicit values",
			eh:           &batch.ErrorHandling{RetryCount: 5, RetryDelay: 200},
			wantAttempts: 5,
			wantDelayMs:  200,
		},
		{
			name:         "zero retries disables retry",
			eh:           &batch.ErrorHandling{RetryCount: 0},
			wantAttempts: 0,
			wantDelayMs:  DefaultDelayMs,
		},
		{
			name:         "excessive retries capped",
			eh:           &batch.ErrorHandling{RetryCount: 50},
			wantAttempts: MaxRetryAttempts,
			wantDelayMs:  DefaultDelayMs,
		},
		{
			name:         "negative retries clamped to zero",
			eh:           &batch.ErrorHandling{RetryCount: -1},
			wantAttempts: 0,
			wantDelayMs:  DefaultDelayMs,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := ConfigFromPipeline(tt.eh)
			if config.MaxAttempts != tt.wantAttempts {
				t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, tt.wantAttempts)
			}
			if config.DelayMs != tt.wantDelayMs {
				t.Errorf("DelayMs = %d, want %d", config.DelayMs, tt.wantDelayMs)
			}
		})
	}
}

// TestRetryConfigValidate tests configuration validation.
func TestRetryConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  RetryConfig
		wantErr bool
	}{
		{"defaults are valid", DefaultRetryConfig(), false},
		{"negative attempts", RetryConfig{MaxAttempts: -1, BackoffMultiplier: 2.0}, true},
		{"too many attempts", RetryConfig{MaxAttempts: 11, BackoffMultiplier: 2.0}, true},
		{"negative delay", RetryConfig{DelayMs: -1, BackoffMultiplier: 2.0}, true},
		{"multiplier below minimum", RetryConfig{BackoffMultiplier: 0.5}, true},
		{"negative max delay", RetryConfig{BackoffMultiplier: 2.0, MaxDelayMs: -1}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// TestCalculateDelay tests exponential backoff delay calculation.
func TestCalculateDelay(t *testing.T) {
	config := RetryConfig{
		DelayMs:           1000,
		BackoffMultiplier: 2.0,
		MaxDelayMs:        30000,
	}

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 1000 * time.Millisecond},
		{1, 2000 * time.Millisecond},
		{2, 4000 * time.Millisecond},
		{3, 8000 * time.Millisecond},
		{4, 16000 * time.Millisecond},
		{5, 30000 * time.Millisecond}, // capped
		{10, 30000 * time.Millisecond},
		{-1, 1000 * time.Millisecond}, // clamped to attempt 0
	}

	for _, tt := range tests {
		if got := config.CalculateDelay(tt.attempt); got != tt.want {
			t.Errorf("CalculateDelay(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

// TestShouldRetry tests retry decision logic.
func TestShouldRetry(t *testing.T) {
	config := RetryConfig{MaxAttempts: 3, BackoffMultiplier: 2.0}
	retryable := &gateway.WriteError{Path: "x", Err: errors.New("io")}
	fatal := &pipeline.MissingFieldError{Field: "id"}

	tests := []struct {
		name    string
		config  RetryConfig
		attempt int
		err     error
		want    bool
	}{
		{"nil error", config, 0, nil, false},
		{"retryable within attempts", config, 0, retryable, true},
		{"retryable at last attempt", config, 2, retryable, true},
		{"retryable past attempts", config, 3, retryable, false},
		{"fatal error", config, 0, fatal, false},
		{"retries disabled", RetryConfig{MaxAttempts: 0}, 0, retryable, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.ShouldRetry(tt.attempt, tt.err); got != tt.want {
				t.Errorf("ShouldRetry(%d, %v) = %v, want %v", tt.attempt, tt.err, got, tt.want)
			}
		})
	}
}

// TestParseRetryConfig tests parsing from raw config maps.
func TestParseRetryConfig(t *testing.T) {
	t.Run("nil map uses defaults", func(t *testing.T) {
		config := ParseRetryConfig(nil)
		if config.MaxAttempts != DefaultMaxAttempts {
			t.Errorf("MaxAttempts = %d, want %d", config.MaxAttempts, DefaultMaxAttempts)
		}
	})

	t.Run("json-decoded values", func(t *testing.T) {
		config := ParseRetryConfig(map[string]interface{}{
			"maxAttempts":       float64(5),
			"delayMs":           float64(250),
			"backoffMultiplier": 1.5,
			"maxDelayMs":        float64(10000),
		})

		if config.MaxAttempts != 5 {
			t.Errorf("MaxAttempts = %d, want 5", config.MaxAttempts)
		}
		if config.DelayMs != 250 {
			t.Errorf("DelayMs = %d, want 250", config.DelayMs)
		}
		if config.BackoffMultiplier != 1.5 {
			t.Errorf("BackoffMultiplier = %v, want 1.5", config.BackoffMultiplier)
		}
		if config.MaxDelayMs != 10000 {
			t.Errorf("MaxDelayMs = %d, want 10000", config.MaxDelayMs)
		}
	})

	t.Run("partial map keeps other defaults", func(t *testing.T) {
		config := ParseRetryConfig(map[string]interface{}{"maxAttempts": 1})
		if config.MaxAttempts != 1 {
			t.Errorf("MaxAttempts = %d, want 1", config.MaxAttempts)
		}
		if config.DelayMs != DefaultDelayMs {
			t.Errorf("DelayMs = %d, want default %d", config.DelayMs, DefaultDelayMs)
		}
	})
}

// TestParseOnErrorStrategy tests strategy parsing.
func TestParseOnErrorStrategy(t *testing.T) {
	tests := []struct {
		input string
		want  OnErrorStrategy
	}{
		{"fail", OnErrorFail},
		{"skip", OnErrorSkip},
		{"log", OnErrorLog},
		{"", OnErrorFail},
		{"FAIL", OnErrorFail},
		{" Skip ", OnErrorSkip},
		{"bogus", OnErrorFail},
	}

	for _, tt := range tests {
		if got := ParseOnErrorStrategy(tt.input); got != tt.want {
			t.Errorf("ParseOnErrorStrategy(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

// TestRetryExecutorSucceedsAfterRetries tests recovery from transient errors.
func TestRetryExecutorSucceedsAfterRetries(t *testing.T) {
	config := RetryConfig{MaxAttempts: 3, DelayMs: 1, BackoffMultiplier: 1.0, MaxDelayMs: 10}
	executor := NewRetryExecutor(config)

	calls := 0
	result, err := executor.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		if calls < 3 {
			return nil, database.NewLockedError("exec", errors.New("database is locked"))
		}
		return 42, nil
	})

	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if result != 42 {
		t.Errorf("result = %v, want 42", result)
	}
	if calls != 3 {
		t.Errorf("function called %d times, want 3", calls)
	}

	info := executor.GetRetryInfo()
	if info.TotalAttempts != 3 {
		t.Errorf("TotalAttempts = %d, want 3", info.TotalAttempts)
	}
	if info.SuccessfulAttempt != 3 {
		t.Errorf("SuccessfulAttempt = %d, want 3", info.SuccessfulAttempt)
	}
	if info.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", info.RetryCount)
	}
	if len(info.Errors) != 2 {
		t.Errorf("recorded %d errors, want 2", len(info.Errors))
	}
}

// TestRetryExecutorStopsOnFatal tests that fatal errors are not retried.
func TestRetryExecutorStopsOnFatal(t *testing.T) {
	config := RetryConfig{MaxAttempts: 3, DelayMs: 1, BackoffMultiplier: 1.0, MaxDelayMs: 10}
	executor := NewRetryExecutor(config)

	calls := 0
	fatal := &gateway.NotFoundError{Path: "missing.json"}
	_, err := executor.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, fatal
	})

	if !errors.Is(err, fatal) {
		t.Errorf("Execute() error = %v, want the fatal error", err)
	}
	if calls != 1 {
		t.Errorf("function called %d times, want 1 (no retry on fatal)", calls)
	}
}

// TestRetryExecutorExhaustsAttempts tests attempt exhaustion.
func TestRetryExecutorExhaustsAttempts(t *testing.T) {
	config := RetryConfig{MaxAttempts: 2, DelayMs: 1, BackoffMultiplier: 1.0, MaxDelayMs: 10}
	executor := NewRetryExecutor(config)

	calls := 0
	transient := &gateway.WriteError{Path: "out.json", Err: errors.New("io pressure")}
	_, err := executor.Execute(context.Background(), func(ctx context.Context) (interface{}, error) {
		calls++
		return nil, transient
	})

	if !errors.Is(err, transient) {
		t.Errorf("Execute() error = %v, want the transient error", err)
	}
	// Initial attempt + 2 retries.
	if calls != 3 {
		t.Errorf("function called %d times, want 3", calls)
	}
}

// TestRetryExecutorRespectsContext tests cancellation during retries.
func TestRetryExecutorRespectsContext(t *testing.T) {
	config := RetryConfig{MaxAttempts: 5, DelayMs: 5000, BackoffMultiplier: 1.0, MaxDelayMs: 5000}
	executor := NewRetryExecutor(config)

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := executor.Execute(ctx, func(ctx context.Context) (interface{}, error) {
			calls++
			return nil, &gateway.WriteError{Path: "x", Err: errors.New("io")}
		})
		done <- err
	}()

	// Cancel while the executor waits out the first retry delay.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if GetErrorCategory(err) != CategoryCanceled {
			t.Errorf("error category = %v, want canceled", GetErrorCategory(err))
		}
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not stop after cancellation")
	}

	if calls != 1 {
		t.Errorf("function called %d times, want 1", calls)
	}
}

// TestRetryExecutorCallback tests the per-attempt callback.
func TestRetryExecutorCallback(t *testing.T) {
	config := RetryConfig{MaxAttempts: 2, DelayMs: 1, BackoffMultiplier: 1.0, MaxDelayMs: 10}
	executor := NewRetryExecutor(config)

	type attemptRecord struct {
		attempt int
		failed  bool
	}
	var observed []attemptRecord

	calls := 0
	_, err := executor.ExecuteWithCallback(context.Background(),
		func(ctx context.Context) (interface{}, error) {
			calls++
			if calls == 1 {
				return nil, database.NewLockedError("exec", errors.New("locked"))
			}
			return "ok", nil
		},
		func(attempt int, err error, nextDelay time.Duration) {
			observed = append(observed, attemptRecord{attempt: attempt, failed: err != nil})
		},
	)

	if err != nil {
		t.Fatalf("ExecuteWithCallback() error = %v", err)
	}
	if len(observed) != 2 {
		t.Fatalf("callback invoked %d times, want 2", len(observed))
	}
	if !observed[0].failed || observed[0].attempt != 0 {
		t.Errorf("first callback = %+v, want failed attempt 0", observed[0])
	}
	if observed[1].failed || observed[1].attempt != 1 {
		t.Errorf("second callback = %+v, want successful attempt 1", observed[1])
	}
}
