// Package errhandling provides retry configuration and mechanism for
// pipeline execution. This file defines retry configuration parsing,
// delay calculation, and the retry executor used around sink sends.
package errhandling

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/batchline/runtime/pkg/batch"
)

// Default retry configuration values
const (
	DefaultMaxAttempts       = 3
	DefaultDelayMs           = 1000
	DefaultBackoffMultiplier = 2.0
	DefaultMaxDelayMs        = 30000
	MaxRetryAttempts         = 10
	MinBackoffMultiplier     = 1.0
)

// OnErrorStrategy defines what action to take when an error occurs.
type OnErrorStrategy string

// Error handling strategies
const (
	// OnErrorFail stops execution and returns the error (default).
	OnErrorFail OnErrorStrategy = "fail"

	// OnErrorSkip skips the failed record and continues execution.
	OnErrorSkip OnErrorStrategy = "skip"

	// OnErrorLog logs the error and continues execution.
	OnErrorLog OnErrorStrategy = "log"
)

// RetryConfig holds retry configuration for pipeline execution.
// It determines how transient errors are handled with automatic retries.
type RetryConfig struct {
	// MaxAttempts is the maximum number of retry attempts (0 = no retry).
	// Default: 3, Max: 10
	MaxAttempts int

	// DelayMs is the initial delay between retries in milliseconds.
	// Default: 1000
	DelayMs int

	// BackoffMultiplier is the multiplier for exponential backoff.
	// Default: 2.0, Min: 1.0
	BackoffMultiplier float64

	// MaxDelayMs is the maximum delay between retries in milliseconds.
	// Default: 30000
	MaxDelayMs int
}

// DefaultRetryConfig returns the default retry configuration.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:       DefaultMaxAttempts,
		DelayMs:           DefaultDelayMs,
		BackoffMultiplier: DefaultBackoffMultiplier,
		MaxDelayMs:        DefaultMaxDelayMs,
	}
}

// ConfigFromPipeline maps a pipeline's errorHandling block onto a
// RetryConfig. A nil block yields the defaults; retry counts are capped
// at MaxRetryAttempts.
func ConfigFromPipeline(eh *batch.ErrorHandling) RetryConfig {
	config := DefaultRetryConfig()
	if eh == nil {
		return config
	}

	config.MaxAttempts = eh.RetryCount
	if config.MaxAttempts < 0 {
		config.MaxAttempts = 0
	}
	if config.MaxAttempts > MaxRetryAttempts {
		config.MaxAttempts = MaxRetryAttempts
	}

	if eh.RetryDelay > 0 {
		config.DelayMs = eh.RetryDelay
	}

	return config
}

// Validate validates the retry configuration.
// Returns an error if any value is out of valid range.
func (c RetryConfig) Validate() error {
	if c.MaxAttempts < 0 {
		return errors.New("maxAttempts must be >= 0")
	}
	if c.MaxAttempts > MaxRetryAttempts {
		return fmt.Errorf("maxAttempts must be <= %d", MaxRetryAttempts)
	}
	if c.DelayMs < 0 {
		return errors.New("delayMs must be >= 0")
	}
	if c.BackoffMultiplier < MinBackoffMultiplier {
		return fmt.Errorf("backoffMultiplier must be >= %v", MinBackoffMultiplier)
	}
	if c.MaxDelayMs < 0 {
		return errors.New("maxDelayMs must be >= 0")
	}
	return nil
}

// CalculateDelay calculates the retry delay for a given attempt using
// exponential backoff: min(delayMs * backoffMultiplier^attempt, maxDelayMs).
func (c RetryConfig) CalculateDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}

	delayMs := float64(c.DelayMs) * math.Pow(c.BackoffMultiplier, float64(attempt))

	if delayMs > float64(c.MaxDelayMs) {
		delayMs = float64(c.MaxDelayMs)
	}

	return time.Duration(delayMs) * time.Millisecond
}

// ShouldRetry determines if a retry should be attempted based on the
// attempt number and error. Returns false if:
//   - Error is nil
//   - MaxAttempts is 0 (retries disabled)
//   - Current attempt >= MaxAttempts
//   - Error is not retryable
func (c RetryConfig) ShouldRetry(attempt int, err error) bool {
	if err == nil {
		return false
	}
	if c.MaxAttempts == 0 {
		return false
	}
	if attempt >= c.MaxAttempts {
		return false
	}
	return IsRetryable(err)
}

// ParseRetryConfig parses retry configuration from a raw config map.
// Missing values are filled with defaults.
func ParseRetryConfig(m map[string]interface{}) RetryConfig {
	config := DefaultRetryConfig()

	if m == nil {
		return config
	}

	if maxAttempts, ok := getInt(m, "maxAttempts"); ok {
		config.MaxAttempts = maxAttempts
	}

	if delayMs, ok := getInt(m, "delayMs"); ok {
		config.DelayMs = delayMs
	}

	if backoffMultiplier, ok := getFloat(m, "backoffMultiplier"); ok {
		config.BackoffMultiplier = backoffMultiplier
	}

	if maxDelayMs, ok := getInt(m, "maxDelayMs"); ok {
		config.MaxDelayMs = maxDelayMs
	}

	return config
}

// ParseOnErrorStrategy parses an error strategy string.
// Returns OnErrorFail for invalid or empty input.
func ParseOnErrorStrategy(s string) OnErrorStrategy {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "fail", "":
		return OnErrorFail
	case "skip":
		return OnErrorSkip
	case "log":
		return OnErrorLog
	default:
		return OnErrorFail
	}
}

// getInt extracts an int value from a map, handling float64 (JSON) and int types.
func getInt(m map[string]interface{}, key string) (int, bool) {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case float64:
			return int(val), true
		case int:
			return val, true
		case int64:
			return int(val), true
		}
	}
	return 0, false
}

// getFloat extracts a float64 value from a map.
func getFloat(m map[string]interface{}, key string) (float64, bool) {
	if v, ok := m[key]; ok {
		switch val := v.(type) {
		case float64:
			return val, true
		case int:
			return float64(val), true
		case int64:
			return float64(val), true
		}
	}
	return 0, false
}

// ============================
// Retry Executor
// ============================

// RetryFunc is a function that can be retried.
type RetryFunc func(ctx context.Context) (interface{}, error)

// RetryInfo contains information about retry attempts.
type RetryInfo struct {
	// TotalAttempts is the total number of attempts made.
	TotalAttempts int

	// SuccessfulAttempt is the attempt number that succeeded (0 if failed).
	SuccessfulAttempt int

	// RetryCount is the number of retries (TotalAttempts - 1).
	RetryCount int

	// TotalDuration is the total time spent including retries.
	TotalDuration time.Duration

	// Delays is the list of delays between retries.
	Delays []time.Duration

	// Errors is the list of errors encountered during retries.
	Errors []error
}

// RetryExecutor executes functions with retry logic.
type RetryExecutor struct {
	config    RetryConfig
	retryInfo RetryInfo
}

// NewRetryExecutor creates a new retry executor with the given configuration.
func NewRetryExecutor(config RetryConfig) *RetryExecutor {
	return &RetryExecutor{
		config: config,
		retryInfo: RetryInfo{
			Delays: make([]time.Duration, 0),
			Errors: make([]error, 0),
		},
	}
}

// Execute runs the given function with retry logic.
// It retries on transient errors up to MaxAttempts times.
func (e *RetryExecutor) Execute(ctx context.Context, fn RetryFunc) (interface{}, error) {
	return e.ExecuteWithCallback(ctx, fn, nil)
}

// ExecuteWithCallback executes the function with retry and calls the
// callback after each attempt. The callback receives the attempt number
// (0-indexed), the error (nil on success), and the delay before the
// next retry.
func (e *RetryExecutor) ExecuteWithCallback(
	ctx context.Context,
	fn RetryFunc,
	callback func(attempt int, err error, nextDelay time.Duration),
) (interface{}, error) {
	startTime := time.Now()
	e.retryInfo = RetryInfo{
		Delays: make([]time.Duration, 0),
		Errors: make([]error, 0),
	}

	var lastErr error
	maxAttempts := e.config.MaxAttempts + 1 // Initial attempt + retries

	for attempt := 0; attempt < maxAttempts; attempt++ {
		e.retryInfo.TotalAttempts = attempt + 1

		// Check context before attempt
		select {
		case <-ctx.Done():
			e.retryInfo.TotalDuration = time.Since(startTime)
			return nil, ClassifyError(ctx.Err())
		default:
		}

		result, err := fn(ctx)

		if err == nil {
			if callback != nil {
				callback(attempt, nil, 0)
			}
			e.retryInfo.SuccessfulAttempt = attempt + 1
			e.retryInfo.RetryCount = attempt
			e.retryInfo.TotalDuration = time.Since(startTime)
			return result, nil
		}

		lastErr = err
		e.retryInfo.Errors = append(e.retryInfo.Errors, err)

		classified := ClassifyError(err)

		// Calculate delay (even if we won't use it, for the callback)
		var delay time.Duration
		if attempt < e.config.MaxAttempts && classified.Retryable {
			delay = e.config.CalculateDelay(attempt)
			e.retryInfo.Delays = append(e.retryInfo.Delays, delay)
		}

		if callback != nil {
			callback(attempt, err, delay)
		}

		// Don't retry fatal errors
		if !classified.Retryable {
			e.retryInfo.TotalDuration = time.Since(startTime)
			return nil, err
		}

		// Don't retry if we've exhausted attempts
		if attempt >= e.config.MaxAttempts {
			break
		}

		// Wait before retry (respect context cancellation)
		select {
		case <-ctx.Done():
			e.retryInfo.TotalDuration = time.Since(startTime)
			return nil, ClassifyError(ctx.Err())
		case <-time.After(delay):
		}
	}

	e.retryInfo.RetryCount = e.retryInfo.TotalAttempts - 1
	e.retryInfo.TotalDuration = time.Since(startTime)
	return nil, lastErr
}

// GetRetryInfo returns information about the retry attempts.
func (e *RetryExecutor) GetRetryInfo() RetryInfo {
	return e.retryInfo
}
