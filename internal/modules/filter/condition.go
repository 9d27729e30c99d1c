// Package filter provides implementations for filter modules.
// Condition module keeps or drops records based on a boolean expression.
package filter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// Error codes for condition module
const (
	ErrCodeInvalidExpression = "INVALID_EXPRESSION"
	ErrCodeEvaluationFailed  = "EVALUATION_FAILED"
	ErrCodeNotBoolean        = "NOT_BOOLEAN"
)

// Common errors for condition module
var (
	// ErrEmptyExpression is returned when no expression is configured
	ErrEmptyExpression = errors.New("expression cannot be empty")
	// ErrInvalidExpression is returned when the expression syntax is invalid
	ErrInvalidExpression = errors.New("invalid expression syntax")
)

// Routing behavior constants
const (
	OnConditionContinue = "continue"
	OnConditionSkip     = "skip"
)

// ConditionConfig represents the configuration for a condition filter module.
type ConditionConfig struct {
	// Expression is the condition expression string (required).
	// Record fields are addressed as top-level identifiers, e.g. "value >= 50".
	Expression string `json:"expression"`
	// OnTrue specifies behavior when the condition is true:
	// "continue" (default) or "skip"
	OnTrue string `json:"onTrue,omitempty"`
	// OnFalse specifies behavior when the condition is false:
	// "continue" or "skip" (default)
	OnFalse string `json:"onFalse,omitempty"`
	// OnError specifies error handling mode: "fail" (default), "skip", "log"
	OnError string `json:"onError,omitempty"`
}

// ConditionModule implements conditional record filtering.
// It evaluates a compiled expression against each record and keeps or
// drops the record based on the result.
type ConditionModule struct {
	expression string
	onTrue     string
	onFalse    string
	onError    string
	program    *vm.Program
}

// ConditionError carries structured context for condition evaluation failures.
type ConditionError struct {
	Code        string
	Message     string
	Expression  string
	RecordIndex int
}

func (e *ConditionError) Error() string {
	return e.Message
}

func newConditionError(code, message, expression string, recordIdx int) *ConditionError {
	return &ConditionError{
		Code:        code,
		Message:     message,
		Expression:  expression,
		RecordIndex: recordIdx,
	}
}

// NewConditionFromConfig creates a new condition filter module from configuration.
// The expression is compiled once; compilation failures are reported here
// rather than at processing time.
func NewConditionFromConfig(config ConditionConfig) (*ConditionModule, error) {
	if isWhitespaceOnly(config.Expression) {
		return nil, ErrEmptyExpression
	}

	onTrue := config.OnTrue
	if onTrue == "" {
		onTrue = OnConditionContinue
	}
	if onTrue != OnConditionContinue && onTrue != OnConditionSkip {
		return nil, fmt.Errorf("invalid onTrue value: %s", onTrue)
	}

	onFalse := config.OnFalse
	if onFalse == "" {
		onFalse = OnConditionSkip
	}
	if onFalse != OnConditionContinue && onFalse != OnConditionSkip {
		return nil, fmt.Errorf("invalid onFalse value: %s", onFalse)
	}

	onError := config.OnError
	if onError == "" {
		onError = OnErrorFail
	}
	if onError != OnErrorFail && onError != OnErrorSkip && onError != OnErrorLog {
		logger.Warn("invalid onError value for condition module; defaulting to fail",
			slog.String("on_error", onError),
		)
		onError = OnErrorFail
	}

	// AllowUndefinedVariables() lets expressions mention fields that are
	// absent from some records; they evaluate to nil.
	program, err := expr.Compile(config.Expression, expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidExpression, err)
	}

	logger.Debug("condition module initialized",
		slog.String("expression", config.Expression),
		slog.String("on_true", onTrue),
		slog.String("on_false", onFalse),
		slog.String("on_error", onError),
	)

	return &ConditionModule{
		expression: config.Expression,
		onTrue:     onTrue,
		onFalse:    onFalse,
		onError:    onError,
		program:    program,
	}, nil
}

// isWhitespaceOnly checks if a string contains only whitespace characters.
func isWhitespaceOnly(s string) bool {
	for _, r := range s {
		if r != ' ' && r != '\t' && r != '\n' && r != '\r' {
			return false
		}
	}
	return true
}

// ParseConditionConfig parses a raw configuration map into ConditionConfig.
func ParseConditionConfig(cfg map[string]interface{}) (ConditionConfig, error) {
	config := ConditionConfig{}

	expression, ok := cfg["expression"].(string)
	if !ok || isWhitespaceOnly(expression) {
		return config, errors.New("'expression' is required and must be a non-empty string")
	}
	config.Expression = expression

	if v, ok := cfg["onTrue"].(string); ok {
		config.OnTrue = v
	}
	if v, ok := cfg["onFalse"].(string); ok {
		config.OnFalse = v
	}
	if v, ok := cfg["onError"].(string); ok {
		config.OnError = v
	}

	return config, nil
}

// Process evaluates the condition for each record.
// Records where the condition is true follow onTrue; false follows onFalse.
// Expressions that fail to evaluate or that produce a non-boolean result
// are handled per onError.
func (c *ConditionModule) Process(ctx context.Context, records []batch.Raw) ([]batch.Raw, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if records == nil {
		return []batch.Raw{}, nil
	}

	result := make([]batch.Raw, 0, len(records))

	for recordIdx, record := range records {
		if recordIdx > 0 && recordIdx%100 == 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
			}
		}

		keep, err := c.evaluate(record, recordIdx)
		if err != nil {
			switch c.onError {
			case OnErrorFail:
				return nil, err
			case OnErrorSkip:
				logger.Warn("skipping record due to condition error",
					slog.Int("record_index", recordIdx),
					slog.String("expression", c.expression),
					slog.String("error", err.Error()),
				)
				continue
			case OnErrorLog:
				logger.Error("condition error (continuing)",
					slog.Int("record_index", recordIdx),
					slog.String("expression", c.expression),
					slog.String("error", err.Error()),
				)
				result = append(result, record)
				continue
			default:
				return nil, err
			}
		}

		if keep {
			result = append(result, record)
		}
	}

	return result, nil
}

// evaluate runs the compiled expression against one record and maps the
// boolean outcome through onTrue/onFalse to a keep decision.
func (c *ConditionModule) evaluate(record batch.Raw, recordIdx int) (bool, error) {
	output, err := expr.Run(c.program, map[string]interface{}(record))
	if err != nil {
		return false, newConditionError(
			ErrCodeEvaluationFailed,
			fmt.Sprintf("condition evaluation failed at record %d: %v", recordIdx, err),
			c.expression,
			recordIdx,
		)
	}

	conditionResult, ok := output.(bool)
	if !ok {
		return false, newConditionError(
			ErrCodeNotBoolean,
			fmt.Sprintf("condition at record %d evaluated to %T, expected boolean", recordIdx, output),
			c.expression,
			recordIdx,
		)
	}

	if conditionResult {
		return c.onTrue == OnConditionContinue, nil
	}
	return c.onFalse == OnConditionContinue, nil
}

// Verify interface compliance at compile time
var _ Module = (*ConditionModule)(nil)
