// Package filter provides implementations for filter modules.
// Script module applies JavaScript transformations using the Goja engine.
package filter

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// Error codes for script module
const (
	ErrCodeScriptEmpty          = "SCRIPT_EMPTY"
	ErrCodeScriptTooLong        = "SCRIPT_TOO_LONG"
	ErrCodeCompilationFailed    = "COMPILATION_FAILED"
	ErrCodeMissingTransform     = "MISSING_TRANSFORM"
	ErrCodeNotFunction          = "NOT_FUNCTION"
	ErrCodeExecutionFailed      = "EXECUTION_FAILED"
	ErrCodeInvalidScriptFile    = "INVALID_SCRIPT_FILE"
	ErrCodeScriptFileReadFailed = "SCRIPT_FILE_READ_FAILED"
)

// MaxScriptLength is the maximum allowed script length in bytes (100KB).
const MaxScriptLength = 100 * 1024

// ScriptConfig represents the configuration for a script filter module.
// Either Script or ScriptFile must be provided (but not both).
type ScriptConfig struct {
	// Script is the inline JavaScript source containing a transform(record) function
	Script string `json:"script,omitempty"`
	// ScriptFile is the path to a JavaScript file containing the transform(record) function
	ScriptFile string `json:"scriptFile,omitempty"`
	// OnError specifies error handling mode: "fail" (default), "skip", "log"
	OnError string `json:"onError,omitempty"`
}

// ScriptModule implements a filter that runs a user-defined
// transform(record) JavaScript function over each record.
//
// Goja runtimes are not goroutine-safe; each module instance owns one
// runtime and Process must not be called concurrently on the same instance.
type ScriptModule struct {
	scriptSource string
	onError      string
	runtime      *goja.Runtime
	transformFn  goja.Callable
	interruptMu  sync.Mutex
}

// ScriptError carries structured context for script execution failures.
type ScriptError struct {
	Code        string
	Message     string
	RecordIndex int
}

func (e *ScriptError) Error() string {
	return e.Message
}

func newScriptError(code, message string, recordIdx int) *ScriptError {
	return &ScriptError{
		Code:        code,
		Message:     message,
		RecordIndex: recordIdx,
	}
}

// NewScriptFromConfig creates a new script filter module from configuration.
// The script is compiled once and must define a transform function.
//
// Goja sandboxes execution: scripts get no file system or network access.
// A console object is provided that forwards to the runtime logger.
func NewScriptFromConfig(config ScriptConfig) (*ScriptModule, error) {
	scriptSource, err := resolveScriptSource(config)
	if err != nil {
		return nil, err
	}

	if isWhitespaceOnly(scriptSource) {
		return nil, newScriptError(ErrCodeScriptEmpty, "script cannot be empty", -1)
	}
	if len(scriptSource) > MaxScriptLength {
		return nil, newScriptError(ErrCodeScriptTooLong,
			fmt.Sprintf("script exceeds maximum length: %d bytes exceeds maximum %d bytes", len(scriptSource), MaxScriptLength), -1)
	}

	onError := config.OnError
	if onError == "" {
		onError = OnErrorFail
	}
	if onError != OnErrorFail && onError != OnErrorSkip && onError != OnErrorLog {
		logger.Warn("invalid onError value for script module; defaulting to fail",
			slog.String("on_error", onError),
		)
		onError = OnErrorFail
	}

	vm := goja.New()
	installConsole(vm)

	if _, err := vm.RunString(scriptSource); err != nil {
		return nil, newScriptError(ErrCodeCompilationFailed,
			fmt.Sprintf("script compilation failed: %v", err), -1)
	}

	transformVal := vm.Get("transform")
	if transformVal == nil || goja.IsUndefined(transformVal) {
		return nil, newScriptError(ErrCodeMissingTransform, "transform function not found in script", -1)
	}
	transformFn, ok := goja.AssertFunction(transformVal)
	if !ok {
		return nil, newScriptError(ErrCodeNotFunction, "transform is not a function", -1)
	}

	logger.Debug("script module initialized",
		slog.Int("script_length", len(scriptSource)),
		slog.String("on_error", onError),
		slog.Bool("from_file", config.ScriptFile != ""),
	)

	return &ScriptModule{
		scriptSource: scriptSource,
		onError:      onError,
		runtime:      vm,
		transformFn:  transformFn,
	}, nil
}

// installConsole exposes console.log/warn/error inside the script,
// forwarding to the runtime logger.
func installConsole(vm *goja.Runtime) {
	log := func(level func(string, ...any)) func(goja.FunctionCall) goja.Value {
		return func(call goja.FunctionCall) goja.Value {
			parts := make([]string, 0, len(call.Arguments))
			for _, arg := range call.Arguments {
				parts = append(parts, arg.String())
			}
			level(strings.Join(parts, " "), slog.String("module_type", "script"))
			return goja.Undefined()
		}
	}

	console := vm.NewObject()
	_ = console.Set("log", log(logger.Debug))
	_ = console.Set("warn", log(logger.Warn))
	_ = console.Set("error", log(logger.Error))
	_ = vm.Set("console", console)
}

// resolveScriptSource returns the script source, either inline or from file.
func resolveScriptSource(config ScriptConfig) (string, error) {
	if config.Script != "" && config.ScriptFile != "" {
		return "", newScriptError(ErrCodeInvalidScriptFile,
			"cannot specify both 'script' and 'scriptFile' - use only one", -1)
	}

	if config.Script != "" {
		return config.Script, nil
	}

	if config.ScriptFile != "" {
		if err := validateScriptFilePath(config.ScriptFile); err != nil {
			return "", err
		}

		info, err := os.Stat(config.ScriptFile)
		if err != nil {
			return "", newScriptError(ErrCodeScriptFileReadFailed,
				fmt.Sprintf("failed to stat script file %q: %v", config.ScriptFile, err), -1)
		}
		if info.Size() > MaxScriptLength {
			return "", newScriptError(ErrCodeScriptTooLong,
				fmt.Sprintf("script file %q exceeds maximum length of %d bytes", config.ScriptFile, MaxScriptLength), -1)
		}

		file, err := os.Open(config.ScriptFile)
		if err != nil {
			return "", newScriptError(ErrCodeScriptFileReadFailed,
				fmt.Sprintf("failed to open script file %q: %v", config.ScriptFile, err), -1)
		}
		defer func() {
			_ = file.Close()
		}()

		// Cap the read in case the file grew between Stat and Read
		content, err := io.ReadAll(io.LimitReader(file, MaxScriptLength+1))
		if err != nil {
			return "", newScriptError(ErrCodeScriptFileReadFailed,
				fmt.Sprintf("failed to read script file %q: %v", config.ScriptFile, err), -1)
		}
		if len(content) > MaxScriptLength {
			return "", newScriptError(ErrCodeScriptTooLong,
				fmt.Sprintf("script file %q exceeds maximum length of %d bytes", config.ScriptFile, MaxScriptLength), -1)
		}

		return string(content), nil
	}

	return "", newScriptError(ErrCodeScriptEmpty, "either 'script' or 'scriptFile' must be provided", -1)
}

// validateScriptFilePath rejects paths with traversal components.
func validateScriptFilePath(filePath string) error {
	if strings.Contains(filePath, "\x00") {
		return newScriptError(ErrCodeInvalidScriptFile, "scriptFile path contains invalid characters", -1)
	}

	normalized := filepath.ToSlash(filepath.Clean(filePath))
	for _, segment := range strings.Split(normalized, "/") {
		if segment == ".." {
			return newScriptError(ErrCodeInvalidScriptFile,
				fmt.Sprintf("scriptFile path contains path traversal: %q", filePath), -1)
		}
	}

	return nil
}

// ParseScriptConfig parses a raw configuration map into ScriptConfig.
func ParseScriptConfig(cfg map[string]interface{}) (ScriptConfig, error) {
	config := ScriptConfig{}

	script, hasScript := cfg["script"].(string)
	scriptFile, hasScriptFile := cfg["scriptFile"].(string)

	if hasScript && hasScriptFile {
		return config, fmt.Errorf("cannot specify both 'script' and 'scriptFile' - use only one")
	}

	if !hasScript && !hasScriptFile {
		if cfg["script"] != nil {
			return config, fmt.Errorf("field 'script' must be a string")
		}
		if cfg["scriptFile"] != nil {
			return config, fmt.Errorf("field 'scriptFile' must be a string")
		}
		return config, fmt.Errorf("either 'script' or 'scriptFile' is required in script config")
	}

	config.Script = script
	config.ScriptFile = scriptFile

	if onError, ok := cfg["onError"].(string); ok {
		config.OnError = onError
	}

	return config, nil
}

// Process applies the transform function to each record.
// Failed transformations follow the onError mode: fail aborts, skip drops
// the record, log keeps the original record untransformed.
func (m *ScriptModule) Process(ctx context.Context, records []batch.Raw) ([]batch.Raw, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	if records == nil {
		return []batch.Raw{}, nil
	}

	startTime := time.Now()
	result := make([]batch.Raw, 0, len(records))
	skippedCount := 0
	errorCount := 0

	for recordIdx, record := range records {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		transformed, err := m.processRecord(ctx, record, recordIdx)
		if err != nil {
			errorCount++
			switch m.onError {
			case OnErrorFail:
				logger.Error("filter processing failed",
					slog.String("module_type", "script"),
					slog.Int("record_index", recordIdx),
					slog.String("error", err.Error()),
				)
				return nil, err
			case OnErrorSkip:
				skippedCount++
				logger.Warn("skipping record due to script error",
					slog.String("module_type", "script"),
					slog.Int("record_index", recordIdx),
					slog.String("error", err.Error()),
				)
				continue
			case OnErrorLog:
				logger.Error("script error (continuing)",
					slog.String("module_type", "script"),
					slog.Int("record_index", recordIdx),
					slog.String("error", err.Error()),
				)
				result = append(result, record)
				continue
			}
		}
		result = append(result, transformed)
	}

	logger.Info("filter processing completed",
		slog.String("module_type", "script"),
		slog.Int("input_records", len(records)),
		slog.Int("output_records", len(result)),
		slog.Int("skipped_records", skippedCount),
		slog.Int("error_count", errorCount),
		slog.Duration("duration", time.Since(startTime)),
	)

	return result, nil
}

// processRecord transforms a single record. A goroutine interrupts the
// JavaScript execution if the context is canceled mid-call.
func (m *ScriptModule) processRecord(ctx context.Context, record batch.Raw, recordIdx int) (batch.Raw, error) {
	interruptDone := make(chan struct{})
	defer close(interruptDone)

	go func() {
		select {
		case <-ctx.Done():
			m.interruptMu.Lock()
			m.runtime.Interrupt(ctx.Err().Error())
			m.interruptMu.Unlock()
		case <-interruptDone:
			m.interruptMu.Lock()
			m.runtime.ClearInterrupt()
			m.interruptMu.Unlock()
		}
	}()

	jsRecord := m.runtime.ToValue(map[string]interface{}(record))

	result, err := m.transformFn(goja.Undefined(), jsRecord)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, m.wrapJSError(err, recordIdx)
	}

	m.interruptMu.Lock()
	m.runtime.ClearInterrupt()
	m.interruptMu.Unlock()

	return m.exportRecord(result, recordIdx)
}

// wrapJSError converts a JavaScript error to a structured ScriptError.
func (m *ScriptModule) wrapJSError(err error, recordIdx int) error {
	if jsErr, ok := err.(*goja.Exception); ok {
		return newScriptError(ErrCodeExecutionFailed,
			fmt.Sprintf("script execution failed at record %d: %v", recordIdx, jsErr.Value()), recordIdx)
	}
	return newScriptError(ErrCodeExecutionFailed,
		fmt.Sprintf("script execution failed at record %d: %v", recordIdx, err), recordIdx)
}

// exportRecord converts the transform result back to a record map.
// The transform must return an object; null, arrays and primitives are
// rejected.
func (m *ScriptModule) exportRecord(value goja.Value, recordIdx int) (batch.Raw, error) {
	if value == nil || goja.IsUndefined(value) || goja.IsNull(value) {
		return nil, newScriptError(ErrCodeExecutionFailed,
			fmt.Sprintf("script at record %d returned null or undefined - transform must return an object", recordIdx), recordIdx)
	}

	exported := value.Export()

	if arr, ok := exported.([]interface{}); ok {
		return nil, newScriptError(ErrCodeExecutionFailed,
			fmt.Sprintf("script at record %d returned an array (length %d) - transform must return an object", recordIdx, len(arr)), recordIdx)
	}

	if result, ok := exported.(map[string]interface{}); ok {
		return result, nil
	}

	return nil, newScriptError(ErrCodeExecutionFailed,
		fmt.Sprintf("script at record %d returned %T - transform must return an object", recordIdx, exported), recordIdx)
}

// Verify interface compliance at compile time
var _ Module = (*ScriptModule)(nil)
