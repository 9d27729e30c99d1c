// Package source provides implementations for source modules.
// FileSource reads raw records from a batch file on disk.
package source

import (
	"context"
	"errors"
	"time"

	"github.com/batchline/runtime/internal/gateway"
	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// Error types for the file source module
var (
	ErrFileNilConfig   = errors.New("file source configuration is nil")
	ErrFileMissingPath = errors.New("path is required for file source")
)

// FileSourceConfig holds configuration for the file source module.
type FileSourceConfig struct {
	// Path is the batch file to read. Compressed files are detected by
	// extension (.gz, .zst, .lz4).
	Path string `json:"path"`

	// Lenient makes a missing or malformed file yield an empty batch
	// instead of failing the run.
	Lenient bool `json:"lenient"`
}

// FileSource reads a JSON batch file through the gateway.
type FileSource struct {
	config FileSourceConfig
}

// NewFileSourceFromConfig creates a new file source module from configuration.
func NewFileSourceFromConfig(cfg *batch.ModuleConfig) (*FileSource, error) {
	if cfg == nil {
		return nil, ErrFileNilConfig
	}

	config := parseFileSourceConfig(cfg.Config)
	if config.Path == "" {
		return nil, ErrFileMissingPath
	}

	logger.Debug("file source module created",
		"path", config.Path,
		"lenient", config.Lenient,
	)

	return &FileSource{config: config}, nil
}

// parseFileSourceConfig parses the raw configuration map into FileSourceConfig.
func parseFileSourceConfig(cfg map[string]interface{}) FileSourceConfig {
	config := FileSourceConfig{}

	if v, ok := cfg["path"].(string); ok {
		config.Path = v
	}
	if v, ok := cfg["lenient"].(bool); ok {
		config.Lenient = v
	}

	return config
}

// Fetch reads the batch file and returns its records.
func (f *FileSource) Fetch(ctx context.Context) ([]batch.Raw, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	startTime := time.Now()

	if f.config.Lenient {
		records := gateway.ReadBatch(f.config.Path)
		logger.Info("file source fetch completed",
			"module_type", "file",
			"path", f.config.Path,
			"record_count", len(records),
			"duration", time.Since(startTime),
		)
		return records, nil
	}

	records, err := gateway.Load(f.config.Path)
	if err != nil {
		logger.Error("file source fetch failed",
			"module_type", "file",
			"path", f.config.Path,
			"error", err.Error(),
		)
		return nil, err
	}

	logger.Info("file source fetch completed",
		"module_type", "file",
		"path", f.config.Path,
		"record_count", len(records),
		"duration", time.Since(startTime),
	)

	return records, nil
}

// Close releases resources (no-op for file source).
func (f *FileSource) Close() error {
	return nil
}

// Path returns the configured batch file path.
func (f *FileSource) Path() string {
	return f.config.Path
}

// Verify FileSource implements Module and PathProvider
var (
	_ Module       = (*FileSource)(nil)
	_ PathProvider = (*FileSource)(nil)
)
