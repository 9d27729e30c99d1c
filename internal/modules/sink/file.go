// Package sink provides implementations for sink modules.
// FileSink writes processed records to a JSON batch file.
package sink

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/batchline/runtime/internal/gateway"
	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// Error types for file sink module
var (
	ErrFileSinkNilConfig   = errors.New("file sink configuration is nil")
	ErrFileSinkMissingPath = errors.New("path is required for file sink")
)

// FileSinkConfig holds configuration for the file sink module.
type FileSinkConfig struct {
	// Path is the destination batch file. Compression is chosen by
	// extension (.gz, .zst, .lz4).
	Path string `json:"path"`
}

// FileSink writes the full result set to a single JSON file.
// Writes are atomic; a failed write leaves any previous file intact,
// and repeating a send after a failure produces the same file.
type FileSink struct {
	path string
}

// NewFileSinkFromConfig creates a new file sink module from configuration.
func NewFileSinkFromConfig(cfg *batch.ModuleConfig) (*FileSink, error) {
	if cfg == nil {
		return nil, ErrFileSinkNilConfig
	}

	path, _ := cfg.Config["path"].(string)
	if path == "" {
		return nil, ErrFileSinkMissingPath
	}

	return &FileSink{path: path}, nil
}

// Send writes all records to the configured file, replacing previous
// content. An empty record set writes an empty JSON array so the file
// always reflects the latest run.
func (s *FileSink) Send(ctx context.Context, records []batch.Processed) (int, error) {
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	default:
	}

	startTime := time.Now()

	if records == nil {
		records = []batch.Processed{}
	}

	if err := gateway.Save(s.path, records); err != nil {
		logger.Error("file sink write failed",
			slog.String("module_type", "file"),
			slog.String("path", s.path),
			slog.String("error", err.Error()),
		)
		return 0, err
	}

	logger.Info("file sink write completed",
		slog.String("module_type", "file"),
		slog.String("path", s.path),
		slog.Int("record_count", len(records)),
		slog.Duration("duration", time.Since(startTime)),
	)

	return len(records), nil
}

// Close releases resources (no-op for file sink).
func (s *FileSink) Close() error {
	return nil
}

// Path returns the destination file path.
func (s *FileSink) Path() string {
	return s.path
}

// Verify FileSink implements Module
var _ Module = (*FileSink)(nil)
