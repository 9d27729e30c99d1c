package sink

import (
	"context"
	"log/slog"

	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// StubSink is a placeholder sink for unregistered module types.
// It logs and discards records.
type StubSink struct {
	ModuleType string
}

// NewStub creates a new stub sink module.
func NewStub(moduleType string) *StubSink {
	return &StubSink{ModuleType: moduleType}
}

// Send logs the record count and reports everything as delivered.
func (m *StubSink) Send(_ context.Context, records []batch.Processed) (int, error) {
	logger.Info("Sink module sending records",
		slog.String("module_type", m.ModuleType),
		slog.Int("record_count", len(records)))

	return len(records), nil
}

// Close releases resources (no-op for stub).
func (m *StubSink) Close() error {
	return nil
}

// Verify StubSink implements Module
var _ Module = (*StubSink)(nil)
