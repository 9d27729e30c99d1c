package filter

import (
	"context"
	"log/slog"

	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// StubModule is a placeholder filter for unregistered module types.
// It passes records through unchanged.
type StubModule struct {
	ModuleType string
	Index      int
}

// NewStub creates a new stub filter module.
func NewStub(moduleType string, index int) *StubModule {
	return &StubModule{
		ModuleType: moduleType,
		Index:      index,
	}
}

// Process passes records through unchanged.
func (m *StubModule) Process(_ context.Context, records []batch.Raw) ([]batch.Raw, error) {
	logger.Info("Filter module processing records",
		slog.String("module_type", m.ModuleType),
		slog.Int("filter_index", m.Index),
		slog.Int("record_count", len(records)))

	return records, nil
}

// Verify StubModule implements Module
var _ Module = (*StubModule)(nil)
