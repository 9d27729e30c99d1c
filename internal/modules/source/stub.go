// Package source provides implementations for source modules.
package source

import (
	"context"
	"log/slog"

	"github.com/batchline/runtime/internal/logger"
	"github.com/batchline/runtime/pkg/batch"
)

// StubSource is a placeholder source module for testing the pipeline flow.
// It returns sample records without touching any external system.
type StubSource struct {
	ModuleType string
}

// NewStub creates a new stub source module.
func NewStub(moduleType string) *StubSource {
	return &StubSource{
		ModuleType: moduleType,
	}
}

// Fetch returns sample records to demonstrate pipeline flow.
func (m *StubSource) Fetch(_ context.Context) ([]batch.Raw, error) {
	logger.Info("Source module fetching records",
		slog.String("type", m.ModuleType))

	return []batch.Raw{
		{"id": "1", "name": "Sample Record 1", "value": 100},
		{"id": "2", "name": "Sample Record 2", "value": 200},
	}, nil
}

// Close releases resources (no-op for stub).
func (m *StubSource) Close() error {
	return nil
}

// Verify StubSource implements Module
var _ Module = (*StubSource)(nil)
