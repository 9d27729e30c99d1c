// Package source provides implementations for source modules.
// Source modules are responsible for fetching raw records into a pipeline run.
package source

import (
	"context"

	"github.com/batchline/runtime/pkg/batch"
)

// Module represents a source module that fetches raw records.
type Module interface {
	// Fetch retrieves records from the source system.
	// The context can be used to cancel long-running operations.
	Fetch(ctx context.Context) ([]batch.Raw, error)
	// Close releases any resources held by the module.
	Close() error
}

// PathProvider is implemented by sources that read from a local file.
// The runtime uses it for change detection and watch mode.
type PathProvider interface {
	Path() string
}
