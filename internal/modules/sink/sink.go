// Package sink provides implementations for sink modules.
// Sink modules deliver processed records to destination systems.
package sink

import (
	"context"

	"github.com/batchline/runtime/pkg/batch"
)

// Module represents a sink module that delivers processed records.
type Module interface {
	// Send delivers records to the destination.
	// Returns the number of records successfully delivered and any error.
	// Send must tolerate being called again with the same records after a
	// transient failure; the runtime retries failed sends.
	Send(ctx context.Context, records []batch.Processed) (int, error)

	// Close releases any resources held by the module.
	Close() error
}
