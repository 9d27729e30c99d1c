// Package filter provides implementations for filter modules.
// Filter modules transform or drop raw records before processing.
package filter

import (
	"context"

	"github.com/batchline/runtime/pkg/batch"
)

// OnError behavior constants
const (
	OnErrorFail = "fail"
	OnErrorSkip = "skip"
	OnErrorLog  = "log"
)

// Module represents a filter module that transforms records.
type Module interface {
	// Process transforms the input records.
	// The context can be used to cancel long-running operations.
	Process(ctx context.Context, records []batch.Raw) ([]batch.Raw, error)
}
